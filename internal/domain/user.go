package domain

import "time"

// User represents an account holder able to authenticate.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	AccountID    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
