package repository

import (
	"context"

	"ledger-service/internal/domain"
)

// UserRepository defines persistence operations for User entities.
type UserRepository interface {
	Init(ctx context.Context) error
	// Create stores the user together with its freshly opened account.
	Create(ctx context.Context, user *domain.User, account *domain.Account) (int64, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}
