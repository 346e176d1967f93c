package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Account holds the balance owned by a single user.
// InitialBalance is fixed at creation and only read afterwards.
type Account struct {
	ID             int64
	Balance        decimal.Decimal
	InitialBalance decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewAccount builds an account funded with a strictly positive initial sum.
func NewAccount(initial decimal.Decimal) (*Account, error) {
	if !initial.IsPositive() {
		return nil, fmt.Errorf("%w: initial balance must be positive", ErrInvalidOperation)
	}
	return &Account{
		Balance:        initial,
		InitialBalance: initial,
	}, nil
}

// Clone returns a copy detached from the receiver.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
