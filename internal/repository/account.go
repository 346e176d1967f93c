package repository

import (
	"context"

	"ledger-service/internal/domain"
)

// AccountRepository exposes durable storage for account balances.
type AccountRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, account *domain.Account) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Account, error)
	// Save persists the balances of all given accounts atomically, in argument order.
	Save(ctx context.Context, accounts ...*domain.Account) error
	List(ctx context.Context) ([]domain.Account, error)
}
