package service

import (
	"context"

	"ledger-service/internal/domain"
	"ledger-service/internal/repository"
)

// AccountService exposes read access to account balances.
type AccountService interface {
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
}

type accountService struct {
	accounts repository.AccountRepository
}

func NewAccountService(accounts repository.AccountRepository) AccountService {
	return &accountService{accounts: accounts}
}

func (s *accountService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return s.accounts.Get(ctx, id)
}
