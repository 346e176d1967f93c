// Package memory provides RWMutex-guarded in-memory repositories. Records are
// copied on the way in and out so callers never share state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ledger-service/internal/domain"
	"ledger-service/internal/repository"
)

// Store keeps accounts and users in process memory.
type Store struct {
	mu         sync.RWMutex
	accounts   map[int64]*domain.Account
	users      map[int64]*domain.User
	byUsername map[string]int64
	nextAcct   int64
	nextUser   int64
}

func NewStore() *Store {
	return &Store{
		accounts:   make(map[int64]*domain.Account),
		users:      make(map[int64]*domain.User),
		byUsername: make(map[string]int64),
	}
}

// Accounts returns the store as an AccountRepository.
func (s *Store) Accounts() repository.AccountRepository { return accountRepo{s} }

// Users returns the store as a UserRepository.
func (s *Store) Users() repository.UserRepository { return userRepo{s} }

type accountRepo struct{ s *Store }

func (r accountRepo) Init(context.Context) error { return nil }

func (r accountRepo) Create(_ context.Context, account *domain.Account) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertAccount(account), nil
}

func (s *Store) insertAccount(account *domain.Account) int64 {
	s.nextAcct++
	now := time.Now().UTC()
	account.ID = s.nextAcct
	account.CreatedAt = now
	account.UpdatedAt = now
	s.accounts[account.ID] = account.Clone()
	return account.ID
}

func (r accountRepo) Get(_ context.Context, id int64) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	acct, ok := r.s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, domain.ErrNotFound)
	}
	return acct.Clone(), nil
}

func (r accountRepo) Save(_ context.Context, accounts ...*domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, account := range accounts {
		if _, ok := r.s.accounts[account.ID]; !ok {
			return fmt.Errorf("account %d: %w", account.ID, domain.ErrNotFound)
		}
	}
	now := time.Now().UTC()
	for _, account := range accounts {
		stored := r.s.accounts[account.ID]
		stored.Balance = account.Balance
		stored.UpdatedAt = now
		account.UpdatedAt = now
	}
	return nil
}

func (r accountRepo) List(context.Context) ([]domain.Account, error) {
	r.s.mu.RLock()
	out := make([]domain.Account, 0, len(r.s.accounts))
	for _, acct := range r.s.accounts {
		out = append(out, *acct)
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type userRepo struct{ s *Store }

func (r userRepo) Init(context.Context) error { return nil }

func (r userRepo) Create(_ context.Context, user *domain.User, account *domain.Account) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.byUsername[user.Username]; exists {
		return 0, fmt.Errorf("user %q: %w", user.Username, domain.ErrAlreadyExists)
	}
	user.AccountID = r.s.insertAccount(account)

	r.s.nextUser++
	now := time.Now().UTC()
	user.ID = r.s.nextUser
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	r.s.users[user.ID] = &cp
	r.s.byUsername[user.Username] = user.ID
	return user.ID, nil
}

func (r userRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byUsername[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
	}
	cp := *r.s.users[id]
	return &cp, nil
}

func (r userRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	cp := *user
	return &cp, nil
}
