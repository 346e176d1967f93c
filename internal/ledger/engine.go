package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ledger-service/internal/domain"
	"ledger-service/internal/repository"
)

// Engine moves money between two accounts.
type Engine interface {
	Transfer(ctx context.Context, callerAccountID, recipientAccountID int64, amount decimal.Decimal) (*Receipt, error)
}

type Config struct {
	// LockTimeout bounds how long a transfer waits for account locks. Zero waits until ctx is done.
	LockTimeout time.Duration
	Logger      *logrus.Logger
}

// Receipt describes a committed transfer.
type Receipt struct {
	ID               uuid.UUID
	From             int64
	To               int64
	Amount           decimal.Decimal
	SenderBalance    decimal.Decimal
	RecipientBalance decimal.Decimal
	CompletedAt      time.Time
}

type engine struct {
	cfg      Config
	accounts repository.AccountRepository
	locks    *Registry
}

func NewEngine(cfg Config, accounts repository.AccountRepository, locks *Registry) Engine {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &engine{
		cfg:      cfg,
		accounts: accounts,
		locks:    locks,
	}
}

// Transfer debits the caller and credits the recipient. Either both balances
// change and are persisted together, or neither does.
func (e *engine) Transfer(ctx context.Context, callerAccountID, recipientAccountID int64, amount decimal.Decimal) (*Receipt, error) {
	transferID := uuid.New()
	logger := e.cfg.Logger.WithFields(logrus.Fields{
		"transfer_id": transferID.String(),
		"from":        callerAccountID,
		"to":          recipientAccountID,
		"amount":      amount.String(),
	})

	receipt, err := e.transfer(ctx, callerAccountID, recipientAccountID, amount)
	if err != nil {
		if errors.Is(err, domain.ErrStore) {
			logger.Errorf("transfer failed: %v", err)
		} else {
			logger.Warnf("transfer rejected: %v", err)
		}
		return nil, err
	}

	receipt.ID = transferID
	logger.Info("transfer completed")
	return receipt, nil
}

func (e *engine) transfer(ctx context.Context, from, to int64, amount decimal.Decimal) (*Receipt, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidOperation)
	}
	if from == to {
		return nil, fmt.Errorf("%w: cannot transfer to the same account", domain.ErrInvalidOperation)
	}
	if _, err := e.accounts.Get(ctx, from); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if _, err := e.accounts.Get(ctx, to); err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}

	lockCtx := ctx
	if e.cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, e.cfg.LockTimeout)
		defer cancel()
	}
	release, err := e.locks.AcquireOrdered(lockCtx, from, to)
	if err != nil {
		return nil, err
	}
	defer release()

	// Balances read before locking may be stale; only the values loaded here count.
	sender, err := e.accounts.Get(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	recipient, err := e.accounts.Get(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}

	if sender.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: account %d holds %s, transfer needs %s",
			domain.ErrInsufficientBalance, from, sender.Balance, amount)
	}

	sender.Balance = sender.Balance.Sub(amount)
	recipient.Balance = recipient.Balance.Add(amount)

	if err := e.accounts.Save(ctx, sender, recipient); err != nil {
		return nil, fmt.Errorf("persist transfer: %w", err)
	}

	return &Receipt{
		From:             from,
		To:               to,
		Amount:           amount,
		SenderBalance:    sender.Balance,
		RecipientBalance: recipient.Balance,
		CompletedAt:      time.Now().UTC(),
	}, nil
}

var _ Engine = (*engine)(nil)
