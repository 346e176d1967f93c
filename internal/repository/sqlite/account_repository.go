package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ledger-service/internal/domain"
	"ledger-service/internal/repository"
)

const createAccountsTable = `
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	balance TEXT NOT NULL,
	initial_balance TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) repository.AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAccountsTable); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	return nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) (int64, error) {
	return insertAccount(ctx, r.db, account)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAccount(ctx context.Context, db execer, account *domain.Account) (int64, error) {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	res, err := db.ExecContext(ctx, `
INSERT INTO accounts (balance, initial_balance, created_at, updated_at)
VALUES (?, ?, ?, ?)`,
		account.Balance.String(),
		account.InitialBalance.String(),
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert account: %w", domain.ErrStore, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: account last insert id: %w", domain.ErrStore, err)
	}
	account.ID = id
	return id, nil
}

func (r *AccountRepository) Get(ctx context.Context, id int64) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, balance, initial_balance, created_at, updated_at
FROM accounts
WHERE id=?`,
		id,
	)
	return scanAccount(row)
}

// Save writes balances only; initial_balance is immutable after insert.
func (r *AccountRepository) Save(ctx context.Context, accounts ...*domain.Account) error {
	if len(accounts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %w", domain.ErrStore, err)
	}
	defer tx.Rollback() // safe no-op on commit

	now := time.Now().UTC()
	for _, account := range accounts {
		res, err := tx.ExecContext(ctx, `
UPDATE accounts
SET balance=?, updated_at=?
WHERE id=?`,
			account.Balance.String(),
			now,
			account.ID,
		)
		if err != nil {
			return fmt.Errorf("%w: update account %d: %w", domain.ErrStore, account.ID, err)
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: account update rows affected: %w", domain.ErrStore, err)
		}
		if aff == 0 {
			return fmt.Errorf("account %d: %w", account.ID, domain.ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit balances: %w", domain.ErrStore, err)
	}
	for _, account := range accounts {
		account.UpdatedAt = now
	}
	return nil
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, balance, initial_balance, created_at, updated_at
FROM accounts
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: query accounts: %w", domain.ErrStore, err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate accounts: %w", domain.ErrStore, err)
	}
	return accounts, nil
}

func scanAccount(scanner interface {
	Scan(dest ...any) error
}) (*domain.Account, error) {
	var account domain.Account
	if err := scanner.Scan(
		&account.ID,
		&account.Balance,
		&account.InitialBalance,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: scan account: %w", domain.ErrStore, err)
	}
	return &account, nil
}
