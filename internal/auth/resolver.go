package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ledger-service/internal/domain"
	"ledger-service/internal/repository"
)

const bearerPrefix = "Bearer "

// Resolver maps the credentials of an inbound request to the caller's account.
type Resolver interface {
	ResolveCallerAccountID(ctx context.Context, authorization string) (int64, error)
}

type resolver struct {
	tokens *Tokens
	users  repository.UserRepository
}

func NewResolver(tokens *Tokens, users repository.UserRepository) Resolver {
	return &resolver{tokens: tokens, users: users}
}

// ResolveCallerAccountID accepts an Authorization header value. A bad token or a
// user that no longer exists is reported as ErrUnauthorized; store failures pass through.
func (r *resolver) ResolveCallerAccountID(ctx context.Context, authorization string) (int64, error) {
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return 0, fmt.Errorf("%w: bearer token required", domain.ErrUnauthorized)
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))

	userID, err := r.tokens.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		}
		return 0, fmt.Errorf("resolve caller: %w", err)
	}
	return user.AccountID, nil
}

type accountIDKey struct{}

// WithAccountID returns a context carrying the resolved caller account.
func WithAccountID(ctx context.Context, accountID int64) context.Context {
	return context.WithValue(ctx, accountIDKey{}, accountID)
}

// AccountIDFromContext returns the caller account stored by WithAccountID.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(accountIDKey{}).(int64)
	return id, ok
}
