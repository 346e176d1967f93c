package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"ledger-service/internal/domain"
)

// Registry hands out one mutual-exclusion lock per account id.
//
// Locks are created on first reference and kept for the life of the process, so
// the registry grows with the account population and never with transfer volume.
// Multi-account acquisition always goes through AcquireOrdered, which takes locks
// in ascending id order; that single global order is what keeps concurrent
// transfers sharing an account deadlock free.
type Registry struct {
	locks sync.Map // int64 -> *semaphore.Weighted
	size  atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Len reports how many account locks have been created.
func (r *Registry) Len() int {
	return int(r.size.Load())
}

func (r *Registry) lockFor(id int64) *semaphore.Weighted {
	if l, ok := r.locks.Load(id); ok {
		return l.(*semaphore.Weighted)
	}
	l, loaded := r.locks.LoadOrStore(id, semaphore.NewWeighted(1))
	if !loaded {
		r.size.Add(1)
	}
	return l.(*semaphore.Weighted)
}

func (r *Registry) acquire(ctx context.Context, id int64) (func(), error) {
	l := r.lockFor(id)
	if err := l.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: account %d: %w", domain.ErrBusy, id, err)
		}
		return nil, fmt.Errorf("lock account %d: %w", id, err)
	}
	return func() { l.Release(1) }, nil
}

// AcquireSingle blocks until the account's lock is held or ctx is done.
func (r *Registry) AcquireSingle(ctx context.Context, id int64) (release func(), err error) {
	return r.acquire(ctx, id)
}

// AcquireOrdered holds the locks of both accounts when it returns without error.
// Locks are taken lowest id first regardless of argument order, and the returned
// release func unlocks them in reverse order. Equal ids take a single lock.
func (r *Registry) AcquireOrdered(ctx context.Context, a, b int64) (release func(), err error) {
	if a == b {
		return r.acquire(ctx, a)
	}

	first, second := a, b
	if second < first {
		first, second = second, first
	}

	releaseFirst, err := r.acquire(ctx, first)
	if err != nil {
		return nil, err
	}
	releaseSecond, err := r.acquire(ctx, second)
	if err != nil {
		releaseFirst()
		return nil, err
	}

	return func() {
		releaseSecond()
		releaseFirst()
	}, nil
}
