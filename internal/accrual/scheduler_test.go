package accrual

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger-service/internal/domain"
	"ledger-service/internal/ledger"
	"ledger-service/internal/repository"
	"ledger-service/internal/repository/memory"
)

type flakyStore struct {
	repository.AccountRepository

	mu      sync.Mutex
	failIDs map[int64]bool
}

func (s *flakyStore) Save(ctx context.Context, accounts ...*domain.Account) error {
	s.mu.Lock()
	for _, a := range accounts {
		if s.failIDs[a.ID] {
			s.mu.Unlock()
			return fmt.Errorf("%w: store unavailable", domain.ErrStore)
		}
	}
	s.mu.Unlock()
	return s.AccountRepository.Save(ctx, accounts...)
}

func (s *flakyStore) heal(id int64) {
	s.mu.Lock()
	delete(s.failIDs, id)
	s.mu.Unlock()
}

type captureArchiver struct {
	mu        sync.Mutex
	snapshots []domain.BalanceSnapshot
	err       error
}

func (a *captureArchiver) Archive(_ context.Context, snap domain.BalanceSnapshot) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.snapshots = append(a.snapshots, snap)
	return fmt.Sprintf("memory://%d", len(a.snapshots)), nil
}

func (a *captureArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.snapshots)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seed(t *testing.T, store repository.AccountRepository, initial, balance string) int64 {
	t.Helper()
	acct, err := domain.NewAccount(dec(initial))
	require.NoError(t, err)
	id, err := store.Create(context.Background(), acct)
	require.NoError(t, err)
	if balance != initial {
		acct.Balance = dec(balance)
		require.NoError(t, store.Save(context.Background(), acct))
	}
	return id
}

func balanceOf(t *testing.T, store repository.AccountRepository, id int64) decimal.Decimal {
	t.Helper()
	acct, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return acct.Balance
}

func TestRunOnce_GrowsAndCaps(t *testing.T) {
	store := memory.NewStore().Accounts()
	growing := seed(t, store, "100", "100")
	atCeiling := seed(t, store, "100", "207")
	nearCeiling := seed(t, store, "100", "200")

	s := NewScheduler(Config{Logger: quietLogger()}, store, ledger.NewRegistry())
	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.True(t, balanceOf(t, store, growing).Equal(dec("105")))
	assert.True(t, balanceOf(t, store, atCeiling).Equal(dec("207")))
	assert.True(t, balanceOf(t, store, nearCeiling).Equal(dec("207")))
	assert.Equal(t, 2, report.Accrued)
	assert.Equal(t, 1, report.Unchanged)
	assert.Zero(t, report.Failed)
	assert.Len(t, report.Balances, 3)
}

func TestRunOnce_RepeatedCyclesConvergeToCeiling(t *testing.T) {
	store := memory.NewStore().Accounts()
	id := seed(t, store, "100", "100")
	s := NewScheduler(Config{Logger: quietLogger()}, store, ledger.NewRegistry())

	prev := balanceOf(t, store, id)
	for i := 0; i < 30; i++ {
		_, err := s.RunOnce(context.Background())
		require.NoError(t, err)
		cur := balanceOf(t, store, id)
		require.True(t, cur.GreaterThanOrEqual(prev))
		require.True(t, cur.LessThanOrEqual(dec("207")))
		prev = cur
	}
	assert.True(t, prev.Equal(dec("207")))
}

func TestRunOnce_StoreFailureIsolatedPerAccount(t *testing.T) {
	base := memory.NewStore().Accounts()
	store := &flakyStore{AccountRepository: base, failIDs: map[int64]bool{}}
	first := seed(t, base, "100", "100")
	broken := seed(t, base, "100", "100")
	last := seed(t, base, "100", "100")
	store.failIDs[broken] = true

	s := NewScheduler(Config{Logger: quietLogger()}, store, ledger.NewRegistry())
	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Accrued)
	assert.Equal(t, 1, report.Failed)
	assert.True(t, balanceOf(t, base, first).Equal(dec("105")))
	assert.True(t, balanceOf(t, base, broken).Equal(dec("100")))
	assert.True(t, balanceOf(t, base, last).Equal(dec("105")))

	store.heal(broken)
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, balanceOf(t, base, broken).Equal(dec("105")), "skipped account is retried next cycle")
}

func TestRunOnce_BusyAccountSkipped(t *testing.T) {
	store := memory.NewStore().Accounts()
	held := seed(t, store, "100", "100")
	free := seed(t, store, "100", "100")
	locks := ledger.NewRegistry()

	release, err := locks.AcquireSingle(context.Background(), held)
	require.NoError(t, err)
	defer release()

	s := NewScheduler(Config{LockTimeout: 20 * time.Millisecond, Logger: quietLogger()}, store, locks)
	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.True(t, balanceOf(t, store, held).Equal(dec("100")))
	assert.True(t, balanceOf(t, store, free).Equal(dec("105")))
}

func TestRunOnce_ArchivesSnapshot(t *testing.T) {
	store := memory.NewStore().Accounts()
	id := seed(t, store, "10", "10")
	archiver := &captureArchiver{}

	s := NewScheduler(Config{Archiver: archiver, Logger: quietLogger()}, store, ledger.NewRegistry())
	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, archiver.count())
	snap := archiver.snapshots[0]
	require.Len(t, snap.Accounts, 1)
	assert.Equal(t, id, snap.Accounts[0].AccountID)
	assert.True(t, snap.Accounts[0].Balance.Equal(dec("10.5")))

	archiver.err = errors.New("bucket gone")
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err, "archive failures never fail the cycle")
}

func TestStart_RunsOnInterval(t *testing.T) {
	store := memory.NewStore().Accounts()
	id := seed(t, store, "100", "100")

	s := NewScheduler(Config{Interval: 10 * time.Millisecond, Logger: quietLogger()}, store, ledger.NewRegistry())
	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		acct, err := store.Get(context.Background(), id)
		return err == nil && acct.Balance.Equal(dec("207"))
	}, 5*time.Second, 10*time.Millisecond)

	s.Shutdown()
}

func TestAccrualAndTransfersInterleave(t *testing.T) {
	store := memory.NewStore().Accounts()
	a := seed(t, store, "100", "100")
	b := seed(t, store, "100", "100")
	locks := ledger.NewRegistry()
	engine := ledger.NewEngine(ledger.Config{Logger: quietLogger()}, store, locks)
	s := NewScheduler(Config{Logger: quietLogger()}, store, locks)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		from, to := a, b
		if i%2 == 1 {
			from, to = b, a
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(context.Background(), from, to, dec("3"))
			if err != nil && !errors.Is(err, domain.ErrInsufficientBalance) {
				t.Errorf("unexpected transfer error: %v", err)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RunOnce(context.Background()); err != nil {
				t.Errorf("accrual: %v", err)
			}
		}()
	}
	wg.Wait()

	balA := balanceOf(t, store, a)
	balB := balanceOf(t, store, b)
	assert.False(t, balA.IsNegative())
	assert.False(t, balB.IsNegative())
	assert.True(t, balA.Add(balB).GreaterThanOrEqual(dec("200")), "accrual never removes funds")
}
