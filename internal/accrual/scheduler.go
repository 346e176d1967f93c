package accrual

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ledger-service/internal/domain"
	"ledger-service/internal/ledger"
	"ledger-service/internal/repository"
)

// Scheduler periodically applies bounded compound growth to every account.
type Scheduler interface {
	Start(ctx context.Context) error
	Shutdown()
	RunOnce(ctx context.Context) (Report, error)
}

// Archiver receives the balances observed by each completed cycle.
type Archiver interface {
	Archive(ctx context.Context, snapshot domain.BalanceSnapshot) (string, error)
}

type Config struct {
	Interval    time.Duration
	Policy      domain.AccrualPolicy
	LockTimeout time.Duration
	Archiver    Archiver
	Logger      *logrus.Logger
}

// Report summarizes one accrual cycle.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Accrued    int
	Unchanged  int
	Failed     int
	Balances   []domain.AccountBalance
}

type scheduler struct {
	cfg      Config
	accounts repository.AccountRepository
	locks    *ledger.Registry

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewScheduler(cfg Config, accounts repository.AccountRepository, locks *ledger.Registry) Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Policy.GrowthRate.IsZero() || cfg.Policy.CeilingMultiplier.IsZero() {
		cfg.Policy = domain.DefaultAccrualPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &scheduler{
		cfg:      cfg,
		accounts: accounts,
		locks:    locks,
	}
}

// Start launches the fixed-rate loop. The first cycle runs one interval after Start.
func (s *scheduler) Start(ctx context.Context) error {
	if s.cancel != nil {
		return fmt.Errorf("accrual scheduler already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunOnce(loopCtx); err != nil {
					s.cfg.Logger.Errorf("accrual cycle: %v", err)
				}
			}
		}
	}()

	s.cfg.Logger.Infof("accrual scheduler started, interval %s, growth %s, ceiling x%s",
		s.cfg.Interval, s.cfg.Policy.GrowthRate, s.cfg.Policy.CeilingMultiplier)
	return nil
}

func (s *scheduler) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.cfg.Logger.Info("accrual scheduler stopped")
}

// RunOnce performs a single accrual pass. A failure on one account is logged and
// counted; the account is retried on the next cycle and the pass moves on.
func (s *scheduler) RunOnce(ctx context.Context) (Report, error) {
	report := Report{StartedAt: time.Now().UTC()}

	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list accounts: %w", err)
	}

	for i := range accounts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		id := accounts[i].ID
		acct, changed, err := s.accrue(ctx, id)
		if err != nil {
			report.Failed++
			s.cfg.Logger.WithField("account_id", id).Warnf("accrual skipped: %v", err)
			continue
		}
		if changed {
			report.Accrued++
		} else {
			report.Unchanged++
		}
		report.Balances = append(report.Balances, domain.AccountBalance{
			AccountID:      acct.ID,
			Balance:        acct.Balance,
			InitialBalance: acct.InitialBalance,
		})
	}
	report.FinishedAt = time.Now().UTC()

	s.cfg.Logger.WithFields(logrus.Fields{
		"accrued":   report.Accrued,
		"unchanged": report.Unchanged,
		"failed":    report.Failed,
	}).Info("accrual cycle finished")

	s.archive(ctx, report)
	return report, nil
}

func (s *scheduler) accrue(ctx context.Context, id int64) (*domain.Account, bool, error) {
	lockCtx := ctx
	if s.cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.cfg.LockTimeout)
		defer cancel()
	}
	release, err := s.locks.AcquireSingle(lockCtx, id)
	if err != nil {
		return nil, false, err
	}
	defer release()

	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	next, changed := s.cfg.Policy.Apply(acct)
	if !changed {
		return acct, false, nil
	}
	acct.Balance = next
	if err := s.accounts.Save(ctx, acct); err != nil {
		return nil, false, err
	}
	return acct, true, nil
}

func (s *scheduler) archive(ctx context.Context, report Report) {
	if s.cfg.Archiver == nil {
		return
	}
	location, err := s.cfg.Archiver.Archive(ctx, domain.BalanceSnapshot{
		TakenAt:  report.FinishedAt,
		Accounts: report.Balances,
	})
	if err != nil {
		s.cfg.Logger.Warnf("archive balance snapshot: %v", err)
		return
	}
	s.cfg.Logger.Debugf("balance snapshot archived to %s", location)
}

var _ Scheduler = (*scheduler)(nil)
