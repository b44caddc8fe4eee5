// Package reconcile periodically recomputes every account balance from its
// opening balance and recorded transactions and reports drift. It never
// writes.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/fintrack/finance-service/internal/ledger"
	"github.com/fintrack/finance-service/internal/models"
	"github.com/fintrack/finance-service/internal/repository"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Drift is an account whose stored balance disagrees with its ledger.
type Drift struct {
	AccountID string
	UserID    string
	Stored    decimal.Decimal
	Expected  decimal.Decimal
}

// Job checks the ledger invariant for every account.
type Job struct {
	store   repository.SnapshotReader
	logger  *slog.Logger
	timeout time.Duration
}

func NewJob(store repository.SnapshotReader, logger *slog.Logger) *Job {
	return &Job{
		store:   store,
		logger:  logger,
		timeout: 5 * time.Minute,
	}
}

// Check returns the accounts whose balance drifted. Accounts and sums are read
// from one snapshot so a commit landing between the two reads is not reported.
func (j *Job) Check(ctx context.Context) ([]Drift, error) {
	var (
		accounts []models.Account
		sums     []models.TypeSum
	)
	err := j.store.ReadSnapshot(ctx, func(tx repository.Tx) error {
		var err error
		if accounts, err = tx.Accounts().ListAll(ctx); err != nil {
			return err
		}
		sums, err = tx.Transactions().SumsByAccount(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	byAccount := make(map[string][]models.TypeSum, len(accounts))
	for _, s := range sums {
		byAccount[s.AccountID] = append(byAccount[s.AccountID], s)
	}

	var drifts []Drift
	for _, a := range accounts {
		expected, err := ledger.ExpectedBalance(a.OpeningBalance, byAccount[a.ID])
		if err != nil {
			j.logger.Error("cannot recompute balance", "account_id", a.ID, "error", err)
			continue
		}
		if !expected.Equal(a.Balance) {
			drifts = append(drifts, Drift{AccountID: a.ID, UserID: a.UserID, Stored: a.Balance, Expected: expected})
		}
	}
	return drifts, nil
}

// Run is the cron entry point.
func (j *Job) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	drifts, err := j.Check(ctx)
	if err != nil {
		j.logger.Error("balance reconciliation failed", "error", err)
		return
	}
	for _, d := range drifts {
		j.logger.Warn("account balance drift",
			"account_id", d.AccountID,
			"user_id", d.UserID,
			"stored", d.Stored.StringFixed(2),
			"expected", d.Expected.StringFixed(2),
			"difference", d.Stored.Sub(d.Expected).StringFixed(2),
		)
	}
	j.logger.Info("balance reconciliation finished", "drifted", len(drifts), "duration_ms", time.Since(start).Milliseconds())
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	job      *Job
	logger   *slog.Logger
	schedule string
}

func NewScheduler(job *Job, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		job:      job,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the job and starts the scheduler. An empty schedule
// disables reconciliation.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("balance reconciliation disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.job.Run); err != nil {
		return err
	}
	s.logger.Info("scheduled balance reconciliation job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop halts the scheduler; the returned context is done once a running job finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
