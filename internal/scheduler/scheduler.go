// Package scheduler runs the periodic maintenance jobs: expiring lapsed
// holds and retrying channel-manager syncs that failed earlier.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iliyamo/rental-hold-engine/internal/booking"
)

// Sweeper expires lapsed holds.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Resyncer retries unsynced confirmed reservations.
type Resyncer interface {
	SyncPending(ctx context.Context, minAge time.Duration, limit int) (booking.SyncBatch, error)
}

// Config holds the cron specs and retry parameters.
type Config struct {
	SweepSchedule  string
	ResyncSchedule string
	ResyncAfter    time.Duration
	ResyncBatch    int
	JobTimeout     time.Duration
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	sweeper  Sweeper
	resyncer Resyncer
	log      *slog.Logger
}

// New creates a scheduler.  resyncer may be nil to disable the retry job.
func New(cfg Config, sweeper Sweeper, resyncer Resyncer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	return &Scheduler{
		cron: cron.New(cron.WithSeconds(), cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DiscardLogger),
		)),
		cfg:      cfg,
		sweeper:  sweeper,
		resyncer: resyncer,
		log:      logger,
	}
}

// Start registers the jobs and starts the runner.  An invalid spec is
// reported before anything runs.
func (s *Scheduler) Start() error {
	s.log.Info("scheduler: starting", "sweep", s.cfg.SweepSchedule, "resync", s.cfg.ResyncSchedule)

	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.sweep); err != nil {
		return fmt.Errorf("sweep schedule %q: %w", s.cfg.SweepSchedule, err)
	}
	if s.resyncer != nil && s.cfg.ResyncSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.ResyncSchedule, s.resync); err != nil {
			return fmt.Errorf("resync schedule %q: %w", s.cfg.ResyncSchedule, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	s.log.Info("scheduler: stopping")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler: stopped")
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.log.Error("scheduler: sweep failed", "err", err)
	}
}

func (s *Scheduler) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	batch, err := s.resyncer.SyncPending(ctx, s.cfg.ResyncAfter, s.cfg.ResyncBatch)
	if err != nil {
		s.log.Error("scheduler: resync failed", "err", err)
		return
	}
	if batch.Attempted > 0 {
		s.log.Info("scheduler: resync finished", "attempted", batch.Attempted,
			"synced", batch.Synced, "failed", batch.Failed, "skipped", batch.Skipped)
	}
}
