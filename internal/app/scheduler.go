/**
 * @description
 * Cron scheduler setup for the billing check. One owned instance with an
 * explicit start/stop lifecycle; ticks are serialized so that an evaluation
 * pass never starts before the previous one has finished persisting.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/spexafrica/billing-service/internal/config"
)

// Scheduler manages the periodic billing check.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the billing check and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.BillingCheckSchedule, s.jobs.CheckInstallments); err != nil {
		s.logger.Error("failed to schedule installment billing check", "error", err)
	} else {
		s.logger.Info("scheduled installment billing check", "schedule", s.config.BillingCheckSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
