/**
 * @description
 * Cron scheduler driving the reconciler sweep. The host process starts it
 * once at boot and stops it cleanly during shutdown; the sweep interval is
 * a standard cron expression (hourly by default).
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler owns the cron loop for the reconciler.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	logger     *slog.Logger
	schedule   string
}

// NewScheduler creates a scheduler running the sweep on the given cron
// expression. Panics inside a sweep are recovered and logged.
func NewScheduler(reconciler *Reconciler, schedule string, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:       c,
		reconciler: reconciler,
		logger:     logger,
		schedule:   schedule,
	}
}

// Start registers the sweep job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.reconciler.RunSweep(context.Background()); err != nil {
			s.logger.Error("scheduled sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("reconciler sweep scheduled", "schedule", s.schedule)
	return nil
}

// Stop halts the cron loop and returns a context that closes once any
// running sweep has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
