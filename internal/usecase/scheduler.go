package usecase

import (
	"context"
	"log/slog"
	"time"

	"TimelineWatch/internal/ports"
)

// Job is one periodic unit of work.
type Job func(ctx context.Context, trigger time.Time) error

// Scheduler wires a ticking driver with a job and logs its failures.
type Scheduler struct {
	name   string
	driver ports.Scheduler
	job    Job
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop one recurring job.
func NewScheduler(name string, driver ports.Scheduler, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{name: name, driver: driver, job: job, logger: logger.With("job", name)}
}

// Start registers the job with the provided driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.job == nil {
		return nil
	}

	run := func(trigger time.Time) {
		if err := s.job(ctx, trigger); err != nil {
			s.logger.Warn("scheduled job failed", "error", err)
		}
	}

	return s.driver.Start(ctx, run)
}

// Stop gracefully tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
