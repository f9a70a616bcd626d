package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	perrors "git.home.luguber.info/inful/presto/internal/errors"
)

// Scheduler wraps a gocron scheduler for periodic republishing.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// Every schedules a periodic run of runner and returns the job ID. A tick
// that arrives while the previous one is still running is rescheduled.
func (s *Scheduler) Every(ctx context.Context, interval time.Duration, runner *Runner) (string, error) {
	if interval <= 0 {
		return "", perrors.ValidationFailed("interval", fmt.Sprintf("must be positive, got %s", interval))
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { _ = runner.Run(ctx, TriggerInterval) }),
		gocron.WithName("republish"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create periodic publish job: %w", err)
	}
	return job.ID().String(), nil
}
