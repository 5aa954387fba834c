// Package scheduler runs the periodic maintenance passes on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// AddJob registers fn to run on the given standard cron spec. The
// context is the one passed to Start and carries the process lifetime.
func (s *Scheduler) AddJob(ctx context.Context, spec string, name string, fn func(context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		slog.InfoContext(ctx, "Running scheduled job", "job", name)
		fn(ctx)
	})
	if err != nil {
		return fmt.Errorf("add cron job %s: %w", name, err)
	}
	slog.InfoContext(ctx, "Scheduled job registered", "job", name, "spec", spec)
	return nil
}

// Start launches the cron loop and blocks until the context is
// cancelled, then waits for running jobs to finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	slog.Info("Scheduler stopped")
}
