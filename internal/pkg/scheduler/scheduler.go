// Package scheduler runs a job on a cron expression.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// Job is one scheduled unit of work
type Job func(ctx context.Context) error

// Scheduler fires a job at every tick of a cron expression. A tick that
// arrives while the previous run is still going is skipped.
type Scheduler struct {
	name    string
	expr    string
	job     Job
	running atomic.Bool
	now     func() time.Time
	logger  zerolog.Logger
}

// New validates expr and builds a scheduler for job
func New(name, expr string, job Job, logger zerolog.Logger) (*Scheduler, error) {
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression %q", expr)
	}
	return &Scheduler{
		name:   name,
		expr:   expr,
		job:    job,
		now:    time.Now,
		logger: logger.With().Str("component", "scheduler").Str("job", name).Logger(),
	}, nil
}

// Start runs the schedule loop in the background until ctx is done
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Str("cron", s.expr).Msg("Scheduler started")
	go s.loop(ctx)
}

// RunNow executes the job once, unless a run is already in progress
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.running.CAS(false, true) {
		s.logger.Debug().Msg("Previous run still in progress, skipping")
		return nil
	}
	defer s.running.Store(false)

	started := s.now()
	if err := s.job(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled job failed")
		return err
	}
	s.logger.Debug().Dur("took", time.Since(started)).Msg("Scheduled job finished")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.expr, s.now(), false)
		if err != nil {
			s.logger.Error().Err(err).Str("cron", s.expr).Msg("Failed to compute next tick")
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}

		select {
		case <-time.After(wait):
			_ = s.RunNow(ctx)
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped")
			return
		}
	}
}
