// Package maintenance schedules background upkeep of the cache files.
package maintenance

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

const defaultSweepSpec = "@hourly"

// Sweepable purges expired cache entries.
type Sweepable interface {
	Sweep(ctx context.Context) (int64, error)
}

// Sweeper runs Sweepable on a cron schedule.
type Sweeper struct {
	target   Sweepable
	schedule string
	cron     *cron.Cron
}

// Option customises a Sweeper.
type Option func(*Sweeper)

// WithCron overrides the scheduler, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithSchedule sets the cron spec. Empty keeps the default.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

func NewSweeper(target Sweepable, opts ...Option) *Sweeper {
	s := &Sweeper{
		target:   target,
		schedule: defaultSweepSpec,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Start registers the sweep job and launches the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			slog.Warn("cache sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler. The returned context is done once a running
// sweep has finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce sweeps immediately.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.target.Sweep(ctx)
	if err != nil {
		return n, err
	}
	if n > 0 {
		slog.InfoContext(ctx, "expired cache entries swept", "count", n)
	}
	return n, nil
}
