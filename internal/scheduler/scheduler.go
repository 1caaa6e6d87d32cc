package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every tick.
type TickFunc func(ctx context.Context, now time.Time) error

// Options tune loop behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	StartupDelay time.Duration
}

// Loop drives one polling cadence with a fixed-delay sleep between
// ticks: the next tick is scheduled relative to when the previous one
// finished, so a slow upstream call never causes a burst of catch-up
// ticks.
type Loop struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Loop instance.
func New(opts Options, logger zerolog.Logger) *Loop {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Loop{
		opts: opts,
		logger: logger.With().
			Str("component", "scheduler").
			Str("loop", opts.Name).
			Logger(),
	}
}

// Run blocks, invoking the tick function until ctx is cancelled. Tick
// errors are logged and never terminate the loop; it runs indefinitely
// and self-heals on the next tick.
func (l *Loop) Run(ctx context.Context, tick TickFunc) error {
	if l.opts.StartupDelay > 0 {
		if err := l.sleep(ctx, l.opts.StartupDelay); err != nil {
			return err
		}
	}

	for {
		now := time.Now().UTC()
		l.logger.Debug().Time("tick", now).Msg("executing scheduled tick")

		if err := tick(ctx, now); err != nil {
			l.logger.Error().Err(err).Time("tick", now).Msg("tick execution failed")
		}

		if err := l.sleep(ctx, l.opts.Interval); err != nil {
			return err
		}
	}
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
