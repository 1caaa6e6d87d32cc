package quota

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// window is the rolling budget period the upstream API bills against.
const window = 24 * time.Hour

// Governor tracks API units consumed within a rolling day window and
// admits or defers calls against a fixed budget. State is process
// lifetime only; a restart forgets prior spend.
type Governor struct {
	mu          sync.Mutex
	budget      int
	used        int
	windowStart time.Time
	now         func() time.Time
	logger      zerolog.Logger
}

// NewGovernor constructs a governor with the given daily unit budget.
func NewGovernor(budget int, logger zerolog.Logger) *Governor {
	g := &Governor{
		budget: budget,
		now:    time.Now,
		logger: logger.With().Str("component", "quota").Logger(),
	}
	g.windowStart = g.now()
	return g
}

// Reserve attempts to charge cost units against the current window.
// It reports false when granting would exceed the budget; the caller
// must skip or defer the call. The window resets lazily once 24h have
// elapsed since it opened.
func (g *Governor) Reserve(cost int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.windowStart) >= window {
		g.logger.Info().
			Int("units_consumed", g.used).
			Time("window_start", g.windowStart).
			Msg("quota window elapsed, resetting")
		g.used = 0
		g.windowStart = now
	}

	if g.used+cost > g.budget {
		g.logger.Warn().
			Int("cost", cost).
			Int("units_consumed", g.used).
			Int("budget", g.budget).
			Msg("quota reservation denied")
		return false
	}

	g.used += cost
	return true
}

// Usage returns the units consumed in the current window and when the
// window opened.
func (g *Governor) Usage() (int, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.used, g.windowStart
}
