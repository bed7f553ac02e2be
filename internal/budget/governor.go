// Package budget computes the daily spend ratio and maps it onto the
// pipeline's operating mode. The window resets at UTC midnight purely through
// the cost-sum cutoff; no timer is involved.
package budget

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentpipe/internal/metrics"
)

// Mode is the orchestrator's workload level.
type Mode string

const (
	ModeFull    Mode = "FULL"
	ModeReduced Mode = "REDUCED"
	ModeMinimal Mode = "MINIMAL"
	ModePaused  Mode = "PAUSED"
)

// Ratio thresholds, evaluated highest first.
const (
	reducedAt = 0.70
	minimalAt = 0.85
	pausedAt  = 0.95
)

// Store sums the cost ledger.
type Store interface {
	SumCostSince(ctx context.Context, since time.Time) (float64, error)
}

// Governor evaluates spend against the daily limit and tracks the current
// mode. Evaluation is idempotent; only transitions log.
type Governor struct {
	store      Store
	dailyLimit float64
	recorder   metrics.Recorder
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	current Mode
}

// New builds a governor. A non-positive limit pins the mode to FULL.
func New(store Store, dailyLimitUSD float64, recorder metrics.Recorder, logger *slog.Logger) *Governor {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Governor{
		store:      store,
		dailyLimit: dailyLimitUSD,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
		current:    ModeFull,
	}
}

// ModeFor recomputes today's spend ratio and returns the resulting mode,
// logging the transition when the mode changed.
func (g *Governor) ModeFor(ctx context.Context) (Mode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dailyLimit <= 0 {
		return ModeFull, nil
	}

	now := g.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	cost, err := g.store.SumCostSince(ctx, midnight)
	if err != nil {
		// Spend unknown: hold the last known mode rather than flapping.
		return g.current, err
	}

	ratio := cost / g.dailyLimit
	mode := modeFor(ratio)

	g.recorder.SetBudgetRatio(ratio)
	g.recorder.SetOperatingMode(string(mode))

	if mode != g.current {
		g.logger.Info("Operating mode transition",
			slog.String("old", string(g.current)),
			slog.String("new", string(mode)),
			slog.Float64("ratio", ratio),
			slog.Float64("cost_today_usd", cost))
		g.current = mode
	}
	return mode, nil
}

// Current returns the last evaluated mode without touching the store.
func (g *Governor) Current() Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

func modeFor(ratio float64) Mode {
	switch {
	case ratio >= pausedAt:
		return ModePaused
	case ratio >= minimalAt:
		return ModeMinimal
	case ratio >= reducedAt:
		return ModeReduced
	default:
		return ModeFull
	}
}

// Per-mode policy. The creator limit is how many discoveries one creation
// tick may draft for; zero means the stage is skipped entirely.

// CreatorLimit returns the creation budget for a mode.
func (m Mode) CreatorLimit() int {
	switch m {
	case ModeFull:
		return 10
	case ModeReduced:
		return 3
	default:
		return 0
	}
}

// EngagementEnabled reports whether the engagement sweep runs.
func (m Mode) EngagementEnabled() bool {
	return m == ModeFull
}

// VideoEnabled reports whether deferred video generation runs.
func (m Mode) VideoEnabled() bool {
	return m == ModeFull
}

// LoopEnabled reports whether a named loop body may run. PAUSED stops every
// body; MINIMAL keeps only scout, metrics and feedback alive.
func (m Mode) LoopEnabled(loop string) bool {
	switch m {
	case ModePaused:
		return false
	case ModeMinimal:
		switch loop {
		case "scout", "metrics", "feedback", "review":
			return true
		default:
			return false
		}
	case ModeReduced:
		return loop != "engagement"
	default:
		return true
	}
}
