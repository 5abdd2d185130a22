package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/marketsync/internal/limits"
	"github.com/roach88/marketsync/internal/store"
)

// Engine runs marketplace synchronization against one store.
//
// An Engine holds no per-run state and is safe for concurrent use: each
// Run owns its own resolver cache, seen set and report. The storage handle
// is injected; there is no package-level client.
type Engine struct {
	store   *store.Store
	limits  limits.Checker // nil: load the tenant's plan from the store
	clock   Clock
	runIDs  RunIDGenerator
	logger  *slog.Logger
	metrics *Metrics

	pauseEvery    int
	pause         time.Duration
	cacheCapacity int
	saveRuns      bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the clock used for run timestamps.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRunIDs sets the run id generator. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// WithBatchPause sets the cooperative pause: after every `every` records
// the run sleeps for d. Either value <= 0 disables pausing.
//
// Default: every 50 records, 25ms.
func WithBatchPause(every int, d time.Duration) EngineOption {
	return func(e *Engine) {
		e.pauseEvery = every
		e.pause = d
	}
}

// WithMetrics sets the Prometheus collectors. Default: none.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithCacheCapacity bounds each run's sub-entity cache.
// Default: DefaultCacheCapacity.
func WithCacheCapacity(n int) EngineOption {
	return func(e *Engine) {
		e.cacheCapacity = n
	}
}

// WithLimits replaces the tenant plan lookup with a fixed checker for every
// run and push. A RunConfig.Limits still takes precedence.
func WithLimits(c limits.Checker) EngineOption {
	return func(e *Engine) {
		e.limits = c
	}
}

// WithoutRunHistory stops finalized reports from being written to the
// store's sync_runs table.
func WithoutRunHistory() EngineOption {
	return func(e *Engine) {
		e.saveRuns = false
	}
}

// New creates an Engine over s.
func New(s *store.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:         s,
		clock:         SystemClock,
		runIDs:        UUIDv7Generator{},
		logger:        slog.Default(),
		pauseEvery:    DefaultPauseEvery,
		pause:         DefaultPause,
		cacheCapacity: DefaultCacheCapacity,
		saveRuns:      true,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// checkerFor picks the limit collaborator for a run: the run's own, then
// the engine's, then the tenant plan stored in plan_limits. The plan is
// read before any record transaction opens.
func (e *Engine) checkerFor(ctx context.Context, tenant string, override limits.Checker) (limits.Checker, error) {
	if override != nil {
		return override, nil
	}
	if e.limits != nil {
		return e.limits, nil
	}
	plan, err := e.store.LoadPlan(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("load plan for %s: %w", tenant, err)
	}
	return plan, nil
}
