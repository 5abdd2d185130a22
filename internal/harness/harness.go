package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/engine"
	"github.com/roach88/marketsync/internal/limits"
	"github.com/roach88/marketsync/internal/market"
	"github.com/roach88/marketsync/internal/store"
	"github.com/roach88/marketsync/internal/testutil"
)

// Harness executes one scenario against its own store.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	tenant string
	logger *slog.Logger
}

// RunOption configures a scenario execution.
type RunOption func(*Harness)

// WithLogger routes engine logs to l. Logs are discarded by default.
func WithLogger(l *slog.Logger) RunOption {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
// 1. Create fresh in-memory database and store the plan ceilings
// 2. Execute steps in order, checking each step's expect clause
// 3. Count the tenant's rows per table
// 4. Evaluate assertions
//
// An error is returned only when the scenario cannot be executed;
// expectation and assertion failures are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...RunOption) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		tenant: scenario.Tenant,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if h.tenant == "" {
		h.tenant = DefaultTenant
	}
	for _, opt := range opts {
		opt(h)
	}

	h.engine = engine.New(st,
		engine.WithLogger(h.logger),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithRunIDs(testutil.NewSequentialRunIDs("run")),
		engine.WithBatchPause(0, 0),
	)

	if err := h.applyPlan(ctx, scenario.Plan); err != nil {
		return nil, fmt.Errorf("failed to apply plan: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := h.executeStep(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		result.Steps = append(result.Steps, sr)
		for _, msg := range checkExpect(sr, step.Expect) {
			result.AddError(msg)
		}
	}

	state, err := h.stateCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count state: %w", err)
	}
	result.State = state

	actx := &AssertionContext{
		Store:  st,
		Tenant: h.tenant,
		Ctx:    ctx,
	}
	for _, errMsg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) applyPlan(ctx context.Context, plan map[string]int) error {
	for name, ceiling := range plan {
		res, err := limits.ParseResource(name)
		if err != nil {
			return err
		}
		if err := h.store.SetCeiling(ctx, h.tenant, res, ceiling); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step) (StepResult, error) {
	if step.Sync != nil {
		return h.executeSync(ctx, index, step.Sync)
	}
	return h.executePush(ctx, index, step.Push)
}

func (h *Harness) executeSync(ctx context.Context, index int, s *SyncStep) (StepResult, error) {
	kind, err := canon.ParseKind(s.Kind)
	if err != nil {
		return StepResult{}, err
	}
	policy, err := limits.ParsePolicy(s.Policy)
	if err != nil {
		return StepResult{}, err
	}

	var fx market.Fixture
	switch kind {
	case canon.KindOrder:
		fx.Orders = s.Pages
	case canon.KindProduct:
		fx.Products = s.Pages
	case canon.KindClaim:
		fx.Claims = s.Pages
	}
	fetcher, err := market.NewFixtureFetcher(fx)
	if err != nil {
		return StepResult{}, err
	}

	cfg := engine.RunConfig{
		Tenant:      h.tenant,
		Kind:        kind,
		PageSize:    s.PageSize,
		LimitPolicy: policy,
	}
	// A first-page failure returns the finalized run alongside the error;
	// the run's status carries the outcome.
	run, err := h.engine.Run(ctx, cfg, fetcher)
	if run == nil {
		return StepResult{}, err
	}

	return StepResult{
		Step: index,
		Type: "sync",
		Kind: kind,
		Run:  summarizeRun(run),
	}, nil
}

func (h *Harness) executePush(ctx context.Context, index int, p *PushStep) (StepResult, error) {
	kind, err := canon.ParseKind(p.Kind)
	if err != nil {
		return StepResult{}, err
	}
	raw, err := json.Marshal(p.Record)
	if err != nil {
		return StepResult{}, fmt.Errorf("encode record: %w", err)
	}

	var res engine.PushResult
	pusher := h.engine.NewPusher(func(r engine.PushResult) {
		res = r
	})
	pusher.Enqueue(engine.Push{Tenant: h.tenant, Kind: kind, Raw: raw})
	pusher.Close()
	if err := pusher.Run(ctx); err != nil {
		return StepResult{}, err
	}

	summary := &PushSummary{NaturalKey: res.NaturalKey}
	if res.Err != nil {
		summary.ErrorClass = engine.Classify(res.Err)
	} else {
		summary.Operation = string(res.Outcome.Operation)
	}

	return StepResult{
		Step: index,
		Type: "push",
		Kind: kind,
		Push: summary,
	}, nil
}

// stateCounts counts the tenant's root and shared rows, keyed by kind name.
func (h *Harness) stateCounts(ctx context.Context) (map[string]int, error) {
	state := make(map[string]int)
	for _, kind := range canon.Kinds {
		n, err := h.store.Count(ctx, h.tenant, kind)
		if err != nil {
			return nil, err
		}
		state[string(kind)] = n
	}
	for _, shared := range store.SharedKinds {
		n, err := h.store.CountShared(ctx, h.tenant, shared)
		if err != nil {
			return nil, err
		}
		state[string(shared)] = n
	}
	return state, nil
}

// checkExpect compares a step result with its expect clause and returns
// one message per mismatch.
func checkExpect(sr StepResult, exp *StepExpect) []string {
	if exp == nil {
		return nil
	}

	var errs []string
	mismatch := func(field string, want, got any) {
		errs = append(errs, fmt.Sprintf("steps[%d].expect.%s: expected %v, got %v", sr.Step, field, want, got))
	}

	if sr.Push != nil {
		if exp.Operation != "" && exp.Operation != sr.Push.Operation {
			mismatch("operation", exp.Operation, sr.Push.Operation)
		}
		if exp.ErrorClass != "" && exp.ErrorClass != string(sr.Push.ErrorClass) {
			mismatch("error_class", exp.ErrorClass, sr.Push.ErrorClass)
		}
		return errs
	}

	run := sr.Run
	if exp.Status != "" && exp.Status != string(run.Status) {
		mismatch("status", exp.Status, run.Status)
	}
	for _, c := range []struct {
		field string
		want  *int
		got   int
	}{
		{"pages", exp.Pages, run.Pages},
		{"created", exp.Created, run.Created},
		{"updated", exp.Updated, run.Updated},
		{"deleted", exp.Deleted, run.Deleted},
		{"failed", exp.Failed, run.Failed},
	} {
		if c.want != nil && *c.want != c.got {
			mismatch(c.field, *c.want, c.got)
		}
	}
	if exp.ReconcileSkipped != nil && *exp.ReconcileSkipped != run.ReconcileSkipped {
		mismatch("reconcile_skipped", *exp.ReconcileSkipped, run.ReconcileSkipped)
	}
	if exp.ErrorClasses != nil {
		got := make([]string, 0, len(run.Errors))
		for _, e := range run.Errors {
			got = append(got, string(e.Class))
		}
		if !slices.Equal(exp.ErrorClasses, got) {
			mismatch("error_classes", exp.ErrorClasses, got)
		}
	}
	return errs
}
