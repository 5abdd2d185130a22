package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/limits"
	"github.com/roach88/marketsync/internal/mapper"
	"github.com/roach88/marketsync/internal/market"
)

// Page size bounds accepted by the marketplace listings.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// RunConfig describes one run. LimitPolicy has no default and must be set.
type RunConfig struct {
	Tenant      string
	Kind        canon.Kind
	PageSize    int // 0 means DefaultPageSize
	Filters     market.Filters
	LimitPolicy limits.Policy

	// Limits overrides the tenant plan for this run.
	Limits limits.Checker
}

// Validate reports every problem with the configuration at once.
func (c RunConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Tenant) == "" {
		errs = append(errs, ErrTenantRequired)
	}
	if _, err := canon.ParseKind(string(c.Kind)); err != nil {
		errs = append(errs, err)
	}
	if c.PageSize < 0 || c.PageSize > MaxPageSize {
		errs = append(errs, fmt.Errorf("page size %d out of range 1..%d", c.PageSize, MaxPageSize))
	}
	if !c.LimitPolicy.Valid() {
		errs = append(errs, errors.New("limit policy must be set explicitly (skip or abort)"))
	}
	if err := c.Filters.Validate(c.Kind); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid run config: %w", errors.Join(errs...))
	}
	return nil
}

func (c RunConfig) pageSize() int {
	if c.PageSize == 0 {
		return DefaultPageSize
	}
	return c.PageSize
}

// runState is owned by exactly one Run.
type runState struct {
	cfg      RunConfig
	report   *report
	resolver *resolver
	checker  limits.Checker
	seen     canon.IDSet
	pacer    *pacer
	log      *slog.Logger
}

// Run walks the listing for cfg.Kind from page 0 and persists every record.
//
// Termination, checked in order after each page:
//  1. the page's totalPages has been reached
//  2. claims only: the page held fewer records than requested
//  3. the first page was empty (zero records, not an error)
//
// A later page that is empty before totalPages is reached is treated as a
// truncated listing.
//
// The returned report is always finalized, also when err is non-nil. err is
// non-nil only for run-level failures: an invalid config, a plan or cache
// load failure, or a failed or malformed first page (a *FetchError).
func (e *Engine) Run(ctx context.Context, cfg RunConfig, fetcher market.Fetcher) (*canon.SyncRun, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	run := &canon.SyncRun{
		ID:        e.runIDs.Generate(),
		Tenant:    cfg.Tenant,
		Kind:      cfg.Kind,
		StartedAt: e.clock.Now(),
		Errors:    []canon.RecordError{},
	}
	log := e.logger.With("run_id", run.ID, "tenant", cfg.Tenant, "kind", cfg.Kind)
	log.Info("sync run started", "page_size", cfg.pageSize(), "limit_policy", cfg.LimitPolicy)

	st := &runState{
		cfg:      cfg,
		report:   &report{run: run, log: log, metrics: e.metrics},
		resolver: newResolver(e.cacheCapacity),
		seen:     canon.NewIDSet(),
		pacer:    newPacer(e.pauseEvery, e.pause),
		log:      log,
	}

	var err error
	if st.checker, err = e.checkerFor(ctx, cfg.Tenant, cfg.Limits); err != nil {
		return e.finish(ctx, st, canon.RunFailed, err.Error()), err
	}
	if err := st.resolver.preseed(ctx, e.store, cfg.Tenant, sharedKindsFor(cfg.Kind)...); err != nil {
		return e.finish(ctx, st, canon.RunFailed, err.Error()), err
	}
	log.Debug("resolver cache seeded", "entries", st.resolver.cache.len())

	status, reason, err := e.walk(ctx, st, fetcher)
	if err != nil {
		return e.finish(ctx, st, status, reason), err
	}

	if cfg.Kind.FullSnapshot() {
		e.reconcileRun(ctx, st, status)
	}
	return e.finish(ctx, st, status, reason), nil
}

// walk fetches and processes pages until a termination condition holds.
// It returns a non-nil error only for a first-page failure.
func (e *Engine) walk(ctx context.Context, st *runState, fetcher market.Fetcher) (canon.RunStatus, string, error) {
	size := st.cfg.pageSize()

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return canon.RunAborted, "cancelled: " + err.Error(), nil
		}

		req := market.PageRequest{Page: page, Size: size, Filters: st.cfg.Filters}
		pg, err := fetcher.FetchPage(ctx, st.cfg.Kind, req)
		if err == nil && pg.Malformed() {
			err = ErrMalformedPage
		}
		if err != nil {
			fe := &FetchError{Page: page, Err: err}
			if page == 0 {
				st.log.Error("first page failed", "error", err)
				return canon.RunFailed, fe.Error(), fe
			}
			if ctx.Err() != nil {
				return canon.RunAborted, "cancelled: " + ctx.Err().Error(), nil
			}
			st.log.Warn("page failed, stopping early", "page", page, "error", err)
			return canon.RunTruncated, fe.Error(), nil
		}
		st.report.run.Pages++

		st.log.Debug("page fetched",
			"page", page,
			"records", len(pg.Records),
			"total_pages", *pg.TotalPages,
			"total_elements", *pg.TotalElements,
		)

		if page == 0 && len(pg.Records) == 0 {
			st.log.Info("first page empty")
			return canon.RunCompleted, "", nil
		}

		for i, raw := range pg.Records {
			if err := ctx.Err(); err != nil {
				return canon.RunAborted, "cancelled: " + err.Error(), nil
			}
			if abort := e.process(ctx, st, page, i, raw); abort != "" {
				return canon.RunAborted, abort, nil
			}
			if err := st.pacer.tick(ctx); err != nil {
				return canon.RunAborted, "cancelled: " + err.Error(), nil
			}
		}

		switch {
		case pg.LastByTotal(page):
			return canon.RunCompleted, "", nil
		case st.cfg.Kind.ShortPageTerminates() && len(pg.Records) < size:
			return canon.RunCompleted, "", nil
		case len(pg.Records) == 0:
			st.log.Warn("empty page before reported total", "page", page, "total_pages", *pg.TotalPages)
			return canon.RunTruncated, fmt.Sprintf("page %d empty before total of %d pages", page, *pg.TotalPages), nil
		}
	}
}

// process maps and persists one record. It returns a non-empty abort
// reason when the run must stop (abort-on-limit).
func (e *Engine) process(ctx context.Context, st *runState, page, index int, raw json.RawMessage) string {
	rec, err := mapper.Map(st.cfg.Kind, raw)
	if err != nil {
		key := mapper.ProbeKey(st.cfg.Kind, raw)
		var me *mapper.MappingError
		if errors.As(err, &me) && !me.NaturalKey.IsZero() {
			key = me.NaturalKey
		}
		// The record exists upstream even though it cannot be stored here;
		// a snapshot delete must not remove its local copy.
		st.seen.Add(key)
		st.report.failed(key, page, index, err)
		return ""
	}

	key := rec.NaturalKey()
	st.seen.Add(key)

	out, err := e.upsertRoot(ctx, st.cfg.Tenant, rec, st.resolver, st.checker)
	if err != nil {
		class := st.report.failed(key, page, index, err)
		if class == canon.ClassLimit && st.cfg.LimitPolicy == limits.AbortOnLimit {
			return err.Error()
		}
		return ""
	}
	st.report.succeeded(out.Operation)
	return ""
}

// reconcileRun deletes the snapshot complement when the run consumed the
// whole listing. The skip reason is logged and flagged on the report.
func (e *Engine) reconcileRun(ctx context.Context, st *runState, status canon.RunStatus) {
	run := st.report.run
	skip := ""
	switch {
	case status != canon.RunCompleted:
		skip = "run did not consume the full listing (" + string(status) + ")"
	case len(st.seen) == 0:
		skip = "listing was empty"
	}
	if skip != "" {
		run.ReconcileSkipped = true
		st.log.Warn("snapshot reconciliation skipped", "reason", skip)
		return
	}

	deleted, err := e.Reconcile(ctx, st.cfg.Tenant, st.cfg.Kind, st.seen)
	if err != nil {
		run.ReconcileSkipped = true
		run.AbortReason = err.Error()
		st.log.Error("snapshot reconciliation failed", "error", err)
		return
	}
	run.Deleted = deleted
	st.log.Info("snapshot reconciled", "seen", len(st.seen), "deleted", deleted)
}

// finish finalizes the report exactly once and persists it.
func (e *Engine) finish(ctx context.Context, st *runState, status canon.RunStatus, reason string) *canon.SyncRun {
	run := st.report.run
	run.Status = status
	if reason != "" && run.AbortReason == "" {
		run.AbortReason = reason
	}
	run.FinishedAt = e.clock.Now()
	e.metrics.finished(run)

	st.log.Info("sync run finished",
		"status", run.Status,
		"pages", run.Pages,
		"created", run.Created,
		"updated", run.Updated,
		"deleted", run.Deleted,
		"failed", run.Failed,
		"reconcile_skipped", run.ReconcileSkipped,
		"cache_hits", st.resolver.hits,
		"cache_misses", st.resolver.misses,
	)

	if e.saveRuns {
		if err := e.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			st.log.Error("run report not saved", "error", err)
		}
	}
	return run
}
