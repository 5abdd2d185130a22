// Package config loads sync run configurations from CUE files.
//
// A config file holds one or more named runs under `sync:`:
//
//	sync: nightly_products: {
//		tenant:       "acme"
//		kind:         "product"
//		limit_policy: "skip"
//	}
//
// Each entry is validated against the embedded #SyncConfig schema before it
// is decoded, so type and range errors carry CUE source positions.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/engine"
	"github.com/roach88/marketsync/internal/limits"
	"github.com/roach88/marketsync/internal/market"
)

//go:embed schema.cue
var schemaSource string

// SyncConfig is one named run configuration.
type SyncConfig struct {
	Name        string      `json:"-"`
	Tenant      string      `json:"tenant"`
	Kind        string      `json:"kind"`
	PageSize    int         `json:"page_size"`
	LimitPolicy string      `json:"limit_policy"`
	BatchPause  *BatchPause `json:"batch_pause,omitempty"`
	FetchRate   *FetchRate  `json:"fetch_rate,omitempty"`
	Filters     Filters     `json:"filters"`
	Limits      *Limits     `json:"limits,omitempty"`
}

// BatchPause overrides the engine's cooperative pause.
type BatchPause struct {
	Every    int    `json:"every"`
	Duration string `json:"duration"`
}

// FetchRate paces page fetches with a token bucket.
type FetchRate struct {
	PerSecond float64 `json:"per_second"`
	Burst     int     `json:"burst"`
}

// Filters mirrors market.Filters with RFC 3339 dates.
type Filters struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Status    string `json:"status,omitempty"`
	OrderBy   string `json:"order_by,omitempty"`
	Direction string `json:"direction,omitempty"`
	Approved  *bool  `json:"approved,omitempty"`
	Archived  *bool  `json:"archived,omitempty"`
}

// Limits overrides the tenant's stored plan for this run. A nil field means
// unlimited for that resource.
type Limits struct {
	Order   *int `json:"order,omitempty"`
	Product *int `json:"product,omitempty"`
	Claim   *int `json:"claim,omitempty"`
}

// Error is a configuration error, positioned in the CUE source when the
// position is known.
type Error struct {
	Name    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	prefix := ""
	if e.Pos.IsValid() {
		prefix = fmt.Sprintf("%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	if e.Name != "" {
		return fmt.Sprintf("%ssync.%s: %s", prefix, e.Name, e.Message)
	}
	return prefix + e.Message
}

// IsConfigError returns true if err is a config Error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Load reads and parses a CUE config file.
func Load(path string) ([]SyncConfig, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, src)
}

// Parse validates src and returns its runs sorted by name.
func Parse(filename string, src []byte) ([]SyncConfig, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#SyncConfig"))

	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, cueError("", err)
	}

	syncs := v.LookupPath(cue.ParsePath("sync"))
	if !syncs.Exists() {
		return nil, &Error{Message: "no sync entries found", Pos: v.Pos()}
	}
	iter, err := syncs.Fields()
	if err != nil {
		return nil, cueError("", err)
	}

	var out []SyncConfig
	for iter.Next() {
		name := iter.Label()
		entry := def.Unify(iter.Value())
		if err := entry.Validate(cue.Concrete(true)); err != nil {
			return nil, cueError(name, err)
		}

		var sc SyncConfig
		if err := entry.Decode(&sc); err != nil {
			return nil, cueError(name, err)
		}
		sc.Name = name
		if _, err := sc.RunConfig(); err != nil {
			return nil, &Error{Name: name, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		if _, err := sc.EngineOptions(); err != nil {
			return nil, &Error{Name: name, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		out = append(out, sc)
	}
	if len(out) == 0 {
		return nil, &Error{Message: "no sync entries found", Pos: syncs.Pos()}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Find returns the run called name.
func Find(configs []SyncConfig, name string) (SyncConfig, error) {
	for _, c := range configs {
		if c.Name == name {
			return c, nil
		}
	}
	return SyncConfig{}, fmt.Errorf("no sync entry named %q", name)
}

// RunConfig converts the entry into an engine run configuration.
func (c SyncConfig) RunConfig() (engine.RunConfig, error) {
	kind, err := canon.ParseKind(c.Kind)
	if err != nil {
		return engine.RunConfig{}, err
	}
	policy, err := limits.ParsePolicy(c.LimitPolicy)
	if err != nil {
		return engine.RunConfig{}, err
	}
	filters, err := c.Filters.market()
	if err != nil {
		return engine.RunConfig{}, err
	}

	rc := engine.RunConfig{
		Tenant:      c.Tenant,
		Kind:        kind,
		PageSize:    c.PageSize,
		Filters:     filters,
		LimitPolicy: policy,
	}
	if c.Limits != nil {
		rc.Limits = c.Limits.plan()
	}
	if err := rc.Validate(); err != nil {
		return engine.RunConfig{}, err
	}
	return rc, nil
}

// EngineOptions returns the engine options the entry overrides.
func (c SyncConfig) EngineOptions() ([]engine.EngineOption, error) {
	var opts []engine.EngineOption
	if c.BatchPause != nil {
		d, err := time.ParseDuration(c.BatchPause.Duration)
		if err != nil {
			return nil, fmt.Errorf("batch_pause.duration: %w", err)
		}
		opts = append(opts, engine.WithBatchPause(c.BatchPause.Every, d))
	}
	return opts, nil
}

// Fetcher wraps next with the entry's fetch rate, if any.
func (c SyncConfig) Fetcher(next market.Fetcher) market.Fetcher {
	if c.FetchRate == nil || c.FetchRate.PerSecond <= 0 {
		return next
	}
	return market.NewRateLimited(next, c.FetchRate.PerSecond, c.FetchRate.Burst)
}

func (f Filters) market() (market.Filters, error) {
	out := market.Filters{
		Status:    f.Status,
		OrderBy:   market.ClaimOrder(f.OrderBy),
		Direction: market.Direction(f.Direction),
		Approved:  f.Approved,
		Archived:  f.Archived,
	}
	var err error
	if out.StartDate, err = parseDate("filters.start_date", f.StartDate); err != nil {
		return market.Filters{}, err
	}
	if out.EndDate, err = parseDate("filters.end_date", f.EndDate); err != nil {
		return market.Filters{}, err
	}
	return out, nil
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %q is not an RFC 3339 timestamp", field, s)
	}
	return t.UTC(), nil
}

func (l Limits) plan() limits.Plan {
	p := limits.Plan{}
	for res, v := range map[limits.Resource]*int{
		limits.ResourceOrder:   l.Order,
		limits.ResourceProduct: l.Product,
		limits.ResourceClaim:   l.Claim,
	} {
		if v != nil {
			p[res] = *v
		}
	}
	return p
}

// cueError converts the first CUE error into a positioned Error.
func cueError(name string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Name: name, Message: err.Error()}
	}
	first := errs[0]
	ce := &Error{Name: name, Message: first.Error()}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		ce.Pos = pos[0]
	}
	return ce
}
