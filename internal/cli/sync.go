package cli

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/config"
	"github.com/roach88/marketsync/internal/engine"
	"github.com/roach88/marketsync/internal/limits"
	"github.com/roach88/marketsync/internal/market"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Database    string
	Config      string
	Name        string
	Fixture     string
	Tenant      string
	Kind        string
	Policy      string
	PageSize    int
	FetchRate   float64
	Burst       int
	MetricsFile string

	// Fetcher replaces the fixture fetcher (for testing).
	Fetcher market.Fetcher

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, the engine default (UUIDv7) is used.
	RunIDs engine.RunIDGenerator
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one paginated sync",
		Long: `Run one paginated sync of an entity kind for a tenant.

The run is described either by flags or by a named entry of a CUE sync
config. Pages are served from a captured YAML listing (--fixture).

Exit codes:
  0 - Run completed
  1 - Run failed, was truncated or aborted (the report is still printed)
  2 - Command error (invalid flags or config, database not found, etc.)

Examples:
  marketsync sync --db ./m.db --fixture ./listing.yaml --tenant acme --kind product --policy skip
  marketsync sync --db ./m.db --config ./sync.cue --name products --fixture ./listing.yaml
  marketsync sync --db ./m.db --fixture ./listing.yaml --tenant acme --kind claim --policy abort --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "CUE sync config file")
	cmd.Flags().StringVar(&opts.Name, "name", "", "sync entry to run from --config")
	cmd.Flags().StringVar(&opts.Fixture, "fixture", "", "YAML listing to serve pages from")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "entity kind (order|product|claim)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "limit policy (skip|abort)")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, fmt.Sprintf("records per page (default %d)", engine.DefaultPageSize))
	cmd.Flags().Float64Var(&opts.FetchRate, "fetch-rate", 0, "max page fetches per second (0 = unpaced)")
	cmd.Flags().IntVar(&opts.Burst, "burst", 1, "page fetch burst when --fetch-rate is set")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	log := newLogger(opts.Verbose, cmd.ErrOrStderr())

	rc, engOpts, wrap, err := resolveSync(opts, cmd.Flags().Changed)
	if err != nil {
		return err
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		if opts.Fixture == "" {
			return NewExitError(ExitCommandError, "--fixture is required")
		}
		fx, err := market.LoadFixture(opts.Fixture)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load fixture", err)
		}
		fetcher = fx
	}
	fetcher = wrap(fetcher)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	reg := prometheus.NewRegistry()
	engOpts = append(engOpts,
		engine.WithLogger(log),
		engine.WithMetrics(engine.NewMetrics(reg)),
	)
	if opts.RunIDs != nil {
		engOpts = append(engOpts, engine.WithRunIDs(opts.RunIDs))
	}
	eng := engine.New(st, engOpts...)

	ctx, stop := signalContext(cmd, log)
	defer stop()

	run, err := eng.Run(ctx, rc, fetcher)
	if run == nil {
		return WrapExitError(ExitCommandError, "sync failed", err)
	}

	if opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	if err := opts.formatter(cmd).RunResult(run); err != nil {
		return err
	}
	if run.Status != canon.RunCompleted {
		return NewExitError(ExitFailure, runMessage(run))
	}
	return nil
}

// runFlags describe a run; a config entry describes the same things.
var runFlags = []string{"tenant", "kind", "policy", "page-size", "fetch-rate", "burst"}

// resolveSync builds the run configuration from --config or from flags.
// The returned wrap function applies fetch pacing.
func resolveSync(opts *SyncOptions, changed func(name string) bool) (engine.RunConfig, []engine.EngineOption, func(market.Fetcher) market.Fetcher, error) {
	if opts.Config != "" {
		var conflicts []string
		for _, name := range runFlags {
			if changed(name) {
				conflicts = append(conflicts, "--"+name)
			}
		}
		if len(conflicts) > 0 {
			return engine.RunConfig{}, nil, nil, NewExitError(ExitCommandError,
				fmt.Sprintf("--config cannot be combined with %s; set them in the config entry", strings.Join(conflicts, ", ")))
		}
		configs, err := config.Load(opts.Config)
		if err != nil {
			return engine.RunConfig{}, nil, nil, WrapExitError(ExitCommandError, "invalid config", err)
		}
		sc, err := pickConfig(configs, opts.Name)
		if err != nil {
			return engine.RunConfig{}, nil, nil, WrapExitError(ExitCommandError, "invalid config", err)
		}
		rc, err := sc.RunConfig()
		if err != nil {
			return engine.RunConfig{}, nil, nil, WrapExitError(ExitCommandError, "invalid config", err)
		}
		engOpts, err := sc.EngineOptions()
		if err != nil {
			return engine.RunConfig{}, nil, nil, WrapExitError(ExitCommandError, "invalid config", err)
		}
		return rc, engOpts, sc.Fetcher, nil
	}

	if opts.Name != "" {
		return engine.RunConfig{}, nil, nil, NewExitError(ExitCommandError, "--name requires --config")
	}
	kind, err := canon.ParseKind(opts.Kind)
	if err != nil {
		return engine.RunConfig{}, nil, nil, WrapExitError(ExitCommandError, "invalid --kind", err)
	}
	policy, err := limits.ParsePolicy(opts.Policy)
	if err != nil {
		return engine.RunConfig{}, nil, nil, WrapExitError(ExitCommandError, "invalid --policy", err)
	}
	rc := engine.RunConfig{
		Tenant:      opts.Tenant,
		Kind:        kind,
		PageSize:    opts.PageSize,
		LimitPolicy: policy,
	}
	if err := rc.Validate(); err != nil {
		return engine.RunConfig{}, nil, nil, WrapExitError(ExitCommandError, "invalid flags", err)
	}

	wrap := func(f market.Fetcher) market.Fetcher {
		if opts.FetchRate <= 0 {
			return f
		}
		return market.NewRateLimited(f, opts.FetchRate, opts.Burst)
	}
	return rc, nil, wrap, nil
}

// pickConfig selects the entry called name, or the only entry when name
// is empty.
func pickConfig(configs []config.SyncConfig, name string) (config.SyncConfig, error) {
	if name != "" {
		return config.Find(configs, name)
	}
	if len(configs) != 1 {
		names := make([]string, len(configs))
		for i, c := range configs {
			names[i] = c.Name
		}
		return config.SyncConfig{}, fmt.Errorf("config defines %d sync entries %v; choose one with --name", len(configs), names)
	}
	return configs[0], nil
}
