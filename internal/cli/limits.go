package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/limits"
)

// LimitsOptions holds flags shared by the limits subcommands.
type LimitsOptions struct {
	*RootOptions
	Database string
	Tenant   string
}

// Usage is one resource line of a tenant's plan.
type Usage struct {
	Resource limits.Resource `json:"resource"`
	Current  int             `json:"current"`
	Ceiling  *int            `json:"ceiling"` // nil means unlimited
}

// PlanUsage is the limits show report.
type PlanUsage struct {
	Tenant    string  `json:"tenant"`
	Resources []Usage `json:"resources"`
}

func (p *PlanUsage) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan for %s:\n", p.Tenant)
	for _, u := range p.Resources {
		if u.Ceiling == nil {
			fmt.Fprintf(&b, "  %-8s %d (unlimited)\n", u.Resource, u.Current)
			continue
		}
		fmt.Fprintf(&b, "  %-8s %d of %d\n", u.Resource, u.Current, *u.Ceiling)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewLimitsCommand creates the limits command.
func NewLimitsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LimitsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Show or change a tenant's plan ceilings",
		Long: `Show or change the per-tenant ceilings that gate record creation.

A resource without a ceiling is unlimited. Updates to existing records are
never gated.

Examples:
  marketsync limits show --db ./m.db --tenant acme
  marketsync limits set product 500 --db ./m.db --tenant acme
  marketsync limits clear product --db ./m.db --tenant acme`,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.PersistentFlags().StringVar(&opts.Tenant, "tenant", "", "tenant id (required)")
	_ = cmd.MarkPersistentFlagRequired("db")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Show ceilings and current usage",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLimitsShow(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "set <resource> <ceiling>",
		Short:         "Set the ceiling for a resource",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLimitsSet(opts, cmd, args[0], args[1])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "clear <resource>",
		Short:         "Remove the ceiling for a resource",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLimitsClear(opts, cmd, args[0])
		},
	})

	return cmd
}

func runLimitsShow(opts *LimitsOptions, cmd *cobra.Command) error {
	log := newLogger(opts.Verbose, cmd.ErrOrStderr())

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	ctx := cmd.Context()
	plan, err := st.LoadPlan(ctx, opts.Tenant)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load plan", err)
	}

	usage := &PlanUsage{Tenant: opts.Tenant}
	for _, kind := range canon.Kinds {
		res := limits.ResourceFor(kind)
		n, err := st.Count(ctx, opts.Tenant, kind)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to count "+string(kind), err)
		}
		u := Usage{Resource: res, Current: n}
		if c, ok := plan.Ceiling(res); ok {
			u.Ceiling = &c
		}
		usage.Resources = append(usage.Resources, u)
	}
	return opts.formatter(cmd).Success(usage)
}

func runLimitsSet(opts *LimitsOptions, cmd *cobra.Command, resource, ceiling string) error {
	log := newLogger(opts.Verbose, cmd.ErrOrStderr())

	res, err := limits.ParseResource(resource)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid resource", err)
	}
	n, err := strconv.Atoi(ceiling)
	if err != nil || n < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid ceiling %q: must be a non-negative integer", ceiling))
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	if err := st.SetCeiling(cmd.Context(), opts.Tenant, res, n); err != nil {
		return WrapExitError(ExitCommandError, "failed to set ceiling", err)
	}
	log.Debug("ceiling set", "tenant", opts.Tenant, "resource", res, "ceiling", n)
	return opts.formatter(cmd).Success(fmt.Sprintf("%s ceiling for %s set to %d", res, opts.Tenant, n))
}

func runLimitsClear(opts *LimitsOptions, cmd *cobra.Command, resource string) error {
	log := newLogger(opts.Verbose, cmd.ErrOrStderr())

	res, err := limits.ParseResource(resource)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid resource", err)
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	if err := st.ClearCeiling(cmd.Context(), opts.Tenant, res); err != nil {
		return WrapExitError(ExitCommandError, "failed to clear ceiling", err)
	}
	return opts.formatter(cmd).Success(fmt.Sprintf("%s ceiling for %s cleared", res, opts.Tenant))
}
