package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	Tenant   string
	Kind     string
	Limit    int
}

// runList renders recorded runs, newest first.
type runList []canon.SyncRun

func (l runList) String() string {
	if len(l) == 0 {
		return "No runs recorded\n"
	}
	var b strings.Builder
	for _, r := range l {
		fmt.Fprintf(&b, "%s  %-8s %-8s %-10s pages=%d created=%d updated=%d deleted=%d failed=%d\n",
			r.ID, r.Tenant, r.Kind, r.Status, r.Pages, r.Created, r.Updated, r.Deleted, r.Failed)
	}
	return b.String()
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded sync runs",
		Long: `List the sync run history, newest first.

Examples:
  marketsync runs --db ./m.db
  marketsync runs --db ./m.db --tenant acme --kind product --limit 5
  marketsync runs show 0193a7c4-... --db ./m.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "only runs of this tenant")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only runs of this entity kind")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs (0 = all)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newRunsShowCommand(opts))

	return cmd
}

func newRunsShowCommand(opts *RunsOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show one recorded run with its record errors",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(opts, cmd, args[0])
		},
	}
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	log := newLogger(opts.Verbose, cmd.ErrOrStderr())

	var kind canon.Kind
	if opts.Kind != "" {
		k, err := canon.ParseKind(opts.Kind)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --kind", err)
		}
		kind = k
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	runs, err := st.ListRuns(cmd.Context(), opts.Tenant, kind, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	return opts.formatter(cmd).Success(runList(runs))
}

func runRunsShow(opts *RunsOptions, cmd *cobra.Command, id string) error {
	log := newLogger(opts.Verbose, cmd.ErrOrStderr())
	f := opts.formatter(cmd)

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	run, err := st.GetRun(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		if ferr := f.Error(CodeNotFound, fmt.Sprintf("run %s not found", id), nil); ferr != nil {
			return ferr
		}
		return NewExitError(ExitFailure, fmt.Sprintf("run %s not found", id))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load run", err)
	}
	return f.Success((*runReport)(run))
}
