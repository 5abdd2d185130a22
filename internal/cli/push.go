package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/engine"
)

// PushOptions holds flags for the push command.
type PushOptions struct {
	*RootOptions
	Database string
	Tenant   string
	Kind     string
	Input    string
}

// PushedRecord is the per-record line of the push report.
type PushedRecord struct {
	NaturalKey canon.ID         `json:"natural_key"`
	Operation  string           `json:"operation,omitempty"`
	Class      canon.ErrorClass `json:"class,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// PushReport summarizes a push command.
type PushReport struct {
	Tenant   string         `json:"tenant"`
	Kind     canon.Kind     `json:"kind"`
	Applied  int            `json:"applied"`
	Rejected int            `json:"rejected"`
	Records  []PushedRecord `json:"records"`
}

func (r *PushReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pushed %d %s records for %s: %d applied, %d rejected\n",
		len(r.Records), r.Kind, r.Tenant, r.Applied, r.Rejected)
	for _, rec := range r.Records {
		if rec.Class != "" {
			fmt.Fprintf(&b, "  ✗ %s [%s] %s\n", rec.NaturalKey, rec.Class, rec.Message)
			continue
		}
		fmt.Fprintf(&b, "  ✓ %s %s\n", rec.NaturalKey, rec.Operation)
	}
	return b.String()
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PushOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Apply individually pushed records",
		Long: `Apply records delivered outside a paged listing, as a marketplace
webhook would push them.

Input is a JSON array or a stream of JSON objects in marketplace wire
format, read from --input or stdin. Records are applied one at a time in
input order, each in its own transaction and subject to the tenant's plan.

Exit codes:
  0 - Every record was applied
  1 - At least one record was rejected
  2 - Command error (invalid flags, unreadable input, database not found)

Examples:
  marketsync push --db ./m.db --tenant acme --kind order --input ./webhook.json
  cat orders.json | marketsync push --db ./m.db --tenant acme --kind order`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "entity kind (order|product|claim) (required)")
	cmd.Flags().StringVar(&opts.Input, "input", "", "JSON input file (default stdin)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func runPush(opts *PushOptions, cmd *cobra.Command) error {
	log := newLogger(opts.Verbose, cmd.ErrOrStderr())
	f := opts.formatter(cmd)

	if strings.TrimSpace(opts.Tenant) == "" {
		return NewExitError(ExitCommandError, "--tenant must not be empty")
	}
	kind, err := canon.ParseKind(opts.Kind)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --kind", err)
	}

	var in io.Reader = cmd.InOrStdin()
	if opts.Input != "" {
		file, err := os.Open(opts.Input)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open input", err)
		}
		defer file.Close()
		in = file
	}
	records, err := readRecords(in)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer closeStore(st, log)

	eng := engine.New(st, engine.WithLogger(log))

	ctx, stop := signalContext(cmd, log)
	defer stop()

	report := &PushReport{Tenant: opts.Tenant, Kind: kind, Records: make([]PushedRecord, 0, len(records))}
	pusher := eng.NewPusher(func(res engine.PushResult) {
		rec := PushedRecord{NaturalKey: res.NaturalKey}
		if res.Err != nil {
			rec.Class = engine.Classify(res.Err)
			rec.Message = res.Err.Error()
			report.Rejected++
		} else {
			rec.Operation = string(res.Outcome.Operation)
			report.Applied++
		}
		report.Records = append(report.Records, rec)
	})
	for _, raw := range records {
		pusher.Enqueue(engine.Push{Tenant: opts.Tenant, Kind: kind, Raw: raw})
	}
	pusher.Close()

	if err := pusher.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "push interrupted", err)
	}

	if report.Rejected > 0 {
		if err := f.Error(CodePush, fmt.Sprintf("%d of %d records rejected", report.Rejected, len(report.Records)), report); err != nil {
			return err
		}
		if f.Format != "json" && !f.Verbose {
			fmt.Fprint(f.Writer, report.String())
		}
		return NewExitError(ExitFailure, "push rejected records")
	}
	return f.Success(report)
}

// readRecords decodes a JSON array or a stream of JSON values. Arrays in
// the stream are flattened.
func readRecords(r io.Reader) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	var out []json.RawMessage
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(out), err)
		}
		if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("[")) {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("record %d: %w", len(out), err)
			}
			out = append(out, items...)
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}
