package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/marketsync/internal/canon"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Run did not complete, push rejected, scenarios failed
	ExitCommandError = 2 // Command error (invalid flags or config, database not found, etc.)
)

// Error codes for JSON error responses.
const (
	CodeInput     = "E_INPUT"       // invalid flags, config or input records
	CodeStore     = "E_STORE"       // database could not be opened or queried
	CodeRun       = "E_RUN"         // sync run finished without completing
	CodePush      = "E_PUSH"        // one or more pushed records were rejected
	CodeNotFound  = "E_NOT_FOUND"   // requested run does not exist
	CodeTestFails = "E_TEST_FAILED" // one or more scenarios failed
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`           // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`   // success payload
	Error  *CLIError   `json:"error,omitempty"`  // error details
	RunID  string      `json:"run_id,omitempty"` // sync run correlation
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E_INPUT", "E_RUN", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// RunResult outputs a sync run report. A run that did not complete is
// reported with status "error" and CodeRun, the report itself as details.
func (f *OutputFormatter) RunResult(run *canon.SyncRun) error {
	view := (*runReport)(run)
	if run.Status == canon.RunCompleted {
		if f.Format == "json" {
			return json.NewEncoder(f.Writer).Encode(CLIResponse{
				Status: "ok",
				Data:   view,
				RunID:  run.ID,
			})
		}
		fmt.Fprint(f.Writer, view.String())
		return nil
	}

	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    CodeRun,
				Message: runMessage(run),
				Details: view,
			},
			RunID: run.ID,
		})
	}
	fmt.Fprint(f.Writer, view.String())
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// runReport renders a SyncRun for humans; JSON output keeps the run's own
// field names.
type runReport canon.SyncRun

func (r *runReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s/%s): %s\n", r.ID, r.Tenant, r.Kind, r.Status)
	if r.AbortReason != "" {
		fmt.Fprintf(&b, "  Reason: %s\n", r.AbortReason)
	}
	fmt.Fprintf(&b, "  Pages: %d  Created: %d  Updated: %d  Deleted: %d  Failed: %d\n",
		r.Pages, r.Created, r.Updated, r.Deleted, r.Failed)
	if r.ReconcileSkipped {
		b.WriteString("  Snapshot reconciliation skipped\n")
	}
	for _, e := range r.Errors {
		key := string(e.NaturalKey)
		if key == "" {
			key = fmt.Sprintf("page %d #%d", e.Page, e.Index)
		}
		fmt.Fprintf(&b, "  ✗ %s [%s] %s\n", key, e.Class, e.Message)
	}
	return b.String()
}

func runMessage(run *canon.SyncRun) string {
	if run.AbortReason == "" {
		return fmt.Sprintf("sync run %s", run.Status)
	}
	return fmt.Sprintf("sync run %s: %s", run.Status, run.AbortReason)
}
