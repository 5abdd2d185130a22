package harness

import (
	"github.com/roach88/marketsync/internal/canon"
)

// StepResult is the observed outcome of one scenario step.
type StepResult struct {
	Step int        `json:"step"`
	Type string     `json:"type"` // "sync" or "push"
	Kind canon.Kind `json:"kind"`

	// Run is set for sync steps.
	Run *RunSummary `json:"run,omitempty"`

	// Push is set for push steps.
	Push *PushSummary `json:"push,omitempty"`
}

// RunSummary is the deterministic part of a SyncRun: no run id, no
// timestamps, no error messages.
type RunSummary struct {
	Status           canon.RunStatus `json:"status"`
	AbortReason      string          `json:"abort_reason,omitempty"`
	Pages            int             `json:"pages"`
	Created          int             `json:"created"`
	Updated          int             `json:"updated"`
	Deleted          int             `json:"deleted"`
	Failed           int             `json:"failed"`
	ReconcileSkipped bool            `json:"reconcile_skipped,omitempty"`
	Errors           []RecordFailure `json:"errors"`
}

// RecordFailure locates one failed record of a run.
type RecordFailure struct {
	NaturalKey canon.ID         `json:"natural_key"`
	Class      canon.ErrorClass `json:"class"`
	Page       int              `json:"page"`
	Index      int              `json:"index"`
}

// PushSummary is the outcome of one pushed record.
type PushSummary struct {
	NaturalKey canon.ID         `json:"natural_key"`
	Operation  string           `json:"operation,omitempty"`
	ErrorClass canon.ErrorClass `json:"error_class,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Steps holds one entry per executed step, in order.
	Steps []StepResult `json:"steps"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State counts the tenant's rows per table after the last step.
	State map[string]int `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
		State:  make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func summarizeRun(run *canon.SyncRun) *RunSummary {
	s := &RunSummary{
		Status:           run.Status,
		AbortReason:      run.AbortReason,
		Pages:            run.Pages,
		Created:          run.Created,
		Updated:          run.Updated,
		Deleted:          run.Deleted,
		Failed:           run.Failed,
		ReconcileSkipped: run.ReconcileSkipped,
		Errors:           make([]RecordFailure, 0, len(run.Errors)),
	}
	for _, e := range run.Errors {
		s.Errors = append(s.Errors, RecordFailure{
			NaturalKey: e.NaturalKey,
			Class:      e.Class,
			Page:       e.Page,
			Index:      e.Index,
		})
	}
	return s
}
