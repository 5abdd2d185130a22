package canon

import "time"

// RunStatus is the terminal state of a sync run.
type RunStatus string

const (
	// RunCompleted: every page was consumed.
	RunCompleted RunStatus = "completed"
	// RunTruncated: a later page failed or was malformed; committed records were kept.
	RunTruncated RunStatus = "truncated"
	// RunAborted: abort-on-limit fired or the run was cancelled between records.
	RunAborted RunStatus = "aborted"
	// RunFailed: the first page could not be fetched; nothing was processed.
	RunFailed RunStatus = "failed"
)

// ErrorClass categorizes a per-record failure.
type ErrorClass string

const (
	ClassMapping     ErrorClass = "mapping"
	ClassLimit       ErrorClass = "limit"
	ClassTransaction ErrorClass = "transaction"
	ClassFetch       ErrorClass = "fetch"
)

// RecordError describes one record that was not persisted.
// NaturalKey is empty when the record carried no readable key; Page and
// Index locate it in the fetch sequence instead.
type RecordError struct {
	NaturalKey ID         `json:"natural_key"`
	Class      ErrorClass `json:"class"`
	Message    string     `json:"message"`
	Page       int        `json:"page"`
	Index      int        `json:"index"`
}

// SyncRun is the report of one run: one entity kind for one tenant,
// from the first page fetch to completion or abort. It is mutated only
// by the run that owns it and is immutable once FinishedAt is set.
type SyncRun struct {
	ID         string    `json:"id"`
	Tenant     string    `json:"tenant"`
	Kind       Kind      `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     RunStatus `json:"status"`

	// AbortReason explains a non-completed status.
	AbortReason string `json:"abort_reason,omitempty"`

	Pages   int `json:"pages"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`

	// ReconcileSkipped is set for full-snapshot kinds when the run did not
	// see the complete listing and deletion by absence was not attempted.
	ReconcileSkipped bool `json:"reconcile_skipped,omitempty"`

	Errors []RecordError `json:"errors"`
}

// Upserted returns the number of records created or updated.
func (r *SyncRun) Upserted() int {
	return r.Created + r.Updated
}

// Finished reports whether the run has been finalized.
func (r *SyncRun) Finished() bool {
	return !r.FinishedAt.IsZero()
}
