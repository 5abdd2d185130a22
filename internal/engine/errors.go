package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/marketsync/internal/canon"
)

// ErrMalformedPage is wrapped by FetchError when a page lacks any of its
// paging fields.
var ErrMalformedPage = errors.New("malformed page: missing page, totalPages or totalElements")

// ErrTenantRequired is returned when a run or a pushed record names no
// tenant. Nothing is written.
var ErrTenantRequired = errors.New("tenant is required")

// ErrNotSnapshot is returned when reconciliation is asked for an
// append/update-only kind.
var ErrNotSnapshot = errors.New("not a full-snapshot entity kind")

// FetchError reports a failed or malformed page.
//
// On page 0 it fails the run and is returned to the caller. On any later
// page the run stops early with status truncated and the error is recorded
// as the run's abort reason.
type FetchError struct {
	Page int
	Err  error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError returns true if the error is a FetchError.
// Uses errors.As to handle wrapped errors.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// TransactionError reports a record whose transaction rolled back.
// Nothing the record wrote survives.
type TransactionError struct {
	Kind       canon.Kind
	NaturalKey canon.ID
	Err        error
}

// Error implements the error interface.
func (e *TransactionError) Error() string {
	return fmt.Sprintf("upsert %s %s: %v", e.Kind, e.NaturalKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransactionError) Unwrap() error {
	return e.Err
}

// IsTransactionError returns true if the error is a TransactionError.
// Uses errors.As to handle wrapped errors.
func IsTransactionError(err error) bool {
	var te *TransactionError
	return errors.As(err, &te)
}
