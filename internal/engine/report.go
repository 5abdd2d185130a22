package engine

import (
	"log/slog"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/limits"
	"github.com/roach88/marketsync/internal/mapper"
)

// report aggregates one run's outcomes into its SyncRun. Record-level
// failures are collected here and never raised out of the run.
type report struct {
	run     *canon.SyncRun
	log     *slog.Logger
	metrics *Metrics
}

func (r *report) succeeded(op Operation) {
	switch op {
	case OpCreated:
		r.run.Created++
	case OpUpdated:
		r.run.Updated++
	}
	r.metrics.record(r.run.Kind, string(op))
}

// failed records one record's failure. The class is derived from err.
func (r *report) failed(key canon.ID, page, index int, err error) canon.ErrorClass {
	class := Classify(err)
	r.run.Failed++
	r.run.Errors = append(r.run.Errors, canon.RecordError{
		NaturalKey: key,
		Class:      class,
		Message:    err.Error(),
		Page:       page,
		Index:      index,
	})
	r.metrics.record(r.run.Kind, string(class))
	r.log.Warn("record failed",
		"page", page,
		"index", index,
		"natural_key", key,
		"class", class,
		"error", err,
	)
	return class
}

func Classify(err error) canon.ErrorClass {
	switch {
	case mapper.IsMappingError(err):
		return canon.ClassMapping
	case limits.IsExceeded(err):
		return canon.ClassLimit
	case IsFetchError(err):
		return canon.ClassFetch
	default:
		return canon.ClassTransaction
	}
}
