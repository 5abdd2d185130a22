package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/marketsync/internal/canon"
)

// millis converts a timestamp to unix milliseconds; the zero time is NULL.
func millis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.UnixMilli(n.Int64).UTC()
}

// money renders a decimal as canonical TEXT. Trailing zeros are dropped so
// "120.50" and "120.5" store identically.
func money(d decimal.Decimal) string {
	return d.String()
}

func parseMoney(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", column, err)
	}
	return d, nil
}

// opaque stores canonical JSON as TEXT; absent values are NULL.
func opaque(o canon.Opaque) sql.NullString {
	if len(o) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(o), Valid: true}
}

func fromOpaque(ns sql.NullString) canon.Opaque {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return canon.Opaque(ns.String)
}

// ref converts a local id to a nullable foreign key; 0 means no reference.
func ref(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// marshalErrors converts run errors to JSON TEXT for sync_runs.errors.
// HTML escaping is disabled so messages are stored as written.
func marshalErrors(errs []canon.RecordError) (string, error) {
	if len(errs) == 0 {
		return "[]", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(errs); err != nil {
		return "", fmt.Errorf("marshal run errors: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalErrors(data string) ([]canon.RecordError, error) {
	if data == "" || data == "[]" {
		return []canon.RecordError{}, nil
	}
	var errs []canon.RecordError
	if err := json.Unmarshal([]byte(data), &errs); err != nil {
		return nil, fmt.Errorf("unmarshal run errors: %w", err)
	}
	return errs, nil
}
