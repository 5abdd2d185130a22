// Package mapper translates marketplace records into canonical entities.
//
// Every function here is pure: no I/O, no clocks, no shared state. A record
// that cannot be mapped yields a *MappingError and must never be persisted.
package mapper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/marketsync/internal/canon"
)

// MappingError reports an external record that cannot be used.
//
// NaturalKey carries whatever identifying key could still be read from the
// record (it may be empty), so the run report can point at the record and
// snapshot reconciliation can still count it as present.
type MappingError struct {
	Kind       canon.Kind
	NaturalKey canon.ID
	Field      string
	Reason     string
}

// Error implements the error interface.
func (e *MappingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("map %s: %s: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("map %s: %s", e.Kind, e.Reason)
}

// IsMappingError returns true if err is a MappingError.
// Uses errors.As to handle wrapped errors.
func IsMappingError(err error) bool {
	var me *MappingError
	return errors.As(err, &me)
}

// Map dispatches on kind.
func Map(kind canon.Kind, raw json.RawMessage) (canon.Record, error) {
	switch kind {
	case canon.KindOrder:
		return MapOrder(raw)
	case canon.KindProduct:
		return MapProduct(raw)
	case canon.KindClaim:
		return MapClaim(raw)
	default:
		return nil, &MappingError{Kind: kind, Reason: "unsupported entity kind"}
	}
}

// keyFields names the JSON field holding each kind's natural key.
var keyFields = map[canon.Kind]string{
	canon.KindOrder:   "orderNumber",
	canon.KindProduct: "id",
	canon.KindClaim:   "id",
}

// decode unmarshals raw into dst, converting failures into a MappingError
// that still carries the natural key when it is readable.
func decode(kind canon.Kind, raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return &MappingError{Kind: kind, Reason: "empty record"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &MappingError{
			Kind:       kind,
			NaturalKey: ProbeKey(kind, raw),
			Reason:     fmt.Sprintf("decode: %v", err),
		}
	}
	return nil
}

// ProbeKey extracts the natural key from a record without decoding the
// rest of it. Returns the zero ID when the key is absent or unreadable.
func ProbeKey(kind canon.Kind, raw json.RawMessage) canon.ID {
	field, ok := keyFields[kind]
	if !ok {
		return ""
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	var id wireID
	if err := id.UnmarshalJSON(probe[field]); err != nil {
		return ""
	}
	return id.ID()
}

func missing(kind canon.Kind, key canon.ID, field string) *MappingError {
	return &MappingError{Kind: kind, NaturalKey: key, Field: field, Reason: "required field is missing"}
}

func canonicalize(kind canon.Kind, key canon.ID, field string, raw json.RawMessage) (canon.Opaque, error) {
	o, err := canon.Canonicalize(raw)
	if err != nil {
		return nil, &MappingError{Kind: kind, NaturalKey: key, Field: field, Reason: err.Error()}
	}
	return o, nil
}
