package mapper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/marketsync/internal/canon"
)

// Wire scalars. Each one treats JSON null and the empty string as absent and
// never routes numbers through float64.

func isAbsent(b []byte) bool {
	t := bytes.TrimSpace(b)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte(`""`))
}

// scalarText decodes a JSON string or number literal into trimmed text.
func scalarText(b []byte) (string, error) {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", abbreviate(b))
	}
	return n.String(), nil
}

// wireText is free text: trimmed and NFC normalized.
type wireText string

func (w *wireText) UnmarshalJSON(b []byte) error {
	if isAbsent(b) {
		return nil
	}
	s, err := scalarText(b)
	if err != nil {
		return err
	}
	*w = wireText(norm.NFC.String(s))
	return nil
}

func (w wireText) String() string { return string(w) }

// wireID is an opaque identifier kept verbatim.
type wireID canon.ID

func (w *wireID) UnmarshalJSON(b []byte) error {
	if isAbsent(b) {
		return nil
	}
	s, err := scalarText(b)
	if err != nil {
		return fmt.Errorf("identifier: %w", err)
	}
	*w = wireID(s)
	return nil
}

func (w wireID) ID() canon.ID { return canon.ID(w) }

// wireMillis is an epoch-millisecond timestamp.
type wireMillis time.Time

func (w *wireMillis) UnmarshalJSON(b []byte) error {
	if isAbsent(b) {
		return nil
	}
	s, err := scalarText(b)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp: %q is not epoch milliseconds", s)
	}
	*w = wireMillis(time.UnixMilli(ms).UTC())
	return nil
}

func (w wireMillis) Time() time.Time { return time.Time(w) }

// wireMoney is a decimal amount sent as a JSON number or numeric string.
type wireMoney struct {
	d decimal.Decimal
}

func (w *wireMoney) UnmarshalJSON(b []byte) error {
	if isAbsent(b) {
		return nil
	}
	s, err := scalarText(b)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("amount: %q is not a decimal", s)
	}
	w.d = d
	return nil
}

func (w wireMoney) Decimal() decimal.Decimal { return w.d }

// wireInt is an integer sent as a JSON number or numeric string.
type wireInt int

func (w *wireInt) UnmarshalJSON(b []byte) error {
	if isAbsent(b) {
		return nil
	}
	s, err := scalarText(b)
	if err != nil {
		return fmt.Errorf("integer: %w", err)
	}
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Some listings send "18.0" for integral rates.
		d, derr := decimal.NewFromString(s)
		if derr != nil || !d.IsInteger() {
			return fmt.Errorf("integer: %q is not an integer", s)
		}
		n = int(d.IntPart())
	}
	*w = wireInt(n)
	return nil
}

// wireBool accepts JSON booleans and "true"/"false" strings.
type wireBool bool

func (w *wireBool) UnmarshalJSON(b []byte) error {
	if isAbsent(b) {
		return nil
	}
	var v bool
	if err := json.Unmarshal(b, &v); err == nil {
		*w = wireBool(v)
		return nil
	}
	s, err := scalarText(b)
	if err != nil {
		return fmt.Errorf("boolean: %w", err)
	}
	v, err = strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("boolean: %q", s)
	}
	*w = wireBool(v)
	return nil
}

func abbreviate(b []byte) string {
	const limit = 32
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
