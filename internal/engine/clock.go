package engine

import "time"

// Clock supplies the wall-clock timestamps recorded on run reports.
//
// Timestamps are informational only. Nothing in a run is ordered by them;
// records are processed in page order.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns the current UTC time.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
