// Package runid derives dispatch run identifiers from the calendar week.
// Deriving the ID from time rather than storing it makes re-dispatch
// idempotency a stateless computation: two dispatcher invocations in the
// same ISO week produce the same run ID.
package runid

import (
	"fmt"
	"time"
)

// ForTime returns the run identifier for the ISO week containing t,
// evaluated in UTC, e.g. "2026-W35".
func ForTime(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// Now returns the run identifier for the current ISO week.
func Now() string {
	return ForTime(time.Now())
}
