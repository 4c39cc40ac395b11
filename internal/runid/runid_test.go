package runid_test

import (
	"testing"
	"time"

	"digest/internal/runid"
)

func TestForTime(t *testing.T) {
	cases := []struct {
		when time.Time
		want string
	}{
		{time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC), "2026-W35"},
		// ISO week years differ from calendar years at the boundary.
		{time.Date(2027, time.January, 1, 12, 0, 0, 0, time.UTC), "2026-W53"},
		{time.Date(2024, time.December, 30, 0, 0, 0, 0, time.UTC), "2025-W01"},
	}
	for _, tc := range cases {
		if got := runid.ForTime(tc.when); got != tc.want {
			t.Fatalf("ForTime(%s) = %q, want %q", tc.when, got, tc.want)
		}
	}
}

func TestForTimeStableWithinWeek(t *testing.T) {
	monday := time.Date(2026, time.August, 24, 1, 0, 0, 0, time.UTC)
	sunday := monday.AddDate(0, 0, 6)
	if runid.ForTime(monday) != runid.ForTime(sunday) {
		t.Fatal("expected identical run IDs within one ISO week")
	}
}

func TestForTimeUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+13", 13*3600)
	// Sunday 23:00 UTC is already Monday 12:00 in UTC+13; the run ID must
	// follow UTC so every dispatcher replica agrees.
	local := time.Date(2026, time.August, 24, 12, 0, 0, 0, loc)
	if got, want := runid.ForTime(local), "2026-W34"; got != want {
		t.Fatalf("ForTime = %q, want %q", got, want)
	}
}
