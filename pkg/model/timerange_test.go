package model

import (
	"testing"
	"time"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("failed to parse time %q: %v", value, err)
	}
	return parsed
}

func rangeOf(t *testing.T, start, end string) TimeRange {
	t.Helper()
	return TimeRange{StartAt: mustTime(t, start), EndAt: mustTime(t, end)}
}

func TestTimeRange_Valid(t *testing.T) {
	tests := []struct {
		name  string
		rng   TimeRange
		valid bool
	}{
		{
			name:  "positive duration",
			rng:   rangeOf(t, "2026-09-01T10:00:00Z", "2026-09-01T11:00:00Z"),
			valid: true,
		},
		{
			name:  "zero duration",
			rng:   rangeOf(t, "2026-09-01T10:00:00Z", "2026-09-01T10:00:00Z"),
			valid: false,
		},
		{
			name:  "end before start",
			rng:   rangeOf(t, "2026-09-01T11:00:00Z", "2026-09-01T10:00:00Z"),
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rng.Valid(); got != tt.valid {
				t.Errorf("Valid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestTimeRange_Overlaps(t *testing.T) {
	base := rangeOf(t, "2026-09-01T10:00:00Z", "2026-09-01T12:00:00Z")

	tests := []struct {
		name     string
		other    TimeRange
		overlaps bool
	}{
		{
			name:     "identical range",
			other:    rangeOf(t, "2026-09-01T10:00:00Z", "2026-09-01T12:00:00Z"),
			overlaps: true,
		},
		{
			name:     "partial overlap at end",
			other:    rangeOf(t, "2026-09-01T11:00:00Z", "2026-09-01T13:00:00Z"),
			overlaps: true,
		},
		{
			name:     "partial overlap at start",
			other:    rangeOf(t, "2026-09-01T09:00:00Z", "2026-09-01T10:30:00Z"),
			overlaps: true,
		},
		{
			name:     "contained inside",
			other:    rangeOf(t, "2026-09-01T10:30:00Z", "2026-09-01T11:30:00Z"),
			overlaps: true,
		},
		{
			name:     "containing the base",
			other:    rangeOf(t, "2026-09-01T09:00:00Z", "2026-09-01T13:00:00Z"),
			overlaps: true,
		},
		{
			name:     "back-to-back after",
			other:    rangeOf(t, "2026-09-01T12:00:00Z", "2026-09-01T13:00:00Z"),
			overlaps: false,
		},
		{
			name:     "back-to-back before",
			other:    rangeOf(t, "2026-09-01T09:00:00Z", "2026-09-01T10:00:00Z"),
			overlaps: false,
		},
		{
			name:     "fully disjoint",
			other:    rangeOf(t, "2026-09-01T14:00:00Z", "2026-09-01T15:00:00Z"),
			overlaps: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Overlaps(tt.other); got != tt.overlaps {
				t.Errorf("Overlaps() = %v, want %v", got, tt.overlaps)
			}
			// Overlap is symmetric.
			if got := tt.other.Overlaps(base); got != tt.overlaps {
				t.Errorf("reverse Overlaps() = %v, want %v", got, tt.overlaps)
			}
		})
	}
}

func TestTimeRange_Contains(t *testing.T) {
	rng := rangeOf(t, "2026-09-01T10:00:00Z", "2026-09-01T12:00:00Z")

	if !rng.Contains(mustTime(t, "2026-09-01T10:00:00Z")) {
		t.Error("start instant should be inside the half-open range")
	}
	if !rng.Contains(mustTime(t, "2026-09-01T11:00:00Z")) {
		t.Error("interior instant should be inside the range")
	}
	if rng.Contains(mustTime(t, "2026-09-01T12:00:00Z")) {
		t.Error("end instant should be outside the half-open range")
	}
	if rng.Contains(mustTime(t, "2026-09-01T09:59:59Z")) {
		t.Error("instant before start should be outside the range")
	}
}

func TestTimeRange_OverlapsAcrossZones(t *testing.T) {
	// The same instants expressed in different offsets must compare equal.
	utc := rangeOf(t, "2026-09-01T10:00:00Z", "2026-09-01T12:00:00Z")
	offset := rangeOf(t, "2026-09-01T12:00:00+02:00", "2026-09-01T14:00:00+02:00")

	if !utc.Overlaps(offset) {
		t.Error("ranges covering the same instants should overlap regardless of offset")
	}

	adjacent := rangeOf(t, "2026-09-01T14:00:00+02:00", "2026-09-01T15:00:00+02:00")
	if utc.Overlaps(adjacent) {
		t.Error("back-to-back ranges in different offsets should not overlap")
	}
}
