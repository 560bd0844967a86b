package model

import "time"

// TimeRange is a half-open interval [StartAt, EndAt). The start instant
// belongs to the range, the end instant does not, so back-to-back bookings
// never conflict.
type TimeRange struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// Valid reports whether the range has strictly positive duration.
func (t TimeRange) Valid() bool {
	return t.EndAt.After(t.StartAt)
}

// Overlaps applies the half-open rule: a.start < b.end && b.start < a.end.
// Ranges that merely touch at an endpoint do not overlap.
func (t TimeRange) Overlaps(other TimeRange) bool {
	return t.StartAt.Before(other.EndAt) && other.StartAt.Before(t.EndAt)
}

// Contains reports whether the instant falls inside the range.
func (t TimeRange) Contains(at time.Time) bool {
	return !at.Before(t.StartAt) && at.Before(t.EndAt)
}

func (t TimeRange) Duration() time.Duration {
	return t.EndAt.Sub(t.StartAt)
}
