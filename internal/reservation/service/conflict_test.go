package service

import (
	"testing"
	"time"

	"reservd/pkg/model"
)

func ts(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("failed to parse time %q: %v", value, err)
	}
	return parsed
}

func activeReservation(t *testing.T, id, start, end string) *model.Reservation {
	t.Helper()
	return &model.Reservation{
		ID:      id,
		StartAt: ts(t, start),
		EndAt:   ts(t, end),
		Status:  model.StatusActive,
	}
}

func TestHasConflict(t *testing.T) {
	existing := []*model.Reservation{
		activeReservation(t, "a", "2026-09-01T10:00:00Z", "2026-09-01T11:00:00Z"),
		activeReservation(t, "b", "2026-09-01T13:00:00Z", "2026-09-01T14:00:00Z"),
	}

	tests := []struct {
		name      string
		candidate model.TimeRange
		excludeID string
		conflict  bool
	}{
		{
			name: "free slot between reservations",
			candidate: model.TimeRange{
				StartAt: ts(t, "2026-09-01T11:00:00Z"),
				EndAt:   ts(t, "2026-09-01T13:00:00Z"),
			},
			conflict: false,
		},
		{
			name: "overlapping the first reservation",
			candidate: model.TimeRange{
				StartAt: ts(t, "2026-09-01T10:30:00Z"),
				EndAt:   ts(t, "2026-09-01T11:30:00Z"),
			},
			conflict: true,
		},
		{
			name: "touching endpoint does not conflict",
			candidate: model.TimeRange{
				StartAt: ts(t, "2026-09-01T14:00:00Z"),
				EndAt:   ts(t, "2026-09-01T15:00:00Z"),
			},
			conflict: false,
		},
		{
			name: "own row excluded",
			candidate: model.TimeRange{
				StartAt: ts(t, "2026-09-01T10:00:00Z"),
				EndAt:   ts(t, "2026-09-01T11:00:00Z"),
			},
			excludeID: "a",
			conflict:  false,
		},
		{
			name: "exclusion does not hide other rows",
			candidate: model.TimeRange{
				StartAt: ts(t, "2026-09-01T10:00:00Z"),
				EndAt:   ts(t, "2026-09-01T14:00:00Z"),
			},
			excludeID: "a",
			conflict:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasConflict(existing, tt.candidate, tt.excludeID); got != tt.conflict {
				t.Errorf("HasConflict() = %v, want %v", got, tt.conflict)
			}
		})
	}
}

func TestConflicting_SkipsCancelledRows(t *testing.T) {
	cancelled := activeReservation(t, "c", "2026-09-01T10:00:00Z", "2026-09-01T11:00:00Z")
	cancelled.Status = model.StatusCancelled

	candidate := model.TimeRange{
		StartAt: ts(t, "2026-09-01T10:00:00Z"),
		EndAt:   ts(t, "2026-09-01T11:00:00Z"),
	}

	if HasConflict([]*model.Reservation{cancelled}, candidate, "") {
		t.Error("cancelled reservations should not block the slot")
	}
}

func TestConflicting_ReturnsAllOverlaps(t *testing.T) {
	existing := []*model.Reservation{
		activeReservation(t, "a", "2026-09-01T10:00:00Z", "2026-09-01T11:00:00Z"),
		activeReservation(t, "b", "2026-09-01T11:00:00Z", "2026-09-01T12:00:00Z"),
		activeReservation(t, "c", "2026-09-01T15:00:00Z", "2026-09-01T16:00:00Z"),
	}

	candidate := model.TimeRange{
		StartAt: ts(t, "2026-09-01T10:30:00Z"),
		EndAt:   ts(t, "2026-09-01T11:30:00Z"),
	}

	conflicts := Conflicting(existing, candidate, "")
	if len(conflicts) != 2 {
		t.Fatalf("expected 2 conflicts, got %d", len(conflicts))
	}
	if conflicts[0].ID != "a" || conflicts[1].ID != "b" {
		t.Errorf("expected conflicts [a b], got [%s %s]", conflicts[0].ID, conflicts[1].ID)
	}
}
