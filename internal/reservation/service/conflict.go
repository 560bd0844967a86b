package service

import "reservd/pkg/model"

// HasConflict reports whether the candidate range overlaps any active
// reservation in existing, skipping excludeID so an update never conflicts
// with its own prior row. Pure and deterministic: the decision depends only
// on the arguments.
func HasConflict(existing []*model.Reservation, candidate model.TimeRange, excludeID string) bool {
	return len(Conflicting(existing, candidate, excludeID)) > 0
}

// Conflicting returns the active reservations overlapping the candidate
// range, in input order.
func Conflicting(existing []*model.Reservation, candidate model.TimeRange, excludeID string) []*model.Reservation {
	var conflicts []*model.Reservation
	for _, r := range existing {
		if r.ID == excludeID {
			continue
		}
		if !r.IsActive() {
			continue
		}
		if r.Range().Overlaps(candidate) {
			conflicts = append(conflicts, r)
		}
	}
	return conflicts
}
