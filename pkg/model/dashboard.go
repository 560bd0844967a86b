package model

import "time"

type ResourceState string

const (
	StateInUse     ResourceState = "in_use"
	StateReserved  ResourceState = "reserved"
	StateAvailable ResourceState = "available"
)

// TimelineEntry is the projection of a reservation used by the dashboard
// views. Mine is viewer-dependent and filled in per request, never cached.
type TimelineEntry struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	UserID  string    `json:"user_id"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	Mine    bool      `json:"is_mine"`
}

// TimelineResource groups the active reservations intersecting a query
// window under their resource.
type TimelineResource struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Reservations []TimelineEntry `json:"reservations"`
}

// ResourceStatus is the current/next occupancy projection for one resource.
type ResourceStatus struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	State   ResourceState  `json:"current_status"`
	Current *TimelineEntry `json:"current_reservation,omitempty"`
	Next    *TimelineEntry `json:"next_reservation,omitempty"`
}

// AvailabilityResult answers "is this slot free", with the conflicting
// reservations when it is not.
type AvailabilityResult struct {
	Available bool           `json:"available"`
	Conflicts []*Reservation `json:"conflicts"`
}
