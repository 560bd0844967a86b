package model

import "time"

// Reservation lifecycle event types published after commit.
const (
	EventReservationCreated   = "reservation.created"
	EventReservationUpdated   = "reservation.updated"
	EventReservationCancelled = "reservation.cancelled"
)

// ReservationEvent is the payload published to the event stream after a
// booking transaction commits. Publishing is fire-and-forget; it never gates
// the booking decision.
type ReservationEvent struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	// SupersededID is set on update events when a range change replaced the
	// prior row via cancel-then-recreate.
	SupersededID string       `json:"superseded_id,omitempty"`
	Reservation  *Reservation `json:"reservation"`
}
