package model

import "time"

type ReservationStatus string

const (
	StatusActive    ReservationStatus = "active"
	StatusCancelled ReservationStatus = "cancelled"
)

// Reservation is a booked slot on a resource. Reservations are never
// physically deleted; cancellation is a status change so history and timing
// windows stay auditable.
type Reservation struct {
	ID              string            `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,uuid4"`
	UserID          string            `json:"user_id" bson:"user_id" validate:"required,uuid4"`
	ResourceID      string            `json:"resource_id" bson:"resource_id" validate:"required,uuid4"`
	Title           string            `json:"title" bson:"title" validate:"required,min=1,max=200"`
	Description     string            `json:"description,omitempty" bson:"description,omitempty" validate:"omitempty,max=2000"`
	StartAt         time.Time         `json:"start_at" bson:"start_at" validate:"required"`
	EndAt           time.Time         `json:"end_at" bson:"end_at" validate:"required"`
	Status          ReservationStatus `json:"status" bson:"status" validate:"required,oneof=active cancelled"`
	CalendarEventID string            `json:"calendar_event_id,omitempty" bson:"calendar_event_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt       time.Time         `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}

func (r *Reservation) Range() TimeRange {
	return TimeRange{StartAt: r.StartAt, EndAt: r.EndAt}
}

func (r *Reservation) IsActive() bool {
	return r.Status == StatusActive
}

// IsPast reports whether the reservation has fully elapsed. Elapsed
// reservations are immutable.
func (r *Reservation) IsPast(now time.Time) bool {
	return r.EndAt.Before(now)
}

// ReservationInput carries the plain structured data a booking request
// arrives with. Transport-specific types never reach the coordinator.
type ReservationInput struct {
	ResourceID  string    `json:"resource_id" validate:"required,uuid4"`
	Title       string    `json:"title" validate:"required,min=1,max=200"`
	Description string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	StartAt     time.Time `json:"start_at" validate:"required"`
	EndAt       time.Time `json:"end_at" validate:"required"`
}

func (in *ReservationInput) Range() TimeRange {
	return TimeRange{StartAt: in.StartAt, EndAt: in.EndAt}
}

// ReservationUpdate is a partial update. Nil or zero fields are left
// untouched; a changed range or resource re-runs the full conflict protocol.
type ReservationUpdate struct {
	Title       string     `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	ResourceID  string     `json:"resource_id,omitempty" validate:"omitempty,uuid4"`
	StartAt     *time.Time `json:"start_at,omitempty"`
	EndAt       *time.Time `json:"end_at,omitempty"`
}

// ChangesPlacement reports whether the update moves the reservation in time
// or onto another resource, which requires the conflict check to re-run.
func (u *ReservationUpdate) ChangesPlacement() bool {
	return u.StartAt != nil || u.EndAt != nil || u.ResourceID != ""
}
