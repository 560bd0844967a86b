package model

import "time"

// Resource is a bookable unit (a physical or virtual server). The booking
// engine treats resources as read-only reference data owned by an external
// catalog; it only refuses bookings against inactive ones.
type Resource struct {
	ID          string    `json:"id" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Capacity    *int      `json:"capacity,omitempty" bson:"capacity,omitempty"`
	IsActive    bool      `json:"is_active" bson:"is_active"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}
