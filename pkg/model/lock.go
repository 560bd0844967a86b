package model

import "time"

// ResourceLock is an advisory lock document granting exclusive booking
// access for one resource. The document id is the resource id, so inserting
// it is an atomic acquire; ExpiresAt bounds the damage of a crashed holder.
type ResourceLock struct {
	ResourceID string    `bson:"_id" json:"resource_id"`
	Token      string    `bson:"token" json:"token"`
	ExpiresAt  time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}
