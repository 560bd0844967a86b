package errors

import "errors"

var (
	ErrNotFound = errors.New("reservation not found")

	ErrResourceNotFound = errors.New("resource not found")

	ErrInvalidID = errors.New("invalid reservation ID format")

	ErrOverlap = errors.New("reservation overlaps an existing active reservation")

	ErrLockHeld = errors.New("resource lock is held by another request")

	ErrLockNotOwned = errors.New("resource lock is owned by a different token")
)
