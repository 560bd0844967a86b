package kafka

import (
	"errors"
	"fmt"
)

var (
	// ErrProducerClosed indicates the producer has been closed
	ErrProducerClosed = errors.New("kafka producer is closed")

	// ErrInvalidMessage matches, via errors.Is, any message rejected before
	// reaching the broker
	ErrInvalidMessage = errors.New("invalid message")

	// ErrEmptyKey indicates the message key is empty
	ErrEmptyKey = fmt.Errorf("%w: key cannot be empty", ErrInvalidMessage)

	// ErrEmptyValue indicates the message value is empty
	ErrEmptyValue = fmt.Errorf("%w: value cannot be empty", ErrInvalidMessage)
)
