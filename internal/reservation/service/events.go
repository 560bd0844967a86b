package service

import (
	"context"
	"time"

	"reservd/pkg/kafka"
	"reservd/pkg/logger"
	"reservd/pkg/model"
)

// EventPublisher announces committed reservation state changes. Publishing
// happens after commit and is fire-and-forget; a failed publish never
// affects the booking outcome.
type EventPublisher interface {
	PublishReservationEvent(ctx context.Context, event *model.ReservationEvent) error
}

type kafkaEventPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewKafkaEventPublisher(producer *kafka.Producer, log *logger.Logger) EventPublisher {
	return &kafkaEventPublisher{
		producer: producer,
		log:      log,
	}
}

// PublishReservationEvent keys messages by resource id so consumers observe
// per-resource ordering.
func (p *kafkaEventPublisher) PublishReservationEvent(ctx context.Context, event *model.ReservationEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	msg := kafka.NewMessage().
		WithKey(event.Reservation.ResourceID).
		WithValue(event).
		WithEventType(event.Type).
		WithSource("reservations").
		WithSchemaVersion("1").
		Build()

	return p.producer.Publish(ctx, msg)
}

type noopEventPublisher struct{}

// NewNoopEventPublisher is used when no broker is configured; events are
// silently dropped.
func NewNoopEventPublisher() EventPublisher {
	return noopEventPublisher{}
}

func (noopEventPublisher) PublishReservationEvent(context.Context, *model.ReservationEvent) error {
	return nil
}
