package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"reservd/pkg/logger"
	"reservd/pkg/model"
)

// Outcome classifies a sync attempt at the adapter boundary. Callers never
// see raw transport errors.
type Outcome int

const (
	Success Outcome = iota
	TransientFailure
	PermanentFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case TransientFailure:
		return "transient_failure"
	default:
		return "permanent_failure"
	}
}

// Syncer mirrors reservation changes onto an external calendar. All methods
// are best-effort: they run after commit, bound their own deadline, and
// report an Outcome instead of an error.
type Syncer interface {
	CreateEvent(ctx context.Context, reservation *model.Reservation) (eventID string, outcome Outcome)
	UpdateEvent(ctx context.Context, reservation *model.Reservation) Outcome
	DeleteEvent(ctx context.Context, eventID string) Outcome
}

// ResourceNameFunc resolves a resource id to its display name. Returning an
// empty name drops the resource prefix from the event summary.
type ResourceNameFunc func(ctx context.Context, id string) string

type adapter struct {
	client       *Client
	resourceName ResourceNameFunc
	timeout      time.Duration
	log          *logger.Logger
}

func NewSyncer(client *Client, resourceName ResourceNameFunc, timeout time.Duration, log *logger.Logger) Syncer {
	return &adapter{
		client:       client,
		resourceName: resourceName,
		timeout:      timeout,
		log:          log,
	}
}

func (a *adapter) CreateEvent(ctx context.Context, reservation *model.Reservation) (string, Outcome) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	eventID, err := a.client.CreateEvent(ctx, a.eventFrom(ctx, reservation))
	if err != nil {
		outcome := classify(err)
		a.log.Warn("Calendar event creation failed",
			"reservation_id", reservation.ID,
			"outcome", outcome.String(),
			"error", err,
		)
		return "", outcome
	}

	return eventID, Success
}

func (a *adapter) UpdateEvent(ctx context.Context, reservation *model.Reservation) Outcome {
	if reservation.CalendarEventID == "" {
		// Sync was never established for this reservation; nothing to update.
		return PermanentFailure
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.client.UpdateEvent(ctx, reservation.CalendarEventID, a.eventFrom(ctx, reservation)); err != nil {
		outcome := classify(err)
		a.log.Warn("Calendar event update failed",
			"reservation_id", reservation.ID,
			"calendar_event_id", reservation.CalendarEventID,
			"outcome", outcome.String(),
			"error", err,
		)
		return outcome
	}

	return Success
}

func (a *adapter) DeleteEvent(ctx context.Context, eventID string) Outcome {
	if eventID == "" {
		return Success
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.client.DeleteEvent(ctx, eventID); err != nil {
		outcome := classify(err)
		a.log.Warn("Calendar event deletion failed",
			"calendar_event_id", eventID,
			"outcome", outcome.String(),
			"error", err,
		)
		return outcome
	}

	return Success
}

// eventFrom renders a reservation the way the external calendar displays it:
// the summary is prefixed with the resource's name and the description names
// who holds the slot.
func (a *adapter) eventFrom(ctx context.Context, reservation *model.Reservation) *Event {
	summary := reservation.Title
	if a.resourceName != nil {
		if name := a.resourceName(ctx, reservation.ResourceID); name != "" {
			summary = fmt.Sprintf("[%s] %s", name, reservation.Title)
		}
	}

	description := fmt.Sprintf("Reservationist: %s", reservation.UserID)
	if reservation.Description != "" {
		description = reservation.Description + "\n\n" + description
	}

	return &Event{
		Summary:     summary,
		Description: description,
		StartAt:     reservation.StartAt,
		EndAt:       reservation.EndAt,
	}
}

// classify maps transport and HTTP failures onto the outcome space: network
// trouble and server-side errors are transient, client-side rejections are
// permanent.
func classify(err error) Outcome {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return TransientFailure
		case statusErr.StatusCode >= 500:
			return TransientFailure
		default:
			return PermanentFailure
		}
	}

	// Timeouts, refused connections, DNS failures.
	return TransientFailure
}

type disabledSyncer struct {
	log *logger.Logger
}

// NewDisabledSyncer is wired when calendar sync is switched off; every call
// is a logged skip.
func NewDisabledSyncer(log *logger.Logger) Syncer {
	return &disabledSyncer{log: log}
}

func (s *disabledSyncer) CreateEvent(_ context.Context, reservation *model.Reservation) (string, Outcome) {
	s.log.Debug("Calendar sync disabled, skipping event creation", "reservation_id", reservation.ID)
	return "", PermanentFailure
}

func (s *disabledSyncer) UpdateEvent(_ context.Context, reservation *model.Reservation) Outcome {
	s.log.Debug("Calendar sync disabled, skipping event update", "reservation_id", reservation.ID)
	return PermanentFailure
}

func (s *disabledSyncer) DeleteEvent(_ context.Context, eventID string) Outcome {
	s.log.Debug("Calendar sync disabled, skipping event deletion", "calendar_event_id", eventID)
	return PermanentFailure
}
