package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"reservd/internal/calendar"
	"reservd/internal/reservation/cache"
	reservationerrors "reservd/internal/reservation/errors"
	"reservd/internal/reservation/repository"
	"reservd/internal/reservation/validator"
	"reservd/pkg/config"
	apperrors "reservd/pkg/errors"
	"reservd/pkg/model"
	"reservd/pkg/sanitizer"
)

type ReservationService interface {
	Create(ctx context.Context, principal model.Principal, input *model.ReservationInput) (*model.Reservation, error)
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
	List(ctx context.Context, filter repository.ListFilter, limit int, offset int64) ([]*model.Reservation, int64, error)
	Update(ctx context.Context, principal model.Principal, id string, patch *model.ReservationUpdate) (*model.Reservation, error)
	Cancel(ctx context.Context, principal model.Principal, id string) error
}

type reservationService struct {
	repo         repository.ReservationRepository
	resourceRepo repository.ResourceRepository
	lockRepo     repository.ResourceLockRepository
	validator    *validator.ReservationValidator
	syncer       calendar.Syncer
	publisher    EventPublisher
	statusCache  cache.StatusCache
	cfg          *config.Config
}

func NewReservationService(
	repo repository.ReservationRepository,
	resourceRepo repository.ResourceRepository,
	lockRepo repository.ResourceLockRepository,
	validator *validator.ReservationValidator,
	syncer calendar.Syncer,
	publisher EventPublisher,
	statusCache cache.StatusCache,
	cfg *config.Config,
) ReservationService {
	return &reservationService{
		repo:         repo,
		resourceRepo: resourceRepo,
		lockRepo:     lockRepo,
		validator:    validator,
		syncer:       syncer,
		publisher:    publisher,
		statusCache:  statusCache,
		cfg:          cfg,
	}
}

func (s *reservationService) Create(ctx context.Context, principal model.Principal, input *model.ReservationInput) (*model.Reservation, error) {
	s.sanitizeInput(input)

	if err := s.validator.ValidateInput(input); err != nil {
		s.cfg.Log.Warn("Reservation validation failed", "error", err)
		return nil, apperrors.Validation("Invalid reservation input", map[string]any{"error": err.Error()})
	}
	if err := s.validator.ValidateRange(input.Range()); err != nil {
		return nil, apperrors.InvalidRange(err.Error())
	}

	if err := s.checkResourceBookable(ctx, input.ResourceID); err != nil {
		return nil, err
	}

	reservation := &model.Reservation{
		ID:          uuid.New().String(),
		UserID:      principal.UserID,
		ResourceID:  input.ResourceID,
		Title:       input.Title,
		Description: input.Description,
		StartAt:     input.StartAt,
		EndAt:       input.EndAt,
		Status:      model.StatusActive,
	}

	if err := s.withResourceLock(ctx, reservation.ResourceID, func() error {
		return s.insertExclusive(ctx, reservation, "")
	}); err != nil {
		s.cfg.Log.Error("Failed to create reservation",
			"resource_id", reservation.ResourceID,
			"error", err,
		)
		return nil, err
	}

	s.cfg.Log.Info("Reservation created successfully",
		"id", reservation.ID,
		"resource_id", reservation.ResourceID,
		"user_id", reservation.UserID,
		"start_at", reservation.StartAt,
	)

	s.statusCache.Invalidate(ctx)
	snapshot := *reservation
	go s.afterCreate(&snapshot)

	return reservation, nil
}

func (s *reservationService) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}

	reservation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, reservationerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Reservation", id)
		}
		return nil, apperrors.Internal("Failed to retrieve reservation", err)
	}

	return reservation, nil
}

func (s *reservationService) List(ctx context.Context, filter repository.ListFilter, limit int, offset int64) ([]*model.Reservation, int64, error) {
	var count int64
	var reservations []*model.Reservation
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, filter)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count reservations", "error", errCount)
			errCount = apperrors.Internal("Failed to count reservations", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		reservations, errFind = s.repo.FindAll(ctx, filter, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list reservations", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve reservations", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return reservations, count, nil
}

func (s *reservationService) Update(ctx context.Context, principal model.Principal, id string, patch *model.ReservationUpdate) (*model.Reservation, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.guardMutation(principal, existing); err != nil {
		return nil, err
	}
	if !existing.IsActive() {
		return nil, apperrors.Conflict("Cancelled reservation cannot be modified")
	}

	if err := s.validator.ValidateUpdate(patch); err != nil {
		s.cfg.Log.Warn("Reservation update validation failed", "id", id, "error", err)
		return nil, apperrors.Validation("Invalid update input", map[string]any{"error": err.Error()})
	}
	s.sanitizeUpdate(patch)

	if !patch.ChangesPlacement() {
		return s.updateMetadata(ctx, existing, patch)
	}

	return s.replace(ctx, existing, patch)
}

// updateMetadata applies title and description changes in place. The range
// is untouched, so no exclusion protocol runs.
func (s *reservationService) updateMetadata(ctx context.Context, existing *model.Reservation, patch *model.ReservationUpdate) (*model.Reservation, error) {
	if err := s.repo.UpdateMetadata(ctx, existing.ID, patch.Title, patch.Description); err != nil {
		if errors.Is(err, reservationerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Reservation", existing.ID)
		}
		return nil, apperrors.Internal("Failed to update reservation", err)
	}

	updated, err := s.GetByID(ctx, existing.ID)
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Info("Reservation updated successfully", "id", updated.ID)

	s.statusCache.Invalidate(ctx)
	snapshot := *updated
	go s.afterUpdate(&snapshot, "")

	return updated, nil
}

// replace handles range or resource changes: the prior row is cancelled and
// a fresh row is created through the full conflict protocol, both inside one
// transaction, so no moment exists where either zero or two rows hold the
// slot.
func (s *reservationService) replace(ctx context.Context, existing *model.Reservation, patch *model.ReservationUpdate) (*model.Reservation, error) {
	replacement := s.mergeReplacement(existing, patch)

	if err := s.validator.ValidateRange(replacement.Range()); err != nil {
		return nil, apperrors.InvalidRange(err.Error())
	}
	if err := s.checkResourceBookable(ctx, replacement.ResourceID); err != nil {
		return nil, err
	}

	err := s.withResourceLock(ctx, replacement.ResourceID, func() error {
		if err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
			existingRows, err := s.repo.FindActiveOverlapping(txCtx, replacement.ResourceID, replacement.Range(), existing.ID)
			if err != nil {
				return apperrors.Internal("Failed to check existing reservations", err)
			}
			if conflicts := Conflicting(existingRows, replacement.Range(), existing.ID); len(conflicts) > 0 {
				return conflictError(conflicts[0])
			}

			if err := s.repo.SetStatus(txCtx, existing.ID, model.StatusCancelled); err != nil {
				return apperrors.Internal("Failed to supersede reservation", err)
			}

			if err := s.repo.Insert(txCtx, replacement); err != nil {
				if errors.Is(err, reservationerrors.ErrOverlap) {
					return conflictError(nil)
				}
				return apperrors.Internal("Failed to create replacement reservation", err)
			}

			return nil
		}); err != nil {
			return err
		}

		// Verification and any restore run while the lock is still held.
		if err := s.repo.VerifyExclusive(ctx, replacement); err != nil {
			if errors.Is(err, reservationerrors.ErrOverlap) {
				// The replacement lost the race and was rolled back.
				s.restoreSuperseded(ctx, existing)
				return conflictError(nil)
			}
			return apperrors.Internal("Failed to verify replacement reservation", err)
		}

		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to update reservation placement",
			"id", existing.ID,
			"resource_id", replacement.ResourceID,
			"error", err,
		)
		return nil, err
	}

	s.cfg.Log.Info("Reservation placement updated",
		"id", replacement.ID,
		"superseded_id", existing.ID,
		"resource_id", replacement.ResourceID,
	)

	s.statusCache.Invalidate(ctx)
	snapshot := *replacement
	go s.afterUpdate(&snapshot, existing.ID)

	return replacement, nil
}

// restoreSuperseded reactivates the prior row after a lost replacement, but
// only if its slot is still free. A writer that bypassed the lock may have
// legitimately booked it in the meantime, and reactivating over that booking
// would put two active rows on the same slot.
func (s *reservationService) restoreSuperseded(ctx context.Context, existing *model.Reservation) {
	rows, err := s.repo.FindActiveOverlapping(ctx, existing.ResourceID, existing.Range(), existing.ID)
	if err != nil {
		s.cfg.Log.Error("Failed to check slot before restoring superseded reservation", "id", existing.ID, "error", err)
		return
	}
	if len(rows) > 0 {
		s.cfg.Log.Warn("Slot taken while update was in flight, superseded reservation stays cancelled",
			"id", existing.ID,
			"resource_id", existing.ResourceID,
		)
		return
	}
	if err := s.repo.SetStatus(ctx, existing.ID, model.StatusActive); err != nil {
		s.cfg.Log.Error("Failed to restore superseded reservation", "id", existing.ID, "error", err)
	}
}

func (s *reservationService) Cancel(ctx context.Context, principal model.Principal, id string) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.guardMutation(principal, existing); err != nil {
		return err
	}

	// Repeat cancellation is a success, not an error.
	if !existing.IsActive() {
		s.cfg.Log.Debug("Reservation already cancelled", "id", id)
		return nil
	}

	if err := s.repo.SetStatus(ctx, id, model.StatusCancelled); err != nil {
		if errors.Is(err, reservationerrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Reservation", id)
		}
		return apperrors.Internal("Failed to cancel reservation", err)
	}

	s.cfg.Log.Info("Reservation cancelled successfully", "id", id, "resource_id", existing.ResourceID)

	s.statusCache.Invalidate(ctx)
	go s.afterCancel(existing)

	return nil
}

// --- Helpers ---

// guardMutation enforces the ownership and temporal rules shared by Update
// and Cancel: only the owner or an admin may mutate, and elapsed
// reservations are immutable.
func (s *reservationService) guardMutation(principal model.Principal, reservation *model.Reservation) error {
	if !principal.CanMutate(reservation.UserID) {
		return apperrors.NotOwner("Only the reservation owner or an administrator may modify it")
	}
	if reservation.IsPast(time.Now()) {
		return apperrors.PastReservation("Reservation has already ended and can no longer be modified")
	}
	return nil
}

func (s *reservationService) checkResourceBookable(ctx context.Context, resourceID string) error {
	resource, err := s.resourceRepo.FindByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, reservationerrors.ErrResourceNotFound) {
			return apperrors.NotFoundWithID("Resource", resourceID)
		}
		return apperrors.Internal("Failed to retrieve resource", err)
	}
	if !resource.IsActive {
		return apperrors.ResourceInactive(resourceID)
	}
	return nil
}

// withResourceLock runs fn while holding the resource's exclusive booking
// lock, waiting at most LockWaitTimeout to acquire it. Locks on distinct
// resources never contend.
func (s *reservationService) withResourceLock(ctx context.Context, resourceID string, fn func() error) error {
	token, err := s.lockRepo.Acquire(ctx, resourceID)
	if err != nil {
		if errors.Is(err, reservationerrors.ErrLockHeld) {
			return apperrors.Busy(resourceID)
		}
		return apperrors.Internal("Failed to acquire resource lock", err)
	}
	defer func() {
		if releaseErr := s.lockRepo.Release(ctx, resourceID, token); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release resource lock",
				"resource_id", resourceID,
				"error", releaseErr,
			)
		}
	}()

	return fn()
}

// insertExclusive runs the conflict check and guarded insert inside a
// transaction, then verifies the committed state. The verification catches
// the narrow window where two guarded upserts race past each other.
func (s *reservationService) insertExclusive(ctx context.Context, reservation *model.Reservation, excludeID string) error {
	err := s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		existingRows, err := s.repo.FindActiveOverlapping(txCtx, reservation.ResourceID, reservation.Range(), excludeID)
		if err != nil {
			return apperrors.Internal("Failed to check existing reservations", err)
		}
		if conflicts := Conflicting(existingRows, reservation.Range(), excludeID); len(conflicts) > 0 {
			return conflictError(conflicts[0])
		}

		if err := s.repo.Insert(txCtx, reservation); err != nil {
			if errors.Is(err, reservationerrors.ErrOverlap) {
				return conflictError(nil)
			}
			return apperrors.Internal("Failed to create reservation", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	if err := s.repo.VerifyExclusive(ctx, reservation); err != nil {
		if errors.Is(err, reservationerrors.ErrOverlap) {
			return conflictError(nil)
		}
		return apperrors.Internal("Failed to verify reservation", err)
	}

	return nil
}

func conflictError(conflicting *model.Reservation) error {
	if conflicting == nil {
		return apperrors.Conflict("Requested time range overlaps an existing reservation")
	}
	return apperrors.Conflict(fmt.Sprintf(
		"Requested time range overlaps an existing reservation (%s - %s)",
		conflicting.StartAt.Format(time.RFC3339),
		conflicting.EndAt.Format(time.RFC3339),
	))
}

func (s *reservationService) sanitizeInput(input *model.ReservationInput) {
	input.Title = sanitizer.NormalizeTitle(input.Title)
	input.Description = sanitizer.NormalizeDescription(input.Description)
}

func (s *reservationService) sanitizeUpdate(patch *model.ReservationUpdate) {
	if patch.Title != "" {
		patch.Title = sanitizer.NormalizeTitle(patch.Title)
	}
	if patch.Description != nil {
		normalized := sanitizer.NormalizeDescription(*patch.Description)
		patch.Description = &normalized
	}
}

// mergeReplacement builds the row that supersedes existing under a
// placement change. It gets a fresh id; the calendar event carries over so
// the external mirror is updated rather than duplicated.
func (s *reservationService) mergeReplacement(existing *model.Reservation, patch *model.ReservationUpdate) *model.Reservation {
	replacement := &model.Reservation{
		ID:              uuid.New().String(),
		UserID:          existing.UserID,
		ResourceID:      existing.ResourceID,
		Title:           existing.Title,
		Description:     existing.Description,
		StartAt:         existing.StartAt,
		EndAt:           existing.EndAt,
		Status:          model.StatusActive,
		CalendarEventID: existing.CalendarEventID,
	}

	if patch.Title != "" {
		replacement.Title = patch.Title
	}
	if patch.Description != nil {
		replacement.Description = *patch.Description
	}
	if patch.ResourceID != "" {
		replacement.ResourceID = patch.ResourceID
	}
	if patch.StartAt != nil {
		replacement.StartAt = *patch.StartAt
	}
	if patch.EndAt != nil {
		replacement.EndAt = *patch.EndAt
	}

	return replacement
}

// --- Post-commit side effects ---
//
// Calendar sync and event publishing run detached from the request: the
// booking decision is already durable, so these use a background context
// with their own deadline and only ever log failures.

func (s *reservationService) postCommitContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.SyncTimeout+5*time.Second)
}

func (s *reservationService) afterCreate(reservation *model.Reservation) {
	ctx, cancel := s.postCommitContext()
	defer cancel()

	eventID, outcome := s.syncer.CreateEvent(ctx, reservation)
	if outcome == calendar.Success && eventID != "" {
		reservation.CalendarEventID = eventID
		if err := s.repo.SetCalendarEventID(ctx, reservation.ID, eventID); err != nil {
			s.cfg.Log.Warn("Failed to record calendar event id",
				"reservation_id", reservation.ID,
				"calendar_event_id", eventID,
				"error", err,
			)
		}
	}

	s.publish(ctx, &model.ReservationEvent{
		Type:        model.EventReservationCreated,
		Reservation: reservation,
	})
}

func (s *reservationService) afterUpdate(reservation *model.Reservation, supersededID string) {
	ctx, cancel := s.postCommitContext()
	defer cancel()

	if reservation.CalendarEventID != "" {
		s.syncer.UpdateEvent(ctx, reservation)
	} else {
		eventID, outcome := s.syncer.CreateEvent(ctx, reservation)
		if outcome == calendar.Success && eventID != "" {
			reservation.CalendarEventID = eventID
			if err := s.repo.SetCalendarEventID(ctx, reservation.ID, eventID); err != nil {
				s.cfg.Log.Warn("Failed to record calendar event id",
					"reservation_id", reservation.ID,
					"calendar_event_id", eventID,
					"error", err,
				)
			}
		}
	}

	s.publish(ctx, &model.ReservationEvent{
		Type:         model.EventReservationUpdated,
		SupersededID: supersededID,
		Reservation:  reservation,
	})
}

func (s *reservationService) afterCancel(reservation *model.Reservation) {
	ctx, cancel := s.postCommitContext()
	defer cancel()

	s.syncer.DeleteEvent(ctx, reservation.CalendarEventID)

	cancelled := *reservation
	cancelled.Status = model.StatusCancelled

	s.publish(ctx, &model.ReservationEvent{
		Type:        model.EventReservationCancelled,
		Reservation: &cancelled,
	})
}

func (s *reservationService) publish(ctx context.Context, event *model.ReservationEvent) {
	if err := s.publisher.PublishReservationEvent(ctx, event); err != nil {
		s.cfg.Log.Warn("Failed to publish reservation event",
			"type", event.Type,
			"reservation_id", event.Reservation.ID,
			"error", err,
		)
	}
}
