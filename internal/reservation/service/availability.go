package service

import (
	"context"
	"errors"
	"time"

	"reservd/internal/reservation/cache"
	reservationerrors "reservd/internal/reservation/errors"
	"reservd/internal/reservation/repository"
	"reservd/pkg/config"
	apperrors "reservd/pkg/errors"
	"reservd/pkg/model"
)

// AvailabilityService answers read-only occupancy questions over committed
// rows. It takes no locks: a response is a consistent snapshot of the moment
// it was computed, nothing more.
type AvailabilityService interface {
	CheckAvailability(ctx context.Context, resourceID string, rng model.TimeRange) (*model.AvailabilityResult, error)
	Timeline(ctx context.Context, principal model.Principal, window model.TimeRange, resourceIDs []string) ([]*model.TimelineResource, error)
	ResourceStatus(ctx context.Context, principal model.Principal) ([]*model.ResourceStatus, error)
	MyReservations(ctx context.Context, principal model.Principal, status model.ReservationStatus, limit int, offset int64) ([]*model.Reservation, int64, error)
}

type availabilityService struct {
	repo         repository.ReservationRepository
	resourceRepo repository.ResourceRepository
	statusCache  cache.StatusCache
	cfg          *config.Config
}

func NewAvailabilityService(
	repo repository.ReservationRepository,
	resourceRepo repository.ResourceRepository,
	statusCache cache.StatusCache,
	cfg *config.Config,
) AvailabilityService {
	return &availabilityService{
		repo:         repo,
		resourceRepo: resourceRepo,
		statusCache:  statusCache,
		cfg:          cfg,
	}
}

func (s *availabilityService) CheckAvailability(ctx context.Context, resourceID string, rng model.TimeRange) (*model.AvailabilityResult, error) {
	if resourceID == "" {
		return nil, apperrors.InvalidInput("Resource ID cannot be empty")
	}
	if !rng.Valid() {
		return nil, apperrors.InvalidRange("end_at must be strictly after start_at")
	}

	resource, err := s.resourceRepo.FindByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, reservationerrors.ErrResourceNotFound) {
			return nil, apperrors.NotFoundWithID("Resource", resourceID)
		}
		return nil, apperrors.Internal("Failed to retrieve resource", err)
	}

	conflicts, err := s.repo.FindActiveOverlapping(ctx, resourceID, rng, "")
	if err != nil {
		return nil, apperrors.Internal("Failed to check availability", err)
	}

	return &model.AvailabilityResult{
		Available: resource.IsActive && len(conflicts) == 0,
		Conflicts: conflicts,
	}, nil
}

func (s *availabilityService) Timeline(ctx context.Context, principal model.Principal, window model.TimeRange, resourceIDs []string) ([]*model.TimelineResource, error) {
	if !window.Valid() {
		return nil, apperrors.InvalidRange("timeline window end must be strictly after its start")
	}

	resources, err := s.resourceRepo.FindAllActive(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve resources", err)
	}

	wanted := map[string]bool{}
	for _, id := range resourceIDs {
		wanted[id] = true
	}

	timeline := make([]*model.TimelineResource, 0, len(resources))
	for _, resource := range resources {
		if len(wanted) > 0 && !wanted[resource.ID] {
			continue
		}

		reservations, err := s.repo.FindActiveOverlapping(ctx, resource.ID, window, "")
		if err != nil {
			return nil, apperrors.Internal("Failed to retrieve timeline reservations", err)
		}

		entries := make([]model.TimelineEntry, 0, len(reservations))
		for _, r := range reservations {
			entries = append(entries, entryFrom(r, principal))
		}

		timeline = append(timeline, &model.TimelineResource{
			ID:           resource.ID,
			Name:         resource.Name,
			Reservations: entries,
		})
	}

	return timeline, nil
}

func (s *availabilityService) ResourceStatus(ctx context.Context, principal model.Principal) ([]*model.ResourceStatus, error) {
	if cached, ok := s.statusCache.Get(ctx); ok {
		stampViewer(cached, principal)
		return cached, nil
	}

	statuses, err := s.buildStatusSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	s.statusCache.Set(ctx, statuses)
	stampViewer(statuses, principal)

	return statuses, nil
}

func (s *availabilityService) buildStatusSnapshot(ctx context.Context) ([]*model.ResourceStatus, error) {
	resources, err := s.resourceRepo.FindAllActive(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to retrieve resources", err)
	}

	now := time.Now().UTC()

	statuses := make([]*model.ResourceStatus, 0, len(resources))
	for _, resource := range resources {
		current, err := s.repo.FindCurrent(ctx, resource.ID, now)
		if err != nil {
			return nil, apperrors.Internal("Failed to retrieve current reservation", err)
		}
		next, err := s.repo.FindNext(ctx, resource.ID, now)
		if err != nil {
			return nil, apperrors.Internal("Failed to retrieve next reservation", err)
		}

		status := &model.ResourceStatus{
			ID:    resource.ID,
			Name:  resource.Name,
			State: model.StateAvailable,
		}
		if current != nil {
			entry := entryFrom(current, model.Principal{})
			status.Current = &entry
			status.State = model.StateInUse
		} else if next != nil {
			status.State = model.StateReserved
		}
		if next != nil {
			entry := entryFrom(next, model.Principal{})
			status.Next = &entry
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}

func (s *availabilityService) MyReservations(ctx context.Context, principal model.Principal, status model.ReservationStatus, limit int, offset int64) ([]*model.Reservation, int64, error) {
	filter := repository.ListFilter{
		UserID: principal.UserID,
		Status: status,
	}

	var count int64
	var reservations []*model.Reservation

	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		s.cfg.Log.Error("Failed to count user reservations", "user_id", principal.UserID, "error", err)
		return nil, 0, apperrors.Internal("Failed to count reservations", err)
	}

	reservations, err = s.repo.FindAll(ctx, filter, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list user reservations", "user_id", principal.UserID, "error", err)
		return nil, 0, apperrors.Internal("Failed to retrieve reservations", err)
	}

	return reservations, count, nil
}

func entryFrom(r *model.Reservation, principal model.Principal) model.TimelineEntry {
	return model.TimelineEntry{
		ID:      r.ID,
		Title:   r.Title,
		UserID:  r.UserID,
		StartAt: r.StartAt,
		EndAt:   r.EndAt,
		Mine:    principal.UserID != "" && r.UserID == principal.UserID,
	}
}

// stampViewer fills the viewer-dependent Mine flags on a snapshot. The
// snapshot itself is stored viewer-neutral.
func stampViewer(statuses []*model.ResourceStatus, principal model.Principal) {
	for _, status := range statuses {
		if status.Current != nil {
			status.Current.Mine = principal.UserID != "" && status.Current.UserID == principal.UserID
		}
		if status.Next != nil {
			status.Next.Mine = principal.UserID != "" && status.Next.UserID == principal.UserID
		}
	}
}
