package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	reservationerrors "reservd/internal/reservation/errors"
	"reservd/pkg/config"
	mongotx "reservd/pkg/db/mongo"
	"reservd/pkg/model"
)

const (
	CollectionName = "Reservations"
)

// ListFilter narrows reservation listings. Nil or zero fields are ignored.
type ListFilter struct {
	ResourceID string
	UserID     string
	Status     model.ReservationStatus
	From       *time.Time
	To         *time.Time
}

type ReservationRepository interface {
	Insert(ctx context.Context, reservation *model.Reservation) error
	VerifyExclusive(ctx context.Context, reservation *model.Reservation) error
	FindByID(ctx context.Context, id string) (*model.Reservation, error)
	FindAll(ctx context.Context, filter ListFilter, limit int, offset int64) ([]*model.Reservation, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
	FindActiveOverlapping(ctx context.Context, resourceID string, rng model.TimeRange, excludeID string) ([]*model.Reservation, error)
	UpdateMetadata(ctx context.Context, id string, title string, description *string) error
	SetStatus(ctx context.Context, id string, status model.ReservationStatus) error
	SetCalendarEventID(ctx context.Context, id string, eventID string) error
	FindCurrent(ctx context.Context, resourceID string, at time.Time) (*model.Reservation, error)
	FindNext(ctx context.Context, resourceID string, after time.Time) (*model.Reservation, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoReservationRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoReservationRepository(cfg *config.Config) ReservationRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoReservationRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless a Mongo session is
// already attached; wrapping a session context would break transaction
// semantics, so those pass through with a no-op cancel.
func (r *mongoReservationRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if mongo.SessionFromContext(ctx) != nil {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

// overlapFilter matches active reservations on resourceID whose half-open
// range [start_at, end_at) intersects rng. Touching endpoints do not match.
func overlapFilter(resourceID string, rng model.TimeRange, excludeID string) bson.M {
	filter := bson.M{
		"resource_id": resourceID,
		"status":      model.StatusActive,
		"start_at":    bson.M{"$lt": rng.EndAt},
		"end_at":      bson.M{"$gt": rng.StartAt},
	}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	return filter
}

// Insert writes the reservation through a guarded upsert: the filter matches
// any active overlapping row on the same resource, and the document is only
// inserted when nothing matched. A match means a competing row already holds
// part of the range and the insert is refused.
func (r *mongoReservationRepository) Insert(ctx context.Context, reservation *model.Reservation) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	reservation.CreatedAt = now
	reservation.UpdatedAt = now

	// resource_id and status are equality conditions in the filter and flow
	// into the upserted document from there.
	doc := bson.M{
		"_id":         reservation.ID,
		"user_id":     reservation.UserID,
		"title":       reservation.Title,
		"description": reservation.Description,
		"start_at":    reservation.StartAt,
		"end_at":      reservation.EndAt,
		"created_at":  reservation.CreatedAt,
		"updated_at":  reservation.UpdatedAt,
	}
	if reservation.CalendarEventID != "" {
		doc["calendar_event_id"] = reservation.CalendarEventID
	}

	filter := overlapFilter(reservation.ResourceID, reservation.Range(), "")
	update := bson.M{"$setOnInsert": doc}

	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}

	if result.MatchedCount > 0 {
		return reservationerrors.ErrOverlap
	}

	return nil
}

// VerifyExclusive re-reads the committed state after an insert. Two guarded
// upserts can race past each other when neither sees the other's row, so the
// deterministic loser (later created_at, then later _id) deletes its own row
// and reports the overlap.
func (r *mongoReservationRepository) VerifyExclusive(ctx context.Context, reservation *model.Reservation) error {
	competitors, err := r.FindActiveOverlapping(ctx, reservation.ResourceID, reservation.Range(), reservation.ID)
	if err != nil {
		return err
	}

	for _, other := range competitors {
		if other.CreatedAt.Before(reservation.CreatedAt) ||
			(other.CreatedAt.Equal(reservation.CreatedAt) && other.ID < reservation.ID) {
			if delErr := r.deleteByID(ctx, reservation.ID); delErr != nil {
				return fmt.Errorf("failed to roll back losing reservation: %w", delErr)
			}
			return reservationerrors.ErrOverlap
		}
	}

	return nil
}

// deleteByID physically removes a row. Only the post-insert verification
// uses it; cancellation everywhere else is a status change.
func (r *mongoReservationRepository) deleteByID(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *mongoReservationRepository) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var reservation model.Reservation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&reservation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}

	return &reservation, nil
}

func buildListFilter(filter ListFilter) bson.M {
	query := bson.M{}

	if filter.ResourceID != "" {
		query["resource_id"] = filter.ResourceID
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	if filter.From != nil || filter.To != nil {
		timeFilter := bson.M{}
		if filter.From != nil && filter.To != nil {
			timeFilter = bson.M{
				"start_at": bson.M{"$lt": *filter.To},
				"end_at":   bson.M{"$gt": *filter.From},
			}
		} else if filter.From != nil {
			timeFilter = bson.M{
				"end_at": bson.M{"$gt": *filter.From},
			}
		} else {
			timeFilter = bson.M{
				"start_at": bson.M{"$lt": *filter.To},
			}
		}
		query["$and"] = []bson.M{timeFilter}
	}

	return query
}

func (r *mongoReservationRepository) FindAll(ctx context.Context, filter ListFilter, limit int, offset int64) ([]*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "start_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, buildListFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var reservations []*model.Reservation
	if err = cursor.All(ctx, &reservations); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}

	return reservations, nil
}

func (r *mongoReservationRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildListFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count reservations: %w", err)
	}

	return count, nil
}

func (r *mongoReservationRepository) FindActiveOverlapping(ctx context.Context, resourceID string, rng model.TimeRange, excludeID string) ([]*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "start_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, overlapFilter(resourceID, rng, excludeID), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var reservations []*model.Reservation
	if err = cursor.All(ctx, &reservations); err != nil {
		return nil, fmt.Errorf("failed to decode overlapping reservations: %w", err)
	}

	return reservations, nil
}

func (r *mongoReservationRepository) UpdateMetadata(ctx context.Context, id string, title string, description *string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	set := bson.M{"updated_at": time.Now().UTC().Truncate(time.Millisecond)}
	if title != "" {
		set["title"] = title
	}
	if description != nil {
		set["description"] = *description
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update reservation metadata: %w", err)
	}

	if result.MatchedCount == 0 {
		return reservationerrors.ErrNotFound
	}

	return nil
}

func (r *mongoReservationRepository) SetStatus(ctx context.Context, id string, status model.ReservationStatus) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to set reservation status: %w", err)
	}

	if result.MatchedCount == 0 {
		return reservationerrors.ErrNotFound
	}

	return nil
}

func (r *mongoReservationRepository) SetCalendarEventID(ctx context.Context, id string, eventID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"calendar_event_id": eventID,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to set calendar event id: %w", err)
	}

	if result.MatchedCount == 0 {
		return reservationerrors.ErrNotFound
	}

	return nil
}

// FindCurrent returns the active reservation covering the instant, if any.
func (r *mongoReservationRepository) FindCurrent(ctx context.Context, resourceID string, at time.Time) (*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"resource_id": resourceID,
		"status":      model.StatusActive,
		"start_at":    bson.M{"$lte": at},
		"end_at":      bson.M{"$gt": at},
	}

	var reservation model.Reservation
	err := r.collection.FindOne(ctx, filter).Decode(&reservation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find current reservation: %w", err)
	}

	return &reservation, nil
}

// FindNext returns the earliest active reservation starting after the
// instant, if any.
func (r *mongoReservationRepository) FindNext(ctx context.Context, resourceID string, after time.Time) (*model.Reservation, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"resource_id": resourceID,
		"status":      model.StatusActive,
		"start_at":    bson.M{"$gt": after},
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "start_at", Value: 1}})

	var reservation model.Reservation
	err := r.collection.FindOne(ctx, filter, opts).Decode(&reservation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find next reservation: %w", err)
	}

	return &reservation, nil
}

func (r *mongoReservationRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
