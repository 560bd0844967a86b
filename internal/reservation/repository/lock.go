package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	reservationerrors "reservd/internal/reservation/errors"
	"reservd/pkg/config"
	"reservd/pkg/model"
)

const (
	LockCollectionName = "Reservation_locks"
)

// ResourceLockRepository grants exclusive booking access per resource. The
// lock document's id is the resource id, so a unique insert is an atomic
// acquire. Expired locks left by crashed holders are taken over; the Mongo
// TTL index on expires_at is only a backstop since it sweeps at a coarse
// interval.
type ResourceLockRepository interface {
	Acquire(ctx context.Context, resourceID string) (token string, err error)
	Release(ctx context.Context, resourceID string, token string) error
}

type mongoResourceLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewResourceLockRepository(cfg *config.Config) ResourceLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoResourceLockRepository{
		cfg:        cfg,
		collection: db.Collection(LockCollectionName),
	}
}

// Acquire waits up to LockWaitTimeout for the resource lock, polling every
// LockRetryInterval. Returns the holder token on success and ErrLockHeld
// when the bounded wait elapses.
func (r *mongoResourceLockRepository) Acquire(ctx context.Context, resourceID string) (string, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(r.cfg.LockWaitTimeout)

	for {
		now := time.Now()

		lock := &model.ResourceLock{
			ResourceID: resourceID,
			Token:      token,
			ExpiresAt:  now.Add(r.cfg.LockTTL),
			CreatedAt:  now,
		}

		_, err := r.collection.InsertOne(ctx, lock)
		if err == nil {
			return token, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("failed to acquire resource lock: %w", err)
		}

		// Held by someone else. Evict it if its TTL has lapsed, then retry.
		if _, delErr := r.collection.DeleteOne(ctx, bson.M{
			"_id":        resourceID,
			"expires_at": bson.M{"$lt": now},
		}); delErr != nil {
			return "", fmt.Errorf("failed to evict expired resource lock: %w", delErr)
		}

		if time.Now().After(deadline) {
			return "", reservationerrors.ErrLockHeld
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.cfg.LockRetryInterval):
		}
	}
}

// Release deletes the lock only when the token matches, so a slow holder
// whose lock was taken over cannot free the successor's lock.
func (r *mongoResourceLockRepository) Release(ctx context.Context, resourceID string, token string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{
		"_id":   resourceID,
		"token": token,
	})
	if err != nil {
		return fmt.Errorf("failed to release resource lock: %w", err)
	}

	if result.DeletedCount == 0 {
		return reservationerrors.ErrLockNotOwned
	}

	return nil
}
