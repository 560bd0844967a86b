package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"reservd/pkg/logger"
	"reservd/pkg/model"
)

const statusSnapshotKey = "reservd:resource_status_snapshot"

// StatusCache holds the short-lived resource status snapshot. Entries are
// stored viewer-neutral; the availability service stamps viewer-specific
// fields after load. A nil Redis client disables the cache entirely.
type StatusCache interface {
	Get(ctx context.Context) ([]*model.ResourceStatus, bool)
	Set(ctx context.Context, statuses []*model.ResourceStatus)
	Invalidate(ctx context.Context)
}

type redisStatusCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

func NewStatusCache(client *redis.Client, ttl time.Duration, log *logger.Logger) StatusCache {
	if client == nil {
		log.Warn("Redis client not configured, resource status cache disabled")
		return noopStatusCache{}
	}
	return &redisStatusCache{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func (c *redisStatusCache) Get(ctx context.Context) ([]*model.ResourceStatus, bool) {
	data, err := c.client.Get(ctx, statusSnapshotKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("Failed to read status snapshot from cache", "error", err)
		}
		return nil, false
	}

	var statuses []*model.ResourceStatus
	if err := json.Unmarshal(data, &statuses); err != nil {
		c.log.Warn("Failed to decode cached status snapshot", "error", err)
		return nil, false
	}

	return statuses, true
}

func (c *redisStatusCache) Set(ctx context.Context, statuses []*model.ResourceStatus) {
	data, err := json.Marshal(statuses)
	if err != nil {
		c.log.Warn("Failed to encode status snapshot for cache", "error", err)
		return
	}

	if err := c.client.Set(ctx, statusSnapshotKey, data, c.ttl).Err(); err != nil {
		c.log.Warn("Failed to write status snapshot to cache", "error", err)
	}
}

// Invalidate drops the snapshot. Called after every committed booking change
// so the next status read reflects it immediately instead of after TTL.
func (c *redisStatusCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, statusSnapshotKey).Err(); err != nil {
		c.log.Warn("Failed to invalidate status snapshot", "error", err)
	}
}

type noopStatusCache struct{}

func (noopStatusCache) Get(context.Context) ([]*model.ResourceStatus, bool) { return nil, false }
func (noopStatusCache) Set(context.Context, []*model.ResourceStatus)        {}
func (noopStatusCache) Invalidate(context.Context)                          {}
