package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "reservd"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisDB        = 0
	DefaultStatusCacheTTL = 5 * time.Second

	DefaultPort = "8080"

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	// Mutating requests per user inside the sliding window.
	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Exclusive access acquisition: bounded wait, then RESOURCE_BUSY.
	DefaultLockWaitTimeout   = 5 * time.Second
	DefaultLockTTL           = 10 * time.Second
	DefaultLockRetryInterval = 50 * time.Millisecond

	DefaultMaxReservationDuration = 24 * time.Hour

	DefaultSyncTimeout = 5 * time.Second

	DefaultPaginationLimit = 200
)
