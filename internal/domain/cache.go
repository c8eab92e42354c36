package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (community) + Redis (pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// IncrementCounter atomically increments a counter and returns new value.
	// The counter expires window after its first increment.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// DecrementCounter takes back one increment. Missing or expired
	// counters are left alone.
	DecrementCounter(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `env:"TYPE"`

	// Local LRU cache settings (community tier)
	LocalMaxSize int           `env:"LOCAL_MAX_SIZE"`
	LocalTTL     time.Duration `env:"LOCAL_TTL"`

	// Redis settings (pro tier)
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	// Two-phase settings
	EnableTwoPhase bool `env:"TWO_PHASE"` // If true, check local first, then Redis

	// TTLs for cached reads
	ComplaintTTL time.Duration `env:"COMPLAINT_TTL"`
	StatsTTL     time.Duration `env:"STATS_TTL"`
}
