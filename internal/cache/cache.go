package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/casewatch/internal/domain"
)

// New creates a cache for the configured type: "memory" is a process-local
// LRU, "redis" is Redis optionally fronted by the LRU.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// Key helpers keep cache keys in one place so readers and invalidators agree.

// ComplaintKey caches a single complaint read.
func ComplaintKey(id string) string { return "complaint:" + id }

// UpdatesKey caches the audit trail of a complaint.
func UpdatesKey(id string) string { return "complaint:" + id + ":updates" }

// StatsKey caches the dashboard aggregates.
const StatsKey = "dashboard:stats"

// ThrottleKey counts complaints filed from one phone number.
func ThrottleKey(phone string) string { return "throttle:phone:" + phone }

// GetJSON reads key and decodes it into v. It reports false on a miss.
func GetJSON(ctx context.Context, c domain.Cache, key string, v any) (bool, error) {
	data, err := c.Get(ctx, key)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c domain.Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}

// TwoPhaseCache reads through a local LRU (L1) before Redis (L2).
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration

	// Set by Attach.
	node string
	bus  domain.EventBus
	sub  domain.Subscription
}

// invalidation is broadcast on TopicCacheInvalidated for every Delete.
type invalidation struct {
	Key  string `json:"key"`
	Node string `json:"node"`
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes to both L1 and L2. L1 never outlives L2.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := min(c.l1TTL, ttl)
	if err := c.local.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, value, ttl)
}

// Attach links the L1 caches of every node sharing bus: each Delete is
// broadcast, and deletes from other nodes drop the local copy. Call it
// before serving traffic.
func (c *TwoPhaseCache) Attach(ctx context.Context, bus domain.EventBus) error {
	node := uuid.NewString()
	sub, err := bus.SubscribeAll(ctx, domain.TopicCacheInvalidated, func(ctx context.Context, msg *domain.Message) error {
		var inv invalidation
		if err := json.Unmarshal(msg.Payload, &inv); err != nil {
			return fmt.Errorf("decode cache invalidation: %w", err)
		}
		if inv.Node == node {
			return nil
		}
		return c.local.Delete(ctx, inv.Key)
	})
	if err != nil {
		return fmt.Errorf("subscribe cache invalidations: %w", err)
	}
	c.node, c.bus, c.sub = node, bus, sub
	return nil
}

// Delete removes from both L1 and L2, then tells attached peers to drop
// their L1 copy.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	if err := c.remote.Delete(ctx, key); err != nil {
		return err
	}
	if c.bus == nil {
		return nil
	}

	payload, err := json.Marshal(invalidation{Key: key, Node: c.node})
	if err != nil {
		return err
	}
	if err := c.bus.Publish(ctx, domain.TopicCacheInvalidated, payload); err != nil {
		return fmt.Errorf("broadcast invalidation of %s: %w", key, err)
	}
	return nil
}

// IncrementCounter is served by Redis only so every node sees one count.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, key, window)
}

// DecrementCounter is served by Redis only, like IncrementCounter.
func (c *TwoPhaseCache) DecrementCounter(ctx context.Context, key string) error {
	return c.remote.DecrementCounter(ctx, key)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close detaches from the bus and closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
