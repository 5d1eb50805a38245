// Package cache keeps settled outcome records in Redis. Settled records are
// frozen, so entries never need invalidation; the TTL only bounds memory.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/evetabi/periodsettle/internal/config"
	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OutcomeCache is a read-through cache of settled OutcomeRecords. Redis
// failures degrade to cache misses; the database stays authoritative.
type OutcomeCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisClient connects and pings Redis using cfg.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache.NewRedisClient: ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewOutcomeCache wraps an existing client.
func NewOutcomeCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *OutcomeCache {
	return &OutcomeCache{client: client, ttl: ttl, logger: logger}
}

func key(itemID uuid.UUID, period domain.Period) string {
	return fmt.Sprintf("outcome:%s:%d", itemID, period)
}

// Get returns the cached record, if any.
func (c *OutcomeCache) Get(ctx context.Context, itemID uuid.UUID, period domain.Period) (*domain.OutcomeRecord, bool) {
	b, err := c.client.Get(ctx, key(itemID, period)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("outcome cache: get failed", "item", itemID, "period", period, "err", err)
		return nil, false
	}
	var rec domain.OutcomeRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		c.logger.Warn("outcome cache: corrupt entry", "item", itemID, "period", period, "err", err)
		return nil, false
	}
	return &rec, true
}

// Put stores a settled record. Unsettled records are ignored.
func (c *OutcomeCache) Put(ctx context.Context, rec *domain.OutcomeRecord) {
	if rec == nil || !rec.Settled {
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		c.logger.Warn("outcome cache: marshal failed", "item", rec.ItemID, "period", rec.Period, "err", err)
		return
	}
	if err := c.client.Set(ctx, key(rec.ItemID, rec.Period), b, c.ttl).Err(); err != nil {
		c.logger.Warn("outcome cache: set failed", "item", rec.ItemID, "period", rec.Period, "err", err)
	}
}
