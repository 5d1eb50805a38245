package cache_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/evetabi/periodsettle/internal/cache"
	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// With Redis unreachable the cache must behave as a permanent miss.
func TestOutcomeCache_UnavailableIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := cache.NewOutcomeCache(client, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	rec := &domain.OutcomeRecord{ItemID: uuid.New(), Period: 7, Primary: domain.LabelB, Settled: true}

	c.Put(ctx, rec)
	if _, ok := c.Get(ctx, rec.ItemID, rec.Period); ok {
		t.Error("expected miss when redis is unreachable")
	}
}
