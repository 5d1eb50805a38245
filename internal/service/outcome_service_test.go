package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/service"
	"github.com/google/uuid"
)

type fakeCache struct {
	mu   sync.Mutex
	recs map[outcomeKey]domain.OutcomeRecord
	hits int
}

func newFakeCache() *fakeCache {
	return &fakeCache{recs: make(map[outcomeKey]domain.OutcomeRecord)}
}

func (c *fakeCache) Get(_ context.Context, itemID uuid.UUID, p domain.Period) (*domain.OutcomeRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.recs[outcomeKey{itemID, p}]
	if !ok {
		return nil, false
	}
	c.hits++
	return &r, true
}

func (c *fakeCache) Put(_ context.Context, rec *domain.OutcomeRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recs[outcomeKey{rec.ItemID, rec.Period}] = *rec
}

func TestOutcome_HiddenUntilPeriodCloses(t *testing.T) {
	store := newMemStore()
	item := store.addItem(60)
	store.putOutcome(item.ID, 10, domain.LabelB, nil)
	svc := service.NewOutcomeService(store, store, nil)
	svc.SetClock(func() time.Time { return time.Unix(610, 0) }) // current 10

	if _, err := svc.Outcome(context.Background(), item.ID, 10); !errors.Is(err, domain.ErrOutcomeNotFound) {
		t.Errorf("open period err = %v, want ErrOutcomeNotFound", err)
	}

	svc.SetClock(func() time.Time { return time.Unix(661, 0) }) // current 11
	v, err := svc.Outcome(context.Background(), item.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if v.Primary != domain.LabelB || v.Settled {
		t.Errorf("view = %+v", v)
	}
}

func TestOutcome_CachesSettledOnly(t *testing.T) {
	store := newMemStore()
	item := store.addItem(60)
	store.putOutcome(item.ID, 3, domain.LabelD, nil)
	store.putOutcome(item.ID, 4, domain.LabelA, nil)
	ctx := context.Background()
	if _, err := newSettlement(store).SettlePeriod(ctx, item, 3); err != nil {
		t.Fatal(err)
	}

	cache := newFakeCache()
	svc := service.NewOutcomeService(store, store, cache)
	svc.SetClock(func() time.Time { return time.Unix(600, 0) })

	for i := 0; i < 2; i++ {
		v, err := svc.Outcome(ctx, item.ID, 3)
		if err != nil || !v.Settled || v.Primary != domain.LabelD {
			t.Fatalf("Outcome(3) = %+v, %v", v, err)
		}
	}
	if cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1", cache.hits)
	}

	if _, err := svc.Outcome(ctx, item.ID, 4); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Get(ctx, item.ID, 4); ok {
		t.Error("unsettled record must not be cached")
	}

	if _, err := svc.Outcome(ctx, item.ID, 2); !errors.Is(err, domain.ErrOutcomeNotFound) {
		t.Errorf("missing period err = %v", err)
	}
}

func TestHistory_SettledOnly(t *testing.T) {
	store := newMemStore()
	item := store.addItem(60)
	ctx := context.Background()
	for p := domain.Period(1); p <= 3; p++ {
		store.putOutcome(item.ID, p, domain.LabelA, nil)
	}
	settle := newSettlement(store)
	for _, p := range []domain.Period{1, 2} {
		if _, err := settle.SettlePeriod(ctx, item, p); err != nil {
			t.Fatal(err)
		}
	}

	views, total, err := service.NewOutcomeService(store, store, nil).History(ctx, item.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(views) != 2 || views[0].Period != 2 {
		t.Errorf("History = %+v (total %d)", views, total)
	}
}
