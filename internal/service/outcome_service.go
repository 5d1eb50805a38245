package service

import (
	"context"
	"fmt"
	"time"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/google/uuid"
)

// OutcomeService answers public result queries. Results are only revealed
// once their period has closed, so an early operator override stays hidden.
// Settled records never change and are served from the cache when one is
// configured.
type OutcomeService struct {
	items    ItemCatalog
	outcomes OutcomeStore
	cache    OutcomeCache
	now      func() time.Time
}

// NewOutcomeService creates an OutcomeService. cache may be nil.
func NewOutcomeService(items ItemCatalog, outcomes OutcomeStore, cache OutcomeCache) *OutcomeService {
	return &OutcomeService{items: items, outcomes: outcomes, cache: cache, now: time.Now}
}

// SetClock replaces the wall clock, for tests.
func (s *OutcomeService) SetClock(now func() time.Time) { s.now = now }

// Outcome returns the result of (item, period).
func (s *OutcomeService) Outcome(ctx context.Context, itemID uuid.UUID, period domain.Period) (*domain.OutcomeView, error) {
	it, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	current, _, err := domain.CurrentPeriod(it.PeriodDurationSeconds, s.now())
	if err != nil {
		return nil, err
	}
	if period >= current {
		return nil, domain.ErrOutcomeNotFound
	}

	if s.cache != nil {
		if rec, ok := s.cache.Get(ctx, itemID, period); ok {
			v := rec.ToView(it.PeriodDurationSeconds)
			return &v, nil
		}
	}

	rec, err := s.outcomes.Get(ctx, itemID, period)
	if err != nil {
		return nil, err
	}
	if rec.Settled && s.cache != nil {
		s.cache.Put(ctx, rec)
	}
	v := rec.ToView(it.PeriodDurationSeconds)
	return &v, nil
}

// History returns settled results for an item, newest first.
func (s *OutcomeService) History(ctx context.Context, itemID uuid.UUID, limit, offset int) ([]domain.OutcomeView, int, error) {
	it, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, 0, err
	}
	recs, total, err := s.outcomes.History(ctx, itemID, true, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("outcome_service.History: %w", err)
	}
	out := make([]domain.OutcomeView, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ToView(it.PeriodDurationSeconds))
	}
	return out, total, nil
}
