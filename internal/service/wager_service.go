package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evetabi/periodsettle/internal/config"
	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/metrics"
	"github.com/evetabi/periodsettle/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WagerService places wagers for the open period of an item. The stake is
// debited and the wager row written in a single PostgreSQL transaction.
type WagerService struct {
	items    ItemCatalog
	wagers   WagerLookup
	tx       Transactor
	minStake decimal.Decimal
	cutoff   time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewWagerService creates a WagerService.
func NewWagerService(
	items ItemCatalog,
	wagers WagerLookup,
	tx Transactor,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *WagerService {
	return &WagerService{
		items:    items,
		wagers:   wagers,
		tx:       tx,
		minStake: cfg.Wager.MinStake,
		cutoff:   cfg.Wager.Cutoff,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (s *WagerService) SetClock(now func() time.Time) { s.now = now }

// ──────────────────────────────────────────────────────────────────────────────
// PlaceWager
// ──────────────────────────────────────────────────────────────────────────────

// PlaceWager validates the request against the item and the clock, then
// debits the stake and records the wager atomically.
func (s *WagerService) PlaceWager(ctx context.Context, req domain.PlaceWagerRequest) (*domain.Wager, error) {
	// ── 1. Input validation ──────────────────────────────────────────────────
	if len(req.Labels) == 0 {
		return nil, domain.ErrEmptyLabelSet
	}
	for _, l := range req.Labels {
		if !l.IsValid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidLabel, l)
		}
	}
	if !req.Stake.IsPositive() {
		return nil, domain.ErrInvalidStake
	}
	if req.Stake.LessThan(s.minStake) {
		return nil, domain.ErrWagerTooSmall
	}
	// NUMERIC(18,4) would silently round anything finer.
	if !req.Stake.Equal(req.Stake.Truncate(4)) {
		return nil, fmt.Errorf("%w: at most 4 decimal places", domain.ErrInvalidStake)
	}

	// ── 2. Item must be live and correctly configured ────────────────────────
	item, err := s.items.GetByID(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, domain.ErrItemInactive
	}
	if item.ConfigError != "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidItemConfig, item.ConfigError)
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	// ── 3. Only the open period, and not inside the cutoff ───────────────────
	if err := s.checkOpen(item, req.Period); err != nil {
		return nil, err
	}

	// ── 4. Debit + insert in one transaction ─────────────────────────────────
	wager := &domain.Wager{
		ID:        uuid.New(),
		UserID:    req.UserID,
		ItemID:    req.ItemID,
		Period:    req.Period,
		Labels:    req.Labels,
		Stake:     req.Stake,
		CreatedAt: s.now().UTC(),
	}
	tag := domain.LedgerTag{ItemID: item.ID, Period: req.Period, WagerID: wager.ID}

	err = s.tx.InTx(ctx, func(uow repository.UnitOfWork) error {
		// Item row before wallet row, the order settlement locks them in.
		if err := uow.GuardOpenPeriod(ctx, item.ID, req.Period); err != nil {
			return err
		}
		if _, err := uow.Debit(ctx, req.UserID, req.Stake, tag); err != nil {
			return err
		}
		if err := uow.CreateWager(ctx, wager); err != nil {
			return err
		}
		// The period may have rolled over while we waited on the wallet lock.
		return s.checkOpen(item, req.Period)
	})
	if err != nil {
		return nil, fmt.Errorf("wager_service.PlaceWager: %w", err)
	}

	s.metrics.WagerPlaced()
	s.logger.Info("wager placed",
		"wager", wager.ID, "user", req.UserID, "item", req.ItemID,
		"period", req.Period, "labels", req.Labels.String(), "stake", req.Stake.StringFixed(4))
	return wager, nil
}

func (s *WagerService) checkOpen(item *domain.WageringItem, period domain.Period) error {
	current, remaining, err := domain.CurrentPeriod(item.PeriodDurationSeconds, s.now())
	if err != nil {
		return err
	}
	switch {
	case period > current:
		return domain.ErrPeriodInFuture
	case period < current:
		return domain.ErrPeriodClosed
	case time.Duration(remaining)*time.Second <= s.cutoff:
		return fmt.Errorf("%w: %ds left, cutoff %s", domain.ErrPeriodClosed, remaining, s.cutoff)
	}
	return nil
}

// ListMine returns a user's wagers, newest first.
func (s *WagerService) ListMine(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Wager, error) {
	wagers, err := s.wagers.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wager_service.ListMine: %w", err)
	}
	return wagers, nil
}
