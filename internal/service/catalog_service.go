package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evetabi/periodsettle/internal/config"
	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/metrics"
	"github.com/google/uuid"
)

// ItemInput carries the operator-editable fields of a wagering item.
type ItemInput struct {
	Title                 string
	Coefficients          domain.Coefficients
	PeriodDurationSeconds int64
	Active                bool
}

// CatalogService maintains wagering items and accepts operator overrides.
type CatalogService struct {
	items            ItemWriter
	outcomes         OutcomeStore
	minPeriodSeconds int64
	metrics          *metrics.Metrics
	logger           *slog.Logger
	now              func() time.Time
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(
	items ItemWriter,
	outcomes OutcomeStore,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		items:            items,
		outcomes:         outcomes,
		minPeriodSeconds: cfg.Scheduler.MinPeriodSeconds,
		metrics:          m,
		logger:           logger,
		now:              time.Now,
	}
}

// SetClock replaces the wall clock, for tests.
func (s *CatalogService) SetClock(now func() time.Time) { s.now = now }

// ──────────────────────────────────────────────────────────────────────────────
// Item maintenance
// ──────────────────────────────────────────────────────────────────────────────

func (s *CatalogService) validateInput(in ItemInput) error {
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidItemConfig)
	}
	if in.PeriodDurationSeconds < s.minPeriodSeconds {
		return fmt.Errorf("%w: period_duration_seconds must be at least %d, got %d",
			domain.ErrInvalidItemConfig, s.minPeriodSeconds, in.PeriodDurationSeconds)
	}
	return in.Coefficients.Validate()
}

// CreateItem validates and persists a new item.
func (s *CatalogService) CreateItem(ctx context.Context, in ItemInput) (*domain.WageringItem, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	it := &domain.WageringItem{
		ID:                    uuid.New(),
		Title:                 in.Title,
		Coefficients:          in.Coefficients,
		PeriodDurationSeconds: in.PeriodDurationSeconds,
		Active:                in.Active,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.items.Create(ctx, it); err != nil {
		return nil, fmt.Errorf("catalog_service.CreateItem: %w", err)
	}
	s.logger.Info("catalog: item created", "item", it.ID, "title", it.Title, "period_seconds", it.PeriodDurationSeconds)
	return it, nil
}

// UpdateItem replaces the editable fields. A successful update clears any
// config_error flag the scheduler set.
//
// Changing the period length moves every period boundary; records already
// drawn under the old length keep their indices.
func (s *CatalogService) UpdateItem(ctx context.Context, id uuid.UUID, in ItemInput) (*domain.WageringItem, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	it, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Periods that passed while the item was off, or that were numbered under
	// another length, are not gap-filled. Wagered ones are still caught up.
	if (in.Active && !it.Active) || in.PeriodDurationSeconds != it.PeriodDurationSeconds {
		current, _, err := domain.CurrentPeriod(in.PeriodDurationSeconds, s.now())
		if err != nil {
			return nil, err
		}
		through := current.Prev()
		it.DrawnThrough = &through
	}
	it.Title = in.Title
	it.Coefficients = in.Coefficients
	it.PeriodDurationSeconds = in.PeriodDurationSeconds
	it.Active = in.Active
	it.ConfigError = ""
	if err := s.items.Update(ctx, it); err != nil {
		return nil, fmt.Errorf("catalog_service.UpdateItem: %w", err)
	}
	s.logger.Info("catalog: item updated", "item", id)
	return it, nil
}

// DisableItem soft-disables an item: it takes no new wagers and gets no draws
// for periods nobody wagered on. The scheduler keeps visiting it until every
// wager already placed is settled.
func (s *CatalogService) DisableItem(ctx context.Context, id uuid.UUID) error {
	if err := s.items.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("catalog_service.DisableItem: %w", err)
	}
	s.logger.Info("catalog: item disabled", "item", id)
	return nil
}

// ListItems returns every item for the back-office, paginated.
func (s *CatalogService) ListItems(ctx context.Context, limit, offset int) ([]*domain.WageringItem, int, error) {
	return s.items.List(ctx, limit, offset)
}

// GetItem returns one item.
func (s *CatalogService) GetItem(ctx context.Context, id uuid.UUID) (*domain.WageringItem, error) {
	return s.items.GetByID(ctx, id)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler-facing helpers
// ──────────────────────────────────────────────────────────────────────────────

// ActiveItems lists every active item, flagged ones included.
func (s *CatalogService) ActiveItems(ctx context.Context) ([]*domain.WageringItem, error) {
	items, err := s.items.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog_service.ActiveItems: %w", err)
	}
	return items, nil
}

// SchedulableItems lists the active items plus disabled ones that still have
// unsettled wagers or records.
func (s *CatalogService) SchedulableItems(ctx context.Context) ([]*domain.WageringItem, error) {
	items, err := s.items.ListSchedulable(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog_service.SchedulableItems: %w", err)
	}
	return items, nil
}

// FlagInvalid persists why an item cannot be processed.
func (s *CatalogService) FlagInvalid(ctx context.Context, id uuid.UUID, reason string) error {
	if err := s.items.FlagInvalid(ctx, id, reason); err != nil {
		return fmt.Errorf("catalog_service.FlagInvalid: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Public period view
// ──────────────────────────────────────────────────────────────────────────────

// ListOpen returns every active, correctly configured item with its live
// period and countdown.
func (s *CatalogService) ListOpen(ctx context.Context) ([]domain.ItemSummary, error) {
	items, err := s.ActiveItems(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]domain.ItemSummary, 0, len(items))
	for _, it := range items {
		if it.ConfigError != "" || it.Validate() != nil {
			continue
		}
		info, err := it.PeriodAt(now)
		if err != nil {
			continue
		}
		out = append(out, domain.ItemSummary{
			ID:                    it.ID,
			Title:                 it.Title,
			Coefficients:          it.Coefficients,
			PeriodDurationSeconds: it.PeriodDurationSeconds,
			Current:               info,
		})
	}
	return out, nil
}

// CurrentPeriod answers "which period is open for item X, and for how long".
func (s *CatalogService) CurrentPeriod(ctx context.Context, id uuid.UUID) (domain.PeriodInfo, error) {
	it, err := s.items.GetByID(ctx, id)
	if err != nil {
		return domain.PeriodInfo{}, err
	}
	if !it.Active {
		return domain.PeriodInfo{}, domain.ErrItemInactive
	}
	return it.PeriodAt(s.now())
}

// ──────────────────────────────────────────────────────────────────────────────
// Operator override
// ──────────────────────────────────────────────────────────────────────────────

// OverrideOutcome sets the result for (item, period), creating the record if
// the draw has not happened yet. It is rejected for periods that have not
// opened and for records that are already settled. The open period may be
// overridden; it is settled only after it closes.
func (s *CatalogService) OverrideOutcome(ctx context.Context, req domain.OverrideRequest) (*domain.OutcomeRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Editor == "" {
		return nil, domain.ErrUnauthorized
	}
	it, err := s.items.GetByID(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	current, _, err := domain.CurrentPeriod(it.PeriodDurationSeconds, now)
	if err != nil {
		return nil, err
	}
	if req.Period > current {
		return nil, domain.ErrPeriodInFuture
	}

	rec, err := s.outcomes.Override(ctx, &req, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("catalog_service.OverrideOutcome: %w", err)
	}
	s.metrics.Drawn(string(domain.SourceOverride))
	s.logger.Info("catalog: outcome overridden",
		"item", req.ItemID, "period", req.Period, "primary", req.Primary, "editor", req.Editor)
	return rec, nil
}

// OutcomeHistory returns every record of an item, unsettled included, for
// operators.
func (s *CatalogService) OutcomeHistory(ctx context.Context, id uuid.UUID, limit, offset int) ([]*domain.OutcomeRecord, int, error) {
	if _, err := s.items.GetByID(ctx, id); err != nil {
		return nil, 0, err
	}
	recs, total, err := s.outcomes.History(ctx, id, false, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog_service.OutcomeHistory: %w", err)
	}
	return recs, total, nil
}
