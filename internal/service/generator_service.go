package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/evetabi/periodsettle/internal/config"
	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/metrics"
	"github.com/google/uuid"
)

// GeneratorService draws the result of every closed period exactly once per
// (item, period). Concurrent generators are safe: the unique (item, period)
// insert decides the winner and the loser is a no-op.
type GeneratorService struct {
	outcomes     OutcomeStore
	wagers       WagerLookup
	catchupLimit int
	metrics      *metrics.Metrics
	logger       *slog.Logger
	pick         func(n int) int
}

// NewGeneratorService creates a GeneratorService.
func NewGeneratorService(
	outcomes OutcomeStore,
	wagers WagerLookup,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *GeneratorService {
	return &GeneratorService{
		outcomes:     outcomes,
		wagers:       wagers,
		catchupLimit: cfg.Scheduler.CatchupLimit,
		metrics:      m,
		logger:       logger,
		pick:         rand.Intn,
	}
}

// SetPicker replaces the uniform label picker. pick(n) must return a value
// in [0, n).
func (s *GeneratorService) SetPicker(pick func(n int) int) { s.pick = pick }

// ──────────────────────────────────────────────────────────────────────────────
// Generate: called by the Scheduler for every schedulable item on every tick
// ──────────────────────────────────────────────────────────────────────────────

// Generate ensures an OutcomeRecord exists for the period that just closed
// (current-1) and catches up older closed periods left without one, e.g.
// after downtime. Each kind of catch-up is capped at catchupLimit periods
// per call:
//   - periods that hold wagers but no record, oldest first;
//   - for active items, the periods after the item's drawn_through
//     watermark (or its creation) that still lack a record.
//
// A disabled item only gets the first kind, so its placed wagers settle but
// no fresh periods are opened for it. It returns the records this call wrote.
// One failing period does not stop the others.
func (s *GeneratorService) Generate(ctx context.Context, item *domain.WageringItem, now time.Time) ([]*domain.OutcomeRecord, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	current, _, err := domain.CurrentPeriod(item.PeriodDurationSeconds, now)
	if err != nil {
		return nil, err
	}
	target := current.Prev()

	var (
		targets []domain.Period
		queued  = make(map[domain.Period]bool)
	)
	enqueue := func(p domain.Period) {
		if !queued[p] {
			queued[p] = true
			targets = append(targets, p)
		}
	}

	if s.catchupLimit > 0 {
		// A disabled item's just-closed period is only drawn if it was wagered on.
		before := target
		if !item.Active {
			before = current
		}
		missed, err := s.wagers.PeriodsMissingOutcome(ctx, item.ID, before, s.catchupLimit)
		if err != nil {
			return nil, fmt.Errorf("generator_service.Generate: catch-up lookup: %w", err)
		}
		if len(missed) > 0 {
			s.logger.Info("generator: catching up wagered periods",
				"item", item.ID, "count", len(missed), "oldest", missed[0])
		}
		for _, p := range missed {
			enqueue(p)
		}
	}
	if !item.Active {
		written, _, err := s.draw(ctx, item, targets, now)
		return written, err
	}

	// Gap fill walks the closed periods in [from, to], capped at catchupLimit.
	from, gapFill := s.gapStart(item)
	gapFill = gapFill && s.catchupLimit > 0
	to := target - 1
	if gapFill && from <= to {
		if to-from >= domain.Period(s.catchupLimit) {
			to = from + domain.Period(s.catchupLimit) - 1
		}
		s.logger.Info("generator: filling period gap", "item", item.ID, "from", from, "to", to)
		for p := from; p <= to; p++ {
			enqueue(p)
		}
	}

	// Periods that closed before the item existed never get a draw.
	drawTarget := item.CreatedAt.IsZero() ||
		domain.PeriodEnd(item.PeriodDurationSeconds, target).After(item.CreatedAt)
	if drawTarget {
		enqueue(target)
	}

	written, failed, err := s.draw(ctx, item, targets, now)

	// The watermark advances over the unbroken run of resolved periods.
	if gapFill {
		through := from - 1
		for p := from; p <= to && !failed[p]; p++ {
			through = p
		}
		if through == target-1 && drawTarget && !failed[target] {
			through = target
		}
		if through >= from {
			if aerr := s.outcomes.AdvanceDrawnThrough(ctx, item.ID, through); aerr != nil {
				err = errors.Join(err, fmt.Errorf("generator_service.Generate: %w", aerr))
			}
		}
	}
	return written, err
}

// gapStart is the first period gap filling may look at: one past the
// watermark, else the period the item was created in. Items with neither
// (not yet persisted) are not gap-filled.
func (s *GeneratorService) gapStart(item *domain.WageringItem) (domain.Period, bool) {
	if item.DrawnThrough != nil {
		return *item.DrawnThrough + 1, true
	}
	if item.CreatedAt.IsZero() {
		return 0, false
	}
	p, _, err := domain.CurrentPeriod(item.PeriodDurationSeconds, item.CreatedAt)
	if err != nil {
		return 0, false
	}
	return p, true
}

// draw runs drawIfAbsent for every target and reports which periods failed.
func (s *GeneratorService) draw(ctx context.Context, item *domain.WageringItem, targets []domain.Period, now time.Time) ([]*domain.OutcomeRecord, map[domain.Period]bool, error) {
	var (
		written []*domain.OutcomeRecord
		failed  = make(map[domain.Period]bool)
		errs    []error
	)
	for _, p := range targets {
		rec, err := s.drawIfAbsent(ctx, item, p, now)
		if err != nil {
			failed[p] = true
			errs = append(errs, fmt.Errorf("period %d: %w", p, err))
			continue
		}
		if rec != nil {
			written = append(written, rec)
		}
	}
	if len(errs) > 0 {
		return written, failed, fmt.Errorf("generator_service.Generate: %w", errors.Join(errs...))
	}
	return written, failed, nil
}

// drawIfAbsent returns the new record, or nil when one already existed.
func (s *GeneratorService) drawIfAbsent(ctx context.Context, item *domain.WageringItem, p domain.Period, now time.Time) (*domain.OutcomeRecord, error) {
	existing, err := s.outcomes.Get(ctx, item.ID, p)
	if err == nil && existing != nil {
		return nil, nil
	}
	if err != nil && !errors.Is(err, domain.ErrOutcomeNotFound) {
		return nil, err
	}

	ts := now.UTC()
	rec := &domain.OutcomeRecord{
		ID:        uuid.New(),
		ItemID:    item.ID,
		Period:    p,
		Primary:   domain.Alphabet[s.pick(len(domain.Alphabet))],
		Source:    domain.SourceDraw,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	inserted, err := s.outcomes.InsertIfAbsent(ctx, rec)
	if errors.Is(err, domain.ErrOutcomeExists) || (err == nil && !inserted) {
		s.metrics.DrawConflict()
		s.logger.Debug("generator: outcome already present", "item", item.ID, "period", p)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.metrics.Drawn(string(domain.SourceDraw))
	s.logger.Info("generator: outcome drawn", "item", item.ID, "period", p, "primary", rec.Primary)
	return rec, nil
}
