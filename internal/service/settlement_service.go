package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/metrics"
	"github.com/evetabi/periodsettle/internal/repository"
	"github.com/shopspring/decimal"
)

// settleBatch bounds how many unsettled periods one item works through per tick.
const settleBatch = 64

// SettlementService pays out closed periods. Every record is settled in one
// transaction: claim, credit every winner, stamp every wager, mark settled.
// A failure anywhere rolls back all of it and the next tick retries.
type SettlementService struct {
	outcomes OutcomeStore
	tx       Transactor
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(outcomes OutcomeStore, tx Transactor, m *metrics.Metrics, logger *slog.Logger) *SettlementService {
	return &SettlementService{
		outcomes: outcomes,
		tx:       tx,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// SettleDue: called by the Scheduler for every active item on every tick
// ──────────────────────────────────────────────────────────────────────────────

// SettleDue settles every unsettled record of a period that has already
// closed. Records for the open period (an early override) are left alone.
// It returns one summary per settlement this call committed.
func (s *SettlementService) SettleDue(ctx context.Context, item *domain.WageringItem, now time.Time) ([]*domain.SettlementSummary, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	current, _, err := domain.CurrentPeriod(item.PeriodDurationSeconds, now)
	if err != nil {
		return nil, err
	}

	due, err := s.outcomes.UnsettledBefore(ctx, item.ID, current, settleBatch)
	if err != nil {
		return nil, fmt.Errorf("settlement_service.SettleDue: list: %w", err)
	}

	var (
		done []*domain.SettlementSummary
		errs []error
	)
	for _, rec := range due {
		sum, err := s.SettlePeriod(ctx, item, rec.Period)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if sum != nil {
			done = append(done, sum)
		}
	}
	if len(errs) > 0 {
		return done, fmt.Errorf("settlement_service.SettleDue: %w", errors.Join(errs...))
	}
	return done, nil
}

// SettlePeriod settles one (item, period). It returns nil, nil when there is
// nothing to do: the record is missing, already settled, or being settled by
// another worker right now.
func (s *SettlementService) SettlePeriod(ctx context.Context, item *domain.WageringItem, period domain.Period) (*domain.SettlementSummary, error) {
	var sum *domain.SettlementSummary

	err := s.tx.InTx(ctx, func(uow repository.UnitOfWork) error {
		rec, err := uow.ClaimOutcome(ctx, item.ID, period)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		if rec == nil {
			return nil
		}
		// Wagers still committing for this period finish before we read them.
		if err := uow.LockItemForSettlement(ctx, item.ID); err != nil {
			return fmt.Errorf("lock item: %w", err)
		}

		wagers, err := uow.WagersForPeriod(ctx, item.ID, period)
		if err != nil {
			return fmt.Errorf("load wagers: %w", err)
		}

		at := s.now().UTC()
		total := decimal.Zero
		winners := 0
		for _, w := range wagers {
			reward := w.ComputeReward(rec, item.Coefficients)
			if reward.IsPositive() {
				tag := domain.LedgerTag{ItemID: item.ID, Period: period, WagerID: w.ID}
				if _, err := uow.Credit(ctx, w.UserID, reward, tag); err != nil {
					return fmt.Errorf("credit wager %s: %w", w.ID, err)
				}
				total = total.Add(reward)
				winners++
			}
			if err := uow.MarkWagerSettled(ctx, w.ID, reward, at); err != nil {
				return fmt.Errorf("mark wager %s: %w", w.ID, err)
			}
		}

		if err := uow.MarkOutcomeSettled(ctx, rec.ID, at); err != nil {
			return fmt.Errorf("mark outcome: %w", err)
		}

		sum = &domain.SettlementSummary{
			ItemID:      item.ID,
			Period:      period,
			Primary:     rec.Primary,
			Secondary:   rec.Secondary,
			Wagers:      len(wagers),
			Winners:     winners,
			TotalReward: total,
			SettledAt:   at,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("settlement_service.SettlePeriod item=%s period=%d: %w", item.ID, period, err)
	}
	if sum == nil {
		return nil, nil
	}

	s.metrics.Settled(sum.Wagers, sum.Winners)
	s.logger.Info("settlement: period settled",
		"item", item.ID,
		"period", period,
		"wagers", sum.Wagers,
		"winners", sum.Winners,
		"total_reward", sum.TotalReward.StringFixed(4),
	)
	return sum, nil
}
