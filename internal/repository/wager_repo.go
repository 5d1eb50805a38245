package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// WagerRepository handles all database operations for Wagers.
type WagerRepository struct {
	db *sqlx.DB
}

// NewWagerRepository creates a new WagerRepository.
func NewWagerRepository(db *sqlx.DB) *WagerRepository {
	return &WagerRepository{db: db}
}

// Create inserts a new wager inside an existing transaction.
func (r *WagerRepository) Create(ctx context.Context, tx *sqlx.Tx, w *domain.Wager) error {
	query := `
		INSERT INTO wagers
			(id, user_id, item_id, period, labels, stake, created_at)
		VALUES
			(:id, :user_id, :item_id, :period, :labels, :stake, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, w); err != nil {
		return fmt.Errorf("wager_repo.Create: %w", err)
	}
	return nil
}

// ListByPeriod returns every wager for (item, period) inside tx, oldest first.
func (r *WagerRepository) ListByPeriod(ctx context.Context, tx *sqlx.Tx, itemID uuid.UUID, period domain.Period) ([]*domain.Wager, error) {
	var wagers []*domain.Wager
	err := tx.SelectContext(ctx, &wagers,
		`SELECT * FROM wagers WHERE item_id = $1 AND period = $2 ORDER BY created_at ASC, id ASC`,
		itemID, period)
	if err != nil {
		return nil, fmt.Errorf("wager_repo.ListByPeriod: %w", err)
	}
	return wagers, nil
}

// ListByUser returns a user's wager history, paginated.
func (r *WagerRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Wager, error) {
	var wagers []*domain.Wager
	err := r.db.SelectContext(ctx, &wagers,
		`SELECT * FROM wagers WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wager_repo.ListByUser: %w", err)
	}
	return wagers, nil
}

// PeriodsMissingOutcome finds closed periods that hold wagers but have no
// OutcomeRecord yet, oldest first. It drives catch-up after downtime.
func (r *WagerRepository) PeriodsMissingOutcome(ctx context.Context, itemID uuid.UUID, before domain.Period, limit int) ([]domain.Period, error) {
	var periods []domain.Period
	err := r.db.SelectContext(ctx, &periods, `
		SELECT DISTINCT w.period
		FROM wagers w
		LEFT JOIN outcome_records o
		       ON o.item_id = w.item_id AND o.period = w.period
		WHERE w.item_id = $1
		  AND w.period  < $2
		  AND o.id IS NULL
		ORDER BY w.period ASC
		LIMIT $3`,
		itemID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("wager_repo.PeriodsMissingOutcome: %w", err)
	}
	return periods, nil
}

// MarkSettled writes the settlement columns once. Only rows that are still
// unsettled are touched, so a replay cannot overwrite a recorded reward.
func (r *WagerRepository) MarkSettled(ctx context.Context, tx *sqlx.Tx, wagerID uuid.UUID, reward decimal.Decimal, at time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE wagers
		SET reward = $1, settled_at = $2
		WHERE id = $3 AND settled_at IS NULL`,
		reward, at, wagerID)
	if err != nil {
		return fmt.Errorf("wager_repo.MarkSettled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("wager_repo.MarkSettled %s: %w", wagerID, domain.ErrOutcomeAlreadySettled)
	}
	return nil
}
