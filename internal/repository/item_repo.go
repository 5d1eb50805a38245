package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// itemColumns omits legacy_reward_rate, which only the migration tool reads.
const itemColumns = `id, title, coefficients, period_duration_seconds, active, config_error, drawn_through, created_at, updated_at`

// ItemRepository handles all database operations for WageringItems.
type ItemRepository struct {
	db *sqlx.DB
}

// NewItemRepository creates a new ItemRepository.
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create inserts a new item row.
func (r *ItemRepository) Create(ctx context.Context, it *domain.WageringItem) error {
	query := `
		INSERT INTO wagering_items
			(id, title, coefficients, period_duration_seconds, active, config_error, drawn_through, created_at, updated_at)
		VALUES
			(:id, :title, :coefficients, :period_duration_seconds, :active, :config_error, :drawn_through, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, it); err != nil {
		return fmt.Errorf("item_repo.Create: %w", err)
	}
	return nil
}

// Update rewrites the editable fields and clears any config flag.
func (r *ItemRepository) Update(ctx context.Context, it *domain.WageringItem) error {
	query := `
		UPDATE wagering_items
		SET title                   = :title,
		    coefficients            = :coefficients,
		    period_duration_seconds = :period_duration_seconds,
		    active                  = :active,
		    drawn_through           = :drawn_through,
		    config_error            = '',
		    updated_at              = now()
		WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, it)
	if err != nil {
		return fmt.Errorf("item_repo.Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// GetByID fetches an item by its primary key.
func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WageringItem, error) {
	var it domain.WageringItem
	err := r.db.GetContext(ctx, &it, `SELECT `+itemColumns+` FROM wagering_items WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("item_repo.GetByID: %w", err)
	}
	return &it, nil
}

// ListActive returns every active item, flagged or not. The scheduler decides
// what to do with flagged ones.
func (r *ItemRepository) ListActive(ctx context.Context) ([]*domain.WageringItem, error) {
	var items []*domain.WageringItem
	err := r.db.SelectContext(ctx, &items,
		`SELECT `+itemColumns+` FROM wagering_items WHERE active = true ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("item_repo.ListActive: %w", err)
	}
	return items, nil
}

// ListSchedulable returns every item the scheduler must visit: the active
// ones, plus disabled ones that still hold an unsettled OutcomeRecord or an
// unsettled wager. A disabled item drops off once its last wager is paid.
func (r *ItemRepository) ListSchedulable(ctx context.Context) ([]*domain.WageringItem, error) {
	var items []*domain.WageringItem
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+itemColumns+`
		FROM wagering_items i
		WHERE i.active = true
		   OR EXISTS (SELECT 1 FROM outcome_records o WHERE o.item_id = i.id AND o.settled = false)
		   OR EXISTS (SELECT 1 FROM wagers w WHERE w.item_id = i.id AND w.settled_at IS NULL)
		ORDER BY i.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("item_repo.ListSchedulable: %w", err)
	}
	return items, nil
}

// List returns a paginated slice of all items plus the total count.
func (r *ItemRepository) List(ctx context.Context, limit, offset int) ([]*domain.WageringItem, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM wagering_items`); err != nil {
		return nil, 0, fmt.Errorf("item_repo.List count: %w", err)
	}
	var items []*domain.WageringItem
	if err := r.db.SelectContext(ctx, &items,
		`SELECT `+itemColumns+` FROM wagering_items ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset); err != nil {
		return nil, 0, fmt.Errorf("item_repo.List select: %w", err)
	}
	return items, total, nil
}

// SetActive toggles the soft-disable flag.
func (r *ItemRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wagering_items SET active = $1, updated_at = now() WHERE id = $2`,
		active, id)
	if err != nil {
		return fmt.Errorf("item_repo.SetActive: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// FlagInvalid records why the scheduler skipped the item. Repeated calls with
// the same reason do not bump updated_at.
func (r *ItemRepository) FlagInvalid(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE wagering_items
		SET config_error = $1, updated_at = now()
		WHERE id = $2 AND config_error IS DISTINCT FROM $1`,
		reason, id)
	if err != nil {
		return fmt.Errorf("item_repo.FlagInvalid: %w", err)
	}
	return nil
}

// ── Legacy reward_rate migration ─────────────────────────────────────────────

// LegacyRow is an item that still carries an un-normalised reward_rate.
type LegacyRow struct {
	ID         uuid.UUID `db:"id"`
	Title      string    `db:"title"`
	RewardRate string    `db:"legacy_reward_rate"`
}

// ListLegacy returns items whose legacy_reward_rate has not been migrated.
func (r *ItemRepository) ListLegacy(ctx context.Context) ([]LegacyRow, error) {
	var rows []LegacyRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, title, legacy_reward_rate
		FROM wagering_items
		WHERE legacy_reward_rate IS NOT NULL
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("item_repo.ListLegacy: %w", err)
	}
	return rows, nil
}

// ApplyLegacy stores the normalised coefficients and drops the legacy value.
func (r *ItemRepository) ApplyLegacy(ctx context.Context, id uuid.UUID, coef domain.Coefficients) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE wagering_items
		SET coefficients       = $1,
		    legacy_reward_rate = NULL,
		    config_error       = '',
		    updated_at         = now()
		WHERE id = $2`,
		coef, id)
	if err != nil {
		return fmt.Errorf("item_repo.ApplyLegacy: %w", err)
	}
	return nil
}
