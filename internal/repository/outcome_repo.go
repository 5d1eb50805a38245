package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// OutcomeRepository handles all database operations for OutcomeRecords.
type OutcomeRepository struct {
	db *sqlx.DB
}

// NewOutcomeRepository creates a new OutcomeRepository.
func NewOutcomeRepository(db *sqlx.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// InsertIfAbsent writes a drawn record unless one already exists for the same
// (item, period). It returns false, nil when another writer got there first.
func (r *OutcomeRepository) InsertIfAbsent(ctx context.Context, o *domain.OutcomeRecord) (bool, error) {
	query := `
		INSERT INTO outcome_records
			(id, item_id, period, primary_label, secondary_label, source, settled, editor, created_at, updated_at)
		VALUES
			(:id, :item_id, :period, :primary_label, :secondary_label, :source, false, :editor, :created_at, :updated_at)
		ON CONFLICT (item_id, period) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, o)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return false, domain.ErrOutcomeExists
		}
		return false, fmt.Errorf("outcome_repo.InsertIfAbsent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("outcome_repo.InsertIfAbsent rows: %w", err)
	}
	return n == 1, nil
}

// Get fetches the record for (item, period).
func (r *OutcomeRepository) Get(ctx context.Context, itemID uuid.UUID, period domain.Period) (*domain.OutcomeRecord, error) {
	var o domain.OutcomeRecord
	err := r.db.GetContext(ctx, &o,
		`SELECT * FROM outcome_records WHERE item_id = $1 AND period = $2`,
		itemID, period)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOutcomeNotFound
		}
		return nil, fmt.Errorf("outcome_repo.Get: %w", err)
	}
	return &o, nil
}

// Override creates or replaces the result of an unsettled (item, period) in a
// single statement. The conditional DO UPDATE waits on any settlement lock, so
// a record that got settled meanwhile comes back as ErrOutcomeAlreadySettled.
func (r *OutcomeRepository) Override(ctx context.Context, req *domain.OverrideRequest, now time.Time) (*domain.OutcomeRecord, error) {
	var o domain.OutcomeRecord
	err := r.db.GetContext(ctx, &o, `
		INSERT INTO outcome_records
			(id, item_id, period, primary_label, secondary_label, source, settled, editor, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, 'override', false, $6, $7, $7)
		ON CONFLICT (item_id, period) DO UPDATE
		SET primary_label   = EXCLUDED.primary_label,
		    secondary_label = EXCLUDED.secondary_label,
		    source          = 'override',
		    editor          = EXCLUDED.editor,
		    updated_at      = EXCLUDED.updated_at
		WHERE outcome_records.settled = false
		RETURNING *`,
		uuid.New(), req.ItemID, req.Period, req.Primary, req.Secondary, req.Editor, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOutcomeAlreadySettled
		}
		return nil, fmt.Errorf("outcome_repo.Override: %w", err)
	}
	return &o, nil
}

// UnsettledBefore returns unsettled records for periods strictly before
// `before`, oldest first.
func (r *OutcomeRepository) UnsettledBefore(ctx context.Context, itemID uuid.UUID, before domain.Period, limit int) ([]*domain.OutcomeRecord, error) {
	var out []*domain.OutcomeRecord
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM outcome_records
		WHERE item_id = $1 AND settled = false AND period < $2
		ORDER BY period ASC
		LIMIT $3`,
		itemID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("outcome_repo.UnsettledBefore: %w", err)
	}
	return out, nil
}

// History returns records for an item, newest period first, plus the total.
// settledOnly restricts the result to frozen records.
func (r *OutcomeRepository) History(ctx context.Context, itemID uuid.UUID, settledOnly bool, limit, offset int) ([]*domain.OutcomeRecord, int, error) {
	where := `WHERE item_id = $1`
	if settledOnly {
		where += ` AND settled = true`
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM outcome_records `+where, itemID); err != nil {
		return nil, 0, fmt.Errorf("outcome_repo.History count: %w", err)
	}
	var out []*domain.OutcomeRecord
	if err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM outcome_records `+where+` ORDER BY period DESC LIMIT $2 OFFSET $3`,
		itemID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("outcome_repo.History select: %w", err)
	}
	return out, total, nil
}

// AdvanceDrawnThrough moves the item's gap-fill watermark forward to p. It
// never moves backwards, so concurrent generators cannot undo each other.
func (r *OutcomeRepository) AdvanceDrawnThrough(ctx context.Context, itemID uuid.UUID, p domain.Period) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE wagering_items
		SET drawn_through = $1
		WHERE id = $2 AND (drawn_through IS NULL OR drawn_through < $1)`,
		p, itemID)
	if err != nil {
		return fmt.Errorf("outcome_repo.AdvanceDrawnThrough: %w", err)
	}
	return nil
}

// ── Settlement (transactional) ───────────────────────────────────────────────

// GuardOpen is taken by wager placement before the debit. It share-locks the
// item row, which LockItem (held by settlement until commit) conflicts with,
// then refuses the wager if the period has already been settled. A wager
// therefore commits either before settlement reads the period's wagers or
// not at all.
func (r *OutcomeRepository) GuardOpen(ctx context.Context, tx *sqlx.Tx, itemID uuid.UUID, period domain.Period) error {
	var id uuid.UUID
	err := tx.GetContext(ctx, &id, `SELECT id FROM wagering_items WHERE id = $1 FOR SHARE`, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrItemNotFound
		}
		return fmt.Errorf("outcome_repo.GuardOpen: lock item: %w", err)
	}

	var settled bool
	err = tx.GetContext(ctx, &settled, `
		SELECT EXISTS (
			SELECT 1 FROM outcome_records
			WHERE item_id = $1 AND period = $2 AND settled = true
		)`,
		itemID, period)
	if err != nil {
		return fmt.Errorf("outcome_repo.GuardOpen: %w", err)
	}
	if settled {
		return fmt.Errorf("%w: period %d already settled", domain.ErrPeriodClosed, period)
	}
	return nil
}

// LockItem is taken by settlement right after the claim. FOR NO KEY UPDATE
// waits for every in-flight GuardOpen holder to finish but does not block the
// foreign-key checks of outcome and wager inserts.
func (r *OutcomeRepository) LockItem(ctx context.Context, tx *sqlx.Tx, itemID uuid.UUID) error {
	var id uuid.UUID
	err := tx.GetContext(ctx, &id, `SELECT id FROM wagering_items WHERE id = $1 FOR NO KEY UPDATE`, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrItemNotFound
		}
		return fmt.Errorf("outcome_repo.LockItem: %w", err)
	}
	return nil
}

// Claim locks the unsettled record for (item, period) inside tx. SKIP LOCKED
// means a record held by another settler is simply not returned: the caller
// gets nil, nil and moves on.
func (r *OutcomeRepository) Claim(ctx context.Context, tx *sqlx.Tx, itemID uuid.UUID, period domain.Period) (*domain.OutcomeRecord, error) {
	var o domain.OutcomeRecord
	err := tx.GetContext(ctx, &o, `
		SELECT * FROM outcome_records
		WHERE item_id = $1 AND period = $2 AND settled = false
		FOR UPDATE SKIP LOCKED`,
		itemID, period)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("outcome_repo.Claim: %w", err)
	}
	return &o, nil
}

// MarkSettled freezes a claimed record inside tx.
func (r *OutcomeRepository) MarkSettled(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE outcome_records
		SET settled = true, settled_at = $1, updated_at = $1
		WHERE id = $2 AND settled = false`,
		at, id)
	if err != nil {
		return fmt.Errorf("outcome_repo.MarkSettled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrOutcomeAlreadySettled
	}
	return nil
}
