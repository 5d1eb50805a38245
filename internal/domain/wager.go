package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wager is a user's stake on a set of labels for one (item, period).
// Intent columns are immutable; Reward and SettledAt are written once, inside
// the settlement transaction.
type Wager struct {
	ID        uuid.UUID        `json:"id"         db:"id"`
	UserID    uuid.UUID        `json:"user_id"    db:"user_id"`
	ItemID    uuid.UUID        `json:"item_id"    db:"item_id"`
	Period    Period           `json:"period"     db:"period"`
	Labels    LabelSet         `json:"labels"     db:"labels"`
	Stake     decimal.Decimal  `json:"stake"      db:"stake"`
	Reward    *decimal.Decimal `json:"reward"     db:"reward"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	SettledAt *time.Time       `json:"settled_at" db:"settled_at"`
}

// IsSettled returns true once the settlement columns have been written.
func (w *Wager) IsSettled() bool {
	return w.SettledAt != nil
}

// ComputeReward returns what the wager earns against outcome:
//
//	reward = Σ stake × coefficients[label]   for each chosen label that is
//	                                         the primary or secondary result
//
// A label matching both primary and secondary counts once. The result is
// floored to 4 decimal places (matching DB NUMERIC(18,4)).
func (w *Wager) ComputeReward(outcome *OutcomeRecord, coefficients Coefficients) decimal.Decimal {
	reward := decimal.Zero
	for _, l := range outcome.Winning() {
		if w.Labels.Contains(l) {
			reward = reward.Add(w.Stake.Mul(coefficients.For(l)))
		}
	}
	return reward.RoundDown(4)
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceWagerRequest: value object used by WagerService
// ──────────────────────────────────────────────────────────────────────────────

// PlaceWagerRequest carries the inputs for placing a wager. Period is the
// period the client believes is open; it must match the server's view.
type PlaceWagerRequest struct {
	UserID uuid.UUID
	ItemID uuid.UUID
	Period Period
	Labels LabelSet
	Stake  decimal.Decimal
}

// WagerResponse is the API view of a wager.
type WagerResponse struct {
	ID        uuid.UUID        `json:"id"`
	ItemID    uuid.UUID        `json:"item_id"`
	Period    Period           `json:"period"`
	Labels    LabelSet         `json:"labels"`
	Stake     decimal.Decimal  `json:"stake"`
	Reward    *decimal.Decimal `json:"reward,omitempty"`
	Settled   bool             `json:"settled"`
	CreatedAt time.Time        `json:"created_at"`
	SettledAt *time.Time       `json:"settled_at,omitempty"`
}

// ToResponse converts a Wager to its API response form.
func (w *Wager) ToResponse() WagerResponse {
	return WagerResponse{
		ID:        w.ID,
		ItemID:    w.ItemID,
		Period:    w.Period,
		Labels:    w.Labels,
		Stake:     w.Stake,
		Reward:    w.Reward,
		Settled:   w.IsSettled(),
		CreatedAt: w.CreatedAt,
		SettledAt: w.SettledAt,
	}
}
