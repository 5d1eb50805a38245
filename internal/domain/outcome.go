package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OutcomeSource records how a result came to exist.
type OutcomeSource string

const (
	SourceDraw     OutcomeSource = "draw"     // uniform random draw by the scheduler
	SourceOverride OutcomeSource = "override" // set by an operator in the back-office
)

// OutcomeRecord is the single authoritative result of one (item, period).
// Exactly one row may exist per pair; settled rows are frozen.
type OutcomeRecord struct {
	ID        uuid.UUID     `json:"id"                  db:"id"`
	ItemID    uuid.UUID     `json:"item_id"             db:"item_id"`
	Period    Period        `json:"period"              db:"period"`
	Primary   Label         `json:"primary"             db:"primary_label"`
	Secondary *Label        `json:"secondary,omitempty" db:"secondary_label"`
	Source    OutcomeSource `json:"source"              db:"source"`
	Settled   bool          `json:"settled"             db:"settled"`
	Editor    *string       `json:"editor,omitempty"    db:"editor"`
	CreatedAt time.Time     `json:"created_at"          db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"          db:"updated_at"`
	SettledAt *time.Time    `json:"settled_at,omitempty" db:"settled_at"`
}

// Winning returns the distinct winning labels: primary, then secondary when it
// is set and differs from primary.
func (o *OutcomeRecord) Winning() []Label {
	if o.Secondary == nil || *o.Secondary == o.Primary {
		return []Label{o.Primary}
	}
	return []Label{o.Primary, *o.Secondary}
}

// IsWinning reports whether l is one of the record's winning labels.
func (o *OutcomeRecord) IsWinning(l Label) bool {
	if l == o.Primary {
		return true
	}
	return o.Secondary != nil && *o.Secondary == l
}

// OverrideRequest carries an operator's result for one (item, period).
type OverrideRequest struct {
	ItemID    uuid.UUID
	Period    Period
	Primary   Label
	Secondary *Label
	Editor    string
}

// Validate checks both labels belong to the alphabet.
func (r *OverrideRequest) Validate() error {
	if !r.Primary.IsValid() {
		return ErrInvalidLabel
	}
	if r.Secondary != nil && !r.Secondary.IsValid() {
		return ErrInvalidLabel
	}
	return nil
}

// OutcomeView is the public read model of a record, with its period label.
type OutcomeView struct {
	ItemID      uuid.UUID `json:"item_id"`
	Period      Period    `json:"period"`
	PeriodLabel string    `json:"period_label"`
	Primary     Label     `json:"primary"`
	Secondary   *Label    `json:"secondary,omitempty"`
	Settled     bool      `json:"settled"`
	DrawnAt     time.Time `json:"drawn_at"`
}

// ToView converts a record into its public form for an item of duration d.
func (o *OutcomeRecord) ToView(durationSeconds int64) OutcomeView {
	return OutcomeView{
		ItemID:      o.ItemID,
		Period:      o.Period,
		PeriodLabel: PeriodLabel(durationSeconds, o.Period),
		Primary:     o.Primary,
		Secondary:   o.Secondary,
		Settled:     o.Settled,
		DrawnAt:     o.CreatedAt,
	}
}

// SettlementSummary describes one committed settlement.
type SettlementSummary struct {
	ItemID      uuid.UUID       `json:"item_id"`
	Period      Period          `json:"period"`
	Primary     Label           `json:"primary"`
	Secondary   *Label          `json:"secondary,omitempty"`
	Wagers      int             `json:"wagers"`
	Winners     int             `json:"winners"`
	TotalReward decimal.Decimal `json:"total_reward"`
	SettledAt   time.Time       `json:"settled_at"`
}
