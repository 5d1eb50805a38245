// Package domain defines the core business entities and types for the
// period settlement engine: wagering items, derived periods, outcome records,
// wagers, and the wallet ledger they pay into.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Outcome labels
// ──────────────────────────────────────────────────────────────────────────────

// Label is one symbol of the fixed outcome alphabet.
type Label string

const (
	LabelA Label = "A"
	LabelB Label = "B"
	LabelC Label = "C"
	LabelD Label = "D"
)

// Alphabet is the full set of drawable labels, in draw order.
var Alphabet = []Label{LabelA, LabelB, LabelC, LabelD}

// IsValid returns true if the label belongs to the alphabet.
func (l Label) IsValid() bool {
	switch l {
	case LabelA, LabelB, LabelC, LabelD:
		return true
	}
	return false
}

// ParseLabel normalises case and whitespace and validates the result.
func ParseLabel(s string) (Label, error) {
	l := Label(strings.ToUpper(strings.TrimSpace(s)))
	if !l.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLabel, s)
	}
	return l, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// LabelSet: the outcome labels a wager picks
// ──────────────────────────────────────────────────────────────────────────────

// LabelSet is a non-empty, duplicate-free, sorted set of labels.  It is stored
// in a TEXT column in compact form, e.g. "ABD".
type LabelSet []Label

// ParseLabelSet accepts compact ("AB") or separated ("A,B" / "A B") input.
func ParseLabelSet(s string) (LabelSet, error) {
	var set LabelSet
	seen := make(map[Label]bool, len(Alphabet))
	for _, r := range s {
		if r == ',' || r == ' ' {
			continue
		}
		l, err := ParseLabel(string(r))
		if err != nil {
			return nil, err
		}
		if seen[l] {
			return nil, fmt.Errorf("%w: duplicate label %s", ErrInvalidLabel, l)
		}
		seen[l] = true
		set = append(set, l)
	}
	if len(set) == 0 {
		return nil, ErrEmptyLabelSet
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set, nil
}

// Contains reports whether l is part of the set.
func (s LabelSet) Contains(l Label) bool {
	for _, x := range s {
		if x == l {
			return true
		}
	}
	return false
}

// String returns the compact form.
func (s LabelSet) String() string {
	var b strings.Builder
	for _, l := range s {
		b.WriteString(string(l))
	}
	return b.String()
}

// MarshalJSON renders the set as its compact string.
func (s LabelSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses the compact string form.
func (s *LabelSet) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseLabelSet(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements driver.Valuer.
func (s LabelSet) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *LabelSet) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("LabelSet.Scan: unsupported type %T", src)
	}
	parsed, err := ParseLabelSet(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Coefficients
// ──────────────────────────────────────────────────────────────────────────────

// Coefficients maps each label to its payout multiplier.  Stored as JSONB with
// decimal strings, e.g. {"A":"1","B":"1.2","C":"1.5","D":"2"}.
type Coefficients map[Label]decimal.Decimal

// Validate checks the map covers the whole alphabet with positive multipliers.
// The draw is uniform over the alphabet, so a missing label would leave a
// winning wager with no defined payout.
func (c Coefficients) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: empty coefficient map", ErrInvalidItemConfig)
	}
	for l, v := range c {
		if !l.IsValid() {
			return fmt.Errorf("%w: unknown label %q", ErrInvalidItemConfig, l)
		}
		if !v.IsPositive() {
			return fmt.Errorf("%w: coefficient for %s must be positive, got %s", ErrInvalidItemConfig, l, v)
		}
	}
	for _, l := range Alphabet {
		if _, ok := c[l]; !ok {
			return fmt.Errorf("%w: missing coefficient for %s", ErrInvalidItemConfig, l)
		}
	}
	return nil
}

// For returns the multiplier for l, or zero if the label is absent.
func (c Coefficients) For(l Label) decimal.Decimal {
	if v, ok := c[l]; ok {
		return v
	}
	return decimal.Zero
}

// Value implements driver.Valuer.
func (c Coefficients) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[Label]decimal.Decimal(c))
	if err != nil {
		return nil, fmt.Errorf("Coefficients.Value: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (c *Coefficients) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*c = Coefficients{}
		return nil
	default:
		return fmt.Errorf("Coefficients.Scan: unsupported type %T", src)
	}
	m := make(map[Label]decimal.Decimal)
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("Coefficients.Scan: %w", err)
	}
	*c = m
	return nil
}

// ParseLegacyRewardRate normalises the historical reward_rate column, which
// holds one of three shapes:
//
//	{"A":1.0,"B":"1.2",...}   JSON map           → parsed as-is
//	1.5                       raw number         → same multiplier for every label
//	B                         single letter      → rejected (no multiplier recoverable)
//
// Anything else fails closed with ErrLegacyCoefficients; callers flag the item
// invalid instead of inventing a default.
func ParseLegacyRewardRate(raw string) (Coefficients, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty value", ErrLegacyCoefficients)
	}

	if strings.HasPrefix(raw, "{") {
		var m map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("%w: bad JSON: %v", ErrLegacyCoefficients, err)
		}
		out := make(Coefficients, len(m))
		for k, v := range m {
			l, err := ParseLabel(k)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrLegacyCoefficients, err)
			}
			d, err := decimal.NewFromString(strings.Trim(string(v), `" `))
			if err != nil {
				return nil, fmt.Errorf("%w: label %s: %v", ErrLegacyCoefficients, l, err)
			}
			out[l] = d
		}
		if err := out.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLegacyCoefficients, err)
		}
		return out, nil
	}

	if d, err := decimal.NewFromString(raw); err == nil {
		out := make(Coefficients, len(Alphabet))
		for _, l := range Alphabet {
			out[l] = d
		}
		if err := out.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLegacyCoefficients, err)
		}
		return out, nil
	}

	if Label(strings.ToUpper(raw)).IsValid() {
		return nil, fmt.Errorf("%w: bare label %q carries no multiplier", ErrLegacyCoefficients, raw)
	}
	return nil, fmt.Errorf("%w: unrecognised format %q", ErrLegacyCoefficients, raw)
}

// ──────────────────────────────────────────────────────────────────────────────
// WageringItem
// ──────────────────────────────────────────────────────────────────────────────

// WageringItem is a biddable product line with its own period length and
// payout coefficients.  Items are soft-disabled, never deleted.
type WageringItem struct {
	ID                    uuid.UUID    `json:"id"                      db:"id"`
	Title                 string       `json:"title"                   db:"title"`
	Coefficients          Coefficients `json:"outcome_coefficients"    db:"coefficients"`
	PeriodDurationSeconds int64        `json:"period_duration_seconds" db:"period_duration_seconds"`
	Active                bool         `json:"active"                  db:"active"`
	ConfigError           string       `json:"config_error,omitempty"  db:"config_error"` // set when flagged invalid
	DrawnThrough          *Period      `json:"drawn_through,omitempty" db:"drawn_through"` // every period up to here is resolved
	CreatedAt             time.Time    `json:"created_at"              db:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"              db:"updated_at"`
}

// Validate checks everything the scheduler needs before it can generate or
// settle for this item.
func (it *WageringItem) Validate() error {
	if it.PeriodDurationSeconds <= 0 {
		return fmt.Errorf("%w: period_duration_seconds must be positive, got %d",
			ErrInvalidItemConfig, it.PeriodDurationSeconds)
	}
	return it.Coefficients.Validate()
}

// PeriodAt returns the open period for this item at now.
func (it *WageringItem) PeriodAt(now time.Time) (PeriodInfo, error) {
	p, remaining, err := CurrentPeriod(it.PeriodDurationSeconds, now)
	if err != nil {
		return PeriodInfo{}, err
	}
	return PeriodInfo{
		ItemID:           it.ID,
		Period:           p,
		Label:            PeriodLabel(it.PeriodDurationSeconds, p),
		SecondsRemaining: remaining,
		StartsAt:         PeriodStart(it.PeriodDurationSeconds, p),
		EndsAt:           PeriodEnd(it.PeriodDurationSeconds, p),
	}, nil
}

// ItemSummary is the public read model: item plus its live period.
type ItemSummary struct {
	ID                    uuid.UUID    `json:"id"`
	Title                 string       `json:"title"`
	Coefficients          Coefficients `json:"outcome_coefficients"`
	PeriodDurationSeconds int64        `json:"period_duration_seconds"`
	Current               PeriodInfo   `json:"current"`
}
