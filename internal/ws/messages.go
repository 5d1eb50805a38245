// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs pushed to connected clients.
package ws

import (
	"time"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypePeriodTick    MsgType = "period_tick"
	MsgTypeOutcomeDrawn  MsgType = "outcome_drawn"
	MsgTypePeriodSettled MsgType = "period_settled"
	MsgTypeError         MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// PeriodTickMessage: sent every second to all clients.
// ──────────────────────────────────────────────────────────────────────────────

// PeriodTickMessage carries the open period and countdown of every active item.
type PeriodTickMessage struct {
	Type      MsgType             `json:"type"`
	Items     []domain.PeriodInfo `json:"items"`
	Timestamp time.Time           `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// OutcomeDrawnMessage: broadcast once a closed period has a result.
// ──────────────────────────────────────────────────────────────────────────────

// OutcomeDrawnMessage announces the result of a period that has already closed.
type OutcomeDrawnMessage struct {
	Type        MsgType              `json:"type"`
	ItemID      uuid.UUID            `json:"item_id"`
	Period      domain.Period        `json:"period"`
	PeriodLabel string               `json:"period_label"`
	Primary     domain.Label         `json:"primary"`
	Secondary   *domain.Label        `json:"secondary,omitempty"`
	Source      domain.OutcomeSource `json:"source"`
	Timestamp   time.Time            `json:"timestamp"`
}

// NewOutcomeDrawn builds the message for rec on an item with period length d.
func NewOutcomeDrawn(rec *domain.OutcomeRecord, durationSeconds int64) OutcomeDrawnMessage {
	return OutcomeDrawnMessage{
		Type:        MsgTypeOutcomeDrawn,
		ItemID:      rec.ItemID,
		Period:      rec.Period,
		PeriodLabel: domain.PeriodLabel(durationSeconds, rec.Period),
		Primary:     rec.Primary,
		Secondary:   rec.Secondary,
		Source:      rec.Source,
		Timestamp:   time.Now().UTC(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// PeriodSettledMessage: broadcast after a settlement commits.
// ──────────────────────────────────────────────────────────────────────────────

// PeriodSettledMessage tells clients a period has been paid out.
type PeriodSettledMessage struct {
	Type        MsgType         `json:"type"`
	ItemID      uuid.UUID       `json:"item_id"`
	Period      domain.Period   `json:"period"`
	Primary     domain.Label    `json:"primary"`
	Secondary   *domain.Label   `json:"secondary,omitempty"`
	Wagers      int             `json:"wagers"`
	Winners     int             `json:"winners"`
	TotalReward decimal.Decimal `json:"total_reward"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewPeriodSettled builds the message for one settlement summary.
func NewPeriodSettled(sum *domain.SettlementSummary) PeriodSettledMessage {
	return PeriodSettledMessage{
		Type:        MsgTypePeriodSettled,
		ItemID:      sum.ItemID,
		Period:      sum.Period,
		Primary:     sum.Primary,
		Secondary:   sum.Secondary,
		Wagers:      sum.Wagers,
		Winners:     sum.Winners,
		TotalReward: sum.TotalReward,
		Timestamp:   sum.SettledAt,
	}
}

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
