package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Period
// ──────────────────────────────────────────────────────────────────────────────

// Period is the index of a fixed-length betting window:
//
//	period = floor(unixSeconds / periodDurationSeconds)
//
// It is never stored as its own row; OutcomeRecords and Wagers carry it as a
// plain BIGINT column.
type Period int64

// String renders the raw index.
func (p Period) String() string {
	return strconv.FormatInt(int64(p), 10)
}

// Prev returns the period immediately before p.
func (p Period) Prev() Period {
	return p - 1
}

// ──────────────────────────────────────────────────────────────────────────────
// PeriodClock: pure functions of (wall time, duration)
// ──────────────────────────────────────────────────────────────────────────────

// CurrentPeriod maps a wall-clock instant to the open period for an item with
// the given duration, plus the whole seconds left until that period closes.
// Remaining is always in [1, durationSeconds].
//
// There is no in-memory counter anywhere: after a restart the scheduler
// recovers "which period just closed" from wall time alone.
func CurrentPeriod(durationSeconds int64, now time.Time) (Period, int64, error) {
	if durationSeconds <= 0 {
		return 0, 0, ErrInvalidPeriodDuration
	}
	unix := now.Unix()
	p := floorDiv(unix, durationSeconds)
	remaining := (p+1)*durationSeconds - unix
	return Period(p), remaining, nil
}

// PeriodStart returns the UTC instant at which period p opens.
func PeriodStart(durationSeconds int64, p Period) time.Time {
	return time.Unix(int64(p)*durationSeconds, 0).UTC()
}

// PeriodEnd returns the UTC instant at which period p closes (exclusive).
func PeriodEnd(durationSeconds int64, p Period) time.Time {
	return time.Unix((int64(p)+1)*durationSeconds, 0).UTC()
}

// PeriodLabel renders the human-readable period number shown on history
// screens, e.g. "202610161230-14727548".
func PeriodLabel(durationSeconds int64, p Period) string {
	if durationSeconds <= 0 {
		return p.String()
	}
	return fmt.Sprintf("%s-%d", PeriodStart(durationSeconds, p).Format("200601021504"), int64(p))
}

// floorDiv is integer division rounding toward negative infinity, so instants
// before the epoch still land in the correct window.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// PeriodInfo is the read model returned by the "current period" query.
type PeriodInfo struct {
	ItemID           uuid.UUID `json:"item_id"`
	Period           Period    `json:"period"`
	Label            string    `json:"label"`
	SecondsRemaining int64     `json:"seconds_remaining"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
}
