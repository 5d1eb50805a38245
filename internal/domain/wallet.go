package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// UserRole
// ──────────────────────────────────────────────────────────────────────────────

// UserRole is carried in the access token; accounts themselves live elsewhere.
type UserRole string

const (
	RoleUser     UserRole = "user"     // standard bettor
	RoleAdmin    UserRole = "admin"    // full back-office access
	RoleOps      UserRole = "ops"      // item catalog and outcome overrides
	RoleReadOnly UserRole = "readonly" // read-only back-office access
)

// CanAccessBackoffice returns true for all non-standard roles.
func (r UserRole) CanAccessBackoffice() bool {
	return r == RoleAdmin || r == RoleOps || r == RoleReadOnly
}

// CanOverride returns true for roles allowed to change catalog or outcomes.
func (r UserRole) CanOverride() bool {
	return r == RoleAdmin || r == RoleOps
}

// ──────────────────────────────────────────────────────────────────────────────
// Wallet
// ──────────────────────────────────────────────────────────────────────────────

// Wallet holds a user's balance in the account ledger.
type Wallet struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	UserID    uuid.UUID       `json:"user_id"    db:"user_id"`
	Balance   decimal.Decimal `json:"balance"    db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────────────────────────────────

// TxType enumerates ledger movements.
type TxType string

const (
	TxCredit TxType = "credit" // settlement reward
	TxDebit  TxType = "debit"  // wager stake
)

// TxStatusCompleted is the only status this service writes.
const TxStatusCompleted = "completed"

// Transaction is an immutable audit record for every wallet balance change.
type Transaction struct {
	ID            uuid.UUID       `json:"id"             db:"id"`
	WalletID      uuid.UUID       `json:"wallet_id"      db:"wallet_id"`
	Type          TxType          `json:"type"           db:"type"`
	Amount        decimal.Decimal `json:"amount"         db:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"  db:"balance_after"`
	RefID         *uuid.UUID      `json:"ref_id"         db:"ref_id"` // wager ID
	Description   string          `json:"description"    db:"description"`
	Status        string          `json:"status"         db:"status"`
	CreatedAt     time.Time       `json:"created_at"     db:"created_at"`
}

// LedgerTag identifies what a credit or debit pays for.
type LedgerTag struct {
	ItemID  uuid.UUID
	Period  Period
	WagerID uuid.UUID
}

// Description renders the tag into the transaction description column.
func (t LedgerTag) Description(kind TxType) string {
	switch kind {
	case TxCredit:
		return fmt.Sprintf("reward item=%s period=%d wager=%s", t.ItemID, t.Period, t.WagerID)
	default:
		return fmt.Sprintf("stake item=%s period=%d wager=%s", t.ItemID, t.Period, t.WagerID)
	}
}
