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

// UnitOfWork is the set of writes that must commit or roll back together.
// Settlement and wager placement each run inside exactly one.
type UnitOfWork interface {
	// ClaimOutcome locks the unsettled record for (item, period). It returns
	// nil, nil when the record is settled, missing, or held by another worker.
	ClaimOutcome(ctx context.Context, itemID uuid.UUID, period domain.Period) (*domain.OutcomeRecord, error)
	WagersForPeriod(ctx context.Context, itemID uuid.UUID, period domain.Period) ([]*domain.Wager, error)
	MarkWagerSettled(ctx context.Context, wagerID uuid.UUID, reward decimal.Decimal, at time.Time) error
	MarkOutcomeSettled(ctx context.Context, outcomeID uuid.UUID, at time.Time) error
	// LockItemForSettlement serialises settlement against GuardOpenPeriod.
	LockItemForSettlement(ctx context.Context, itemID uuid.UUID) error

	// GuardOpenPeriod returns ErrPeriodClosed once (item, period) is settled.
	GuardOpenPeriod(ctx context.Context, itemID uuid.UUID, period domain.Period) error
	CreateWager(ctx context.Context, w *domain.Wager) error

	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, tag domain.LedgerTag) (decimal.Decimal, error)
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, tag domain.LedgerTag) (decimal.Decimal, error)
}

// Store runs UnitOfWork callbacks inside a single PostgreSQL transaction.
type Store struct {
	db       *sqlx.DB
	outcomes *OutcomeRepository
	wagers   *WagerRepository
	wallets  *WalletRepository
}

// NewStore creates a Store over the given repositories.
func NewStore(db *sqlx.DB, outcomes *OutcomeRepository, wagers *WagerRepository, wallets *WalletRepository) *Store {
	return &Store{db: db, outcomes: outcomes, wagers: wagers, wallets: wallets}
}

// InTx begins a transaction, hands fn a UnitOfWork bound to it, and commits
// only if fn returns nil. Any error or panic rolls everything back.
func (s *Store) InTx(ctx context.Context, fn func(uow UnitOfWork) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store.InTx: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&txUnit{tx: tx, s: s}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store.InTx: commit: %w", err)
	}
	return nil
}

// txUnit binds the repositories to one *sqlx.Tx.
type txUnit struct {
	tx *sqlx.Tx
	s  *Store
}

func (u *txUnit) ClaimOutcome(ctx context.Context, itemID uuid.UUID, period domain.Period) (*domain.OutcomeRecord, error) {
	return u.s.outcomes.Claim(ctx, u.tx, itemID, period)
}

func (u *txUnit) WagersForPeriod(ctx context.Context, itemID uuid.UUID, period domain.Period) ([]*domain.Wager, error) {
	return u.s.wagers.ListByPeriod(ctx, u.tx, itemID, period)
}

func (u *txUnit) MarkWagerSettled(ctx context.Context, wagerID uuid.UUID, reward decimal.Decimal, at time.Time) error {
	return u.s.wagers.MarkSettled(ctx, u.tx, wagerID, reward, at)
}

func (u *txUnit) MarkOutcomeSettled(ctx context.Context, outcomeID uuid.UUID, at time.Time) error {
	return u.s.outcomes.MarkSettled(ctx, u.tx, outcomeID, at)
}

func (u *txUnit) LockItemForSettlement(ctx context.Context, itemID uuid.UUID) error {
	return u.s.outcomes.LockItem(ctx, u.tx, itemID)
}

func (u *txUnit) GuardOpenPeriod(ctx context.Context, itemID uuid.UUID, period domain.Period) error {
	return u.s.outcomes.GuardOpen(ctx, u.tx, itemID, period)
}

func (u *txUnit) CreateWager(ctx context.Context, w *domain.Wager) error {
	return u.s.wagers.Create(ctx, u.tx, w)
}

func (u *txUnit) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, tag domain.LedgerTag) (decimal.Decimal, error) {
	return u.s.wallets.Credit(ctx, u.tx, userID, amount, tag)
}

func (u *txUnit) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, tag domain.LedgerTag) (decimal.Decimal, error) {
	return u.s.wallets.Debit(ctx, u.tx, userID, amount, tag)
}
