package service

import (
	"context"
	"time"

	"github.com/evetabi/periodsettle/internal/domain"
	"github.com/evetabi/periodsettle/internal/repository"
	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Store interfaces consumed by the services. The repository package provides
// the PostgreSQL implementations; tests use in-memory fakes.
// ──────────────────────────────────────────────────────────────────────────────

// ItemCatalog is the read/flag side of the wagering item table.
type ItemCatalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WageringItem, error)
	ListActive(ctx context.Context) ([]*domain.WageringItem, error)
	ListSchedulable(ctx context.Context) ([]*domain.WageringItem, error)
	FlagInvalid(ctx context.Context, id uuid.UUID, reason string) error
}

// ItemWriter is the operator-facing write side of the catalog.
type ItemWriter interface {
	ItemCatalog
	Create(ctx context.Context, it *domain.WageringItem) error
	Update(ctx context.Context, it *domain.WageringItem) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	List(ctx context.Context, limit, offset int) ([]*domain.WageringItem, int, error)
}

// OutcomeStore persists OutcomeRecords outside of settlement transactions.
type OutcomeStore interface {
	InsertIfAbsent(ctx context.Context, o *domain.OutcomeRecord) (bool, error)
	Get(ctx context.Context, itemID uuid.UUID, period domain.Period) (*domain.OutcomeRecord, error)
	Override(ctx context.Context, req *domain.OverrideRequest, now time.Time) (*domain.OutcomeRecord, error)
	UnsettledBefore(ctx context.Context, itemID uuid.UUID, before domain.Period, limit int) ([]*domain.OutcomeRecord, error)
	History(ctx context.Context, itemID uuid.UUID, settledOnly bool, limit, offset int) ([]*domain.OutcomeRecord, int, error)
	AdvanceDrawnThrough(ctx context.Context, itemID uuid.UUID, p domain.Period) error
}

// WagerLookup answers the non-transactional wager queries.
type WagerLookup interface {
	PeriodsMissingOutcome(ctx context.Context, itemID uuid.UUID, before domain.Period, limit int) ([]domain.Period, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Wager, error)
}

// WalletReader exposes ledger state to the API.
type WalletReader interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error)
}

// Transactor runs fn inside one database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(uow repository.UnitOfWork) error) error
}

// OutcomeCache holds settled (frozen) records only.
type OutcomeCache interface {
	Get(ctx context.Context, itemID uuid.UUID, period domain.Period) (*domain.OutcomeRecord, bool)
	Put(ctx context.Context, rec *domain.OutcomeRecord)
}

var (
	_ ItemWriter   = (*repository.ItemRepository)(nil)
	_ OutcomeStore = (*repository.OutcomeRepository)(nil)
	_ WagerLookup  = (*repository.WagerRepository)(nil)
	_ WalletReader = (*repository.WalletRepository)(nil)
	_ Transactor   = (*repository.Store)(nil)
)
