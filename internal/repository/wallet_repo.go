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
	"github.com/shopspring/decimal"
)

// WalletRepository is the SQL-backed account ledger: wallets and their
// immutable transaction log.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// GetByUserID fetches the wallet belonging to a specific user.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.GetContext(ctx, &w, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetByUserID: %w", err)
	}
	return &w, nil
}

// lockWallet reads the wallet row with FOR UPDATE inside tx.
func (r *WalletRepository) lockWallet(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := tx.GetContext(ctx, &w, `SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

// Credit adds amount to the user's balance and appends the audit record,
// all inside tx. It returns the new balance. A second credit for the same
// wager violates uq_wallet_transactions_credit_ref and comes back as
// ErrDuplicateCredit.
func (r *WalletRepository) Credit(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal, tag domain.LedgerTag) (decimal.Decimal, error) {
	return r.move(ctx, tx, userID, amount, domain.TxCredit, tag)
}

// Debit subtracts amount from the user's balance inside tx, refusing to go
// below zero.
func (r *WalletRepository) Debit(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal, tag domain.LedgerTag) (decimal.Decimal, error) {
	return r.move(ctx, tx, userID, amount, domain.TxDebit, tag)
}

func (r *WalletRepository) move(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal, kind domain.TxType, tag domain.LedgerTag) (decimal.Decimal, error) {
	op := "wallet_repo.Credit"
	if kind == domain.TxDebit {
		op = "wallet_repo.Debit"
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s: %w", op, domain.ErrInvalidStake)
	}

	w, err := r.lockWallet(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("%s lock: %w", op, err)
	}

	after := w.Balance.Add(amount)
	if kind == domain.TxDebit {
		if w.Balance.LessThan(amount) {
			return decimal.Zero, domain.ErrInsufficientBalance
		}
		after = w.Balance.Sub(amount)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = $1, updated_at = now() WHERE id = $2`,
		after, w.ID); err != nil {
		return decimal.Zero, fmt.Errorf("%s update: %w", op, err)
	}

	ref := tag.WagerID
	txn := &domain.Transaction{
		ID:            uuid.New(),
		WalletID:      w.ID,
		Type:          kind,
		Amount:        amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  after,
		RefID:         &ref,
		Description:   tag.Description(kind),
		Status:        domain.TxStatusCompleted,
		CreatedAt:     time.Now().UTC(),
	}
	if err = r.logTransaction(ctx, tx, txn); err != nil {
		if _, ok := uniqueViolation(err); ok && kind == domain.TxCredit {
			return decimal.Zero, domain.ErrDuplicateCredit
		}
		return decimal.Zero, fmt.Errorf("%s: %w", op, err)
	}
	return after, nil
}

// logTransaction inserts an audit record into wallet_transactions inside tx.
func (r *WalletRepository) logTransaction(ctx context.Context, tx *sqlx.Tx, txn *domain.Transaction) error {
	query := `
		INSERT INTO wallet_transactions
			(id, wallet_id, type, amount, balance_before, balance_after, ref_id, description, status, created_at)
		VALUES
			(:id, :wallet_id, :type, :amount, :balance_before, :balance_after, :ref_id, :description, :status, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("log transaction: %w", err)
	}
	return nil
}

// GetTransactions returns paginated transaction history for a user's wallet.
func (r *WalletRepository) GetTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := r.db.SelectContext(ctx, &txns, `
		SELECT wt.*
		FROM wallet_transactions wt
		JOIN wallets w ON w.id = wt.wallet_id
		WHERE w.user_id = $1
		ORDER BY wt.created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.GetTransactions: %w", err)
	}
	return txns, nil
}
