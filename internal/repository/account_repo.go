package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evetabi/betengine/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Reads (Store)
// ──────────────────────────────────────────────────────────────────────────────

// GetAccount fetches the balance row of a user without locking it.
func (s *PostgresStore) GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	var acc domain.Account
	err := s.db.GetContext(ctx, &acc,
		`SELECT user_id, balance, created_at, updated_at FROM accounts WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("account_repo.GetAccount: %w", err)
	}
	return &acc, nil
}

// ListTransactions returns a user's ledger history, newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := s.db.SelectContext(ctx, &txns, `
		SELECT id, user_id, bet_id, delta, kind, balance_before, balance_after, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		userID, normalizeLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("account_repo.ListTransactions: %w", err)
	}
	return txns, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Writes (Tx)
// ──────────────────────────────────────────────────────────────────────────────

// CreateAccount inserts the account row unless it already exists.
func (t *pgTx) CreateAccount(ctx context.Context, acc *domain.Account) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		acc.UserID, acc.Balance, acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("account_repo.CreateAccount: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// LockAccount locks the balance row with FOR UPDATE and returns the balance.
func (t *pgTx) LockAccount(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := t.tx.GetContext(ctx, &balance,
		`SELECT balance FROM accounts WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, domain.ErrAccountNotFound
		}
		return decimal.Zero, fmt.Errorf("account_repo.LockAccount: %w", err)
	}
	return balance, nil
}

// SetBalance writes the new balance of a locked account.
func (t *pgTx) SetBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, updated_at = $2 WHERE user_id = $3`,
		balance, at, userID)
	if err != nil {
		return fmt.Errorf("account_repo.SetBalance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// InsertTransaction writes an audit record inside the transaction.
func (t *pgTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions
			(id, user_id, bet_id, delta, kind, balance_before, balance_after, created_at)
		VALUES
			(:id, :user_id, :bet_id, :delta, :kind, :balance_before, :balance_after, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("account_repo.InsertTransaction: %w", err)
	}
	return nil
}
