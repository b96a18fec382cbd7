// Package ledger is the only code path that changes a balance.  Every change
// runs inside the caller's transaction and writes exactly one Transaction row.
package ledger

import (
	"context"
	"fmt"

	"github.com/evetabi/betengine/internal/clock"
	"github.com/evetabi/betengine/internal/domain"
	"github.com/evetabi/betengine/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger debits and credits balances.
type Ledger struct {
	clock clock.Clock
}

// New creates a Ledger stamping rows with c.
func New(c clock.Clock) *Ledger {
	return &Ledger{clock: c}
}

// Debit removes amount from the user's balance.  It fails with
// domain.ErrInsufficientBalance when the balance is lower than amount.
func (l *Ledger) Debit(ctx context.Context, tx repository.Tx, userID uuid.UUID, amount decimal.Decimal, betID *uuid.UUID, kind domain.TxKind) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("ledger.Debit: amount %s: %w", amount, domain.ErrInvalidBetAmount)
	}
	before, err := tx.LockAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger.Debit: lock: %w", err)
	}
	if before.LessThan(amount) {
		return nil, domain.ErrInsufficientBalance
	}
	return l.apply(ctx, tx, userID, before, amount.Neg(), betID, kind)
}

// Credit adds amount to the user's balance.  A zero amount is allowed and
// still leaves an audit row (a losing settlement pays 0).
func (l *Ledger) Credit(ctx context.Context, tx repository.Tx, userID uuid.UUID, amount decimal.Decimal, betID *uuid.UUID, kind domain.TxKind) (*domain.Transaction, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("ledger.Credit: negative amount %s", amount)
	}
	before, err := tx.LockAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ledger.Credit: lock: %w", err)
	}
	return l.apply(ctx, tx, userID, before, amount, betID, kind)
}

func (l *Ledger) apply(ctx context.Context, tx repository.Tx, userID uuid.UUID, before, delta decimal.Decimal, betID *uuid.UUID, kind domain.TxKind) (*domain.Transaction, error) {
	now := l.clock.Now()
	after := before.Add(delta).Round(domain.MoneyScale)
	if err := tx.SetBalance(ctx, userID, after, now); err != nil {
		return nil, fmt.Errorf("ledger: set balance: %w", err)
	}
	txn := &domain.Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		BetID:         betID,
		Delta:         delta.Round(domain.MoneyScale),
		Kind:          kind,
		BalanceBefore: before,
		BalanceAfter:  after,
		CreatedAt:     now,
	}
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("ledger: log transaction: %w", err)
	}
	return txn, nil
}

// OpenAccount creates the user's account if missing and, when bonus is
// positive, credits it as a bonus transaction.  Repeat calls are no-ops;
// created reports whether this call opened the account.
func (l *Ledger) OpenAccount(ctx context.Context, tx repository.Tx, userID uuid.UUID, bonus decimal.Decimal) (created bool, err error) {
	now := l.clock.Now()
	created, err = tx.CreateAccount(ctx, &domain.Account{
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return false, fmt.Errorf("ledger.OpenAccount: %w", err)
	}
	if created && bonus.IsPositive() {
		if _, err = l.Credit(ctx, tx, userID, bonus, nil, domain.TxBonus); err != nil {
			return false, fmt.Errorf("ledger.OpenAccount: bonus: %w", err)
		}
	}
	return created, nil
}
