// Package repository persists bets, balances and ledger transactions.
//
// Two implementations share the Store / Tx contract: PostgresStore (sqlx +
// lib/pq, row locks via SELECT … FOR UPDATE) and MemoryStore (per-row mutexes
// held until commit).  Callers lock a bet before its owner's account.
package repository

import (
	"context"
	"time"

	"github.com/evetabi/betengine/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the read side plus the transaction entry point.
type Store interface {
	// WithTx runs fn inside a transaction.  The transaction commits when fn
	// returns nil and rolls back otherwise; fn's error is returned unchanged.
	WithTx(ctx context.Context, fn func(Tx) error) error

	GetBet(ctx context.Context, id uuid.UUID) (*domain.Bet, error)
	ListBets(ctx context.Context, userID uuid.UUID, f domain.BetFilter) ([]*domain.Bet, error)
	ListOpenBets(ctx context.Context, kind domain.MarketKind) ([]*domain.Bet, error)

	GetAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error)

	Ping(ctx context.Context) error
}

// Tx is the write side.  Every method runs inside the enclosing transaction
// and locks are released on commit or rollback.
type Tx interface {
	// CreateAccount inserts an account if none exists; created is false when
	// the user already had one.
	CreateAccount(ctx context.Context, acc *domain.Account) (created bool, err error)
	// LockAccount locks the user's balance row and returns the balance.
	LockAccount(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	// SetBalance overwrites a balance previously locked with LockAccount.
	SetBalance(ctx context.Context, userID uuid.UUID, balance decimal.Decimal, at time.Time) error
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error

	InsertBet(ctx context.Context, b *domain.Bet) error
	// LockBet locks the bet row and returns its current state.
	LockBet(ctx context.Context, id uuid.UUID) (*domain.Bet, error)
	// CloseBet moves an OPEN bet to a terminal status.  It returns
	// domain.ErrAlreadyResolved when the bet is no longer OPEN.
	CloseBet(ctx context.Context, id uuid.UUID, c BetClose) error
}

// BetClose carries the terminal fields written by CloseBet.
type BetClose struct {
	Status     domain.BetStatus
	Payout     decimal.Decimal
	ExitPrice  *decimal.Decimal
	Reason     domain.CloseReason
	ResolvedAt time.Time
}

// Apply copies the close fields onto b.
func (c BetClose) Apply(b *domain.Bet) {
	payout := c.Payout
	reason := c.Reason
	at := c.ResolvedAt
	b.Status = c.Status
	b.Payout = &payout
	b.ExitPrice = c.ExitPrice
	b.CloseReason = &reason
	b.ResolvedAt = &at
}

// normalizeLimit clamps a page size to [1, 100], defaulting to 20.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
