package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Account
// ──────────────────────────────────────────────────────────────────────────────

// Account holds a user's virtual balance.  Only the ledger mutates it.
type Account struct {
	UserID    uuid.UUID       `json:"user_id"    db:"user_id"`
	Balance   decimal.Decimal `json:"balance"    db:"balance"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────────────────────────────────

// TxKind enumerates ledger transaction types for auditing.
type TxKind string

const (
	TxStake  TxKind = "stake"  // debit when a bet is placed
	TxRefund TxKind = "refund" // credit when a bet is cancelled
	TxPayout TxKind = "payout" // credit when a bet settles (may be zero)
	TxBonus  TxKind = "bonus"  // account opening bonus
)

// Transaction is an immutable audit record for every balance change.
type Transaction struct {
	ID            uuid.UUID       `json:"id"             db:"id"`
	UserID        uuid.UUID       `json:"user_id"        db:"user_id"`
	BetID         *uuid.UUID      `json:"bet_id"         db:"bet_id"` // nil for account funding
	Delta         decimal.Decimal `json:"delta"          db:"delta"`  // signed
	Kind          TxKind          `json:"kind"           db:"kind"`
	BalanceBefore decimal.Decimal `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"  db:"balance_after"`
	CreatedAt     time.Time       `json:"created_at"     db:"created_at"`
}

// CancelResult is returned by a successful cancellation.
type CancelResult struct {
	Bet            *Bet            `json:"bet"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
}
