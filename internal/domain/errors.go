package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Validation errors: rejected before any mutation.
var (
	// ErrInvalidBetAmount is returned for a non-positive stake or one outside
	// the configured bounds.
	ErrInvalidBetAmount = errors.New("invalid bet amount")

	// ErrInvalidOdds is returned when odds or leverage fall outside the
	// configured bounds, or when the caller's odds differ from the quote.
	ErrInvalidOdds = errors.New("odds or leverage out of bounds")

	// ErrInvalidDirection is returned when the direction is not legal for the
	// market kind.
	ErrInvalidDirection = errors.New("invalid direction for market kind")

	// ErrUnknownMarketKind is returned for a kind other than EVENT, PRICE or
	// PREDICTION.
	ErrUnknownMarketKind = errors.New("unknown market kind")

	// ErrInvalidTrigger is returned when a take-profit or stop-loss sits on the
	// wrong side of the entry price.
	ErrInvalidTrigger = errors.New("take-profit or stop-loss on the wrong side of entry")

	// ErrInvalidDuration is returned when no odds are quoted for the requested
	// prediction duration.
	ErrInvalidDuration = errors.New("unsupported prediction duration")

	// ErrInvalidPrice is returned when market data yields a price that cannot be
	// used as an entry (non-positive, or outside (0,1) for event options).
	ErrInvalidPrice = errors.New("invalid market price")

	// ErrInvalidFilter is returned for an unknown status or kind in a history
	// query.
	ErrInvalidFilter = errors.New("invalid bet filter")
)

// Resource errors.
var (
	// ErrInsufficientBalance is returned when the balance is lower than the
	// amount to debit.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotFound is returned when a user has no balance row yet.
	ErrAccountNotFound = errors.New("account not found")
)

// Lookup errors.
var (
	// ErrMarketNotFound is returned when the referenced market or option does
	// not exist.
	ErrMarketNotFound = errors.New("market not found")

	// ErrBetNotFound is returned when no bet matches the given id.
	ErrBetNotFound = errors.New("bet not found")
)

// State / concurrency errors.
var (
	// ErrAlreadyResolved is returned when a bet is no longer OPEN: the loser of
	// a cancel-vs-settle race, or a repeated settlement.
	ErrAlreadyResolved = errors.New("bet is already resolved")

	// ErrMarketClosed is returned when placing on an event market that no
	// longer accepts bets.
	ErrMarketClosed = errors.New("market is closed")

	// ErrNotTriggered is returned by settlement when the snapshot does not
	// close the bet (price inside the band, prediction not expired, event
	// pending).
	ErrNotTriggered = errors.New("settlement not triggered")

	// ErrWrongKind is returned when an operation is applied to a bet of a kind
	// it does not support (e.g. closing an EVENT bet as a position).
	ErrWrongKind = errors.New("operation not supported for this market kind")
)

// Auth errors.
var (
	// ErrUnauthorized is returned when a valid token is not present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller does not own the bet.
	ErrForbidden = errors.New("forbidden")
)

// Market data errors.
var (
	// ErrPriceUnavailable is returned when no price source answered.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrStalePrice is returned when a quote is older than the allowed age.
	ErrStalePrice = errors.New("price is stale")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidation returns true for errors caused by bad caller input.
func IsValidation(err error) bool {
	return isAny(err,
		ErrInvalidBetAmount,
		ErrInvalidOdds,
		ErrInvalidDirection,
		ErrUnknownMarketKind,
		ErrInvalidTrigger,
		ErrInvalidDuration,
		ErrWrongKind,
		ErrInvalidFilter,
	)
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// "not found" errors.
func IsNotFound(err error) bool {
	return isAny(err, ErrMarketNotFound, ErrBetNotFound, ErrAccountNotFound)
}

// IsConflict returns true for errors that represent a state conflict.
func IsConflict(err error) bool {
	return isAny(err, ErrAlreadyResolved, ErrMarketClosed)
}

// IsRetryable returns true for market data failures the resolver should retry
// on its next cycle.
func IsRetryable(err error) bool {
	return isAny(err, ErrPriceUnavailable, ErrStalePrice)
}
