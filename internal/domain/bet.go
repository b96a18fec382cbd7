// Package domain defines the core business entities and the settlement math
// of the betting engine.  Nothing in this package performs I/O.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// MarketKind tags which payload a Bet carries.
type MarketKind string

const (
	KindEvent      MarketKind = "EVENT"      // binary / multi-option event outcome
	KindPrice      MarketKind = "PRICE"      // leveraged long/short position
	KindPrediction MarketKind = "PREDICTION" // fixed-odds short-duration direction wager
)

// IsValid returns true for the three supported kinds.
func (k MarketKind) IsValid() bool {
	switch k {
	case KindEvent, KindPrice, KindPrediction:
		return true
	}
	return false
}

// Direction is the side a user takes.  Which values are legal depends on the
// market kind (see ValidFor).
type Direction string

const (
	DirectionYes   Direction = "yes"
	DirectionNo    Direction = "no"
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
)

// ValidFor reports whether d is a legal direction for kind k.
func (d Direction) ValidFor(k MarketKind) bool {
	switch k {
	case KindEvent:
		return d == DirectionYes || d == DirectionNo
	case KindPrice:
		return d == DirectionLong || d == DirectionShort
	case KindPrediction:
		return d == DirectionUp || d == DirectionDown
	}
	return false
}

// sign returns +1 for long and -1 for short.
func (d Direction) sign() decimal.Decimal {
	if d == DirectionShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// BetStatus represents the lifecycle state of a bet.
type BetStatus string

const (
	BetStatusOpen      BetStatus = "OPEN"
	BetStatusWon       BetStatus = "CLOSED_WIN"
	BetStatusLost      BetStatus = "CLOSED_LOSS"
	BetStatusCancelled BetStatus = "CANCELLED"
)

// IsValid returns true for a recognised status.
func (s BetStatus) IsValid() bool {
	switch s {
	case BetStatusOpen, BetStatusWon, BetStatusLost, BetStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true once a bet can no longer change.
func (s BetStatus) IsTerminal() bool {
	return s == BetStatusWon || s == BetStatusLost || s == BetStatusCancelled
}

// CanTransitionTo enforces OPEN → {CLOSED_WIN, CLOSED_LOSS, CANCELLED}.
func (s BetStatus) CanTransitionTo(next BetStatus) bool {
	return s == BetStatusOpen && next.IsTerminal()
}

// CloseReason records why a bet left the OPEN state.
type CloseReason string

const (
	ReasonEventResolved CloseReason = "event_resolved"
	ReasonTakeProfit    CloseReason = "take_profit"
	ReasonStopLoss      CloseReason = "stop_loss"
	ReasonLiquidation   CloseReason = "liquidation"
	ReasonExpired       CloseReason = "expired"
	ReasonManual        CloseReason = "manual"
	ReasonCancelled     CloseReason = "cancelled"
)

// MoneyScale is the number of decimal places every stored amount is rounded to
// (matches NUMERIC(20,8) in the schema).
const MoneyScale = 8

// ──────────────────────────────────────────────────────────────────────────────
// Kind-specific payloads
// ──────────────────────────────────────────────────────────────────────────────

// EventTerms are the derived fields of an EVENT bet.
type EventTerms struct {
	MarketID    string          `json:"market_id"`
	OptionIndex int             `json:"option_index"`
	OptionLabel string          `json:"option_label,omitempty"`
	EntryPrice  decimal.Decimal `json:"entry_price"` // 0 < p < 1
	Shares      decimal.Decimal `json:"shares"`      // stake / entry price
}

// PriceTerms are the derived fields of a leveraged PRICE bet.
type PriceTerms struct {
	Symbol           string           `json:"symbol"`
	Leverage         decimal.Decimal  `json:"leverage"`
	EntryPrice       decimal.Decimal  `json:"entry_price"`
	PositionSize     decimal.Decimal  `json:"position_size"` // stake × leverage
	TakeProfit       *decimal.Decimal `json:"take_profit,omitempty"`
	StopLoss         *decimal.Decimal `json:"stop_loss,omitempty"`
	LiquidationPrice decimal.Decimal  `json:"liquidation_price"`
}

// PredictionTerms are the derived fields of a PREDICTION bet.
type PredictionTerms struct {
	Symbol      string          `json:"symbol"`
	Odds        decimal.Decimal `json:"odds"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	DurationSec int64           `json:"duration_sec"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Bet
// ──────────────────────────────────────────────────────────────────────────────

// Bet is a single wager.  Exactly one of Event, Price, Prediction is set and
// it always matches Kind.
type Bet struct {
	ID          uuid.UUID        `json:"id"`
	OwnerID     uuid.UUID        `json:"owner_id"`
	Kind        MarketKind       `json:"kind"`
	Direction   Direction        `json:"direction"`
	Stake       decimal.Decimal  `json:"stake"`
	Status      BetStatus        `json:"status"`
	Event       *EventTerms      `json:"event,omitempty"`
	Price       *PriceTerms      `json:"price,omitempty"`
	Prediction  *PredictionTerms `json:"prediction,omitempty"`
	Payout      *decimal.Decimal `json:"payout,omitempty"`
	ExitPrice   *decimal.Decimal `json:"exit_price,omitempty"`
	CloseReason *CloseReason     `json:"close_reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
}

// IsOpen returns true while the bet can still be cancelled or settled.
func (b *Bet) IsOpen() bool {
	return b.Status == BetStatusOpen
}

// Symbol returns the price symbol for PRICE and PREDICTION bets, "" otherwise.
func (b *Bet) Symbol() string {
	switch b.Kind {
	case KindPrice:
		if b.Price != nil {
			return b.Price.Symbol
		}
	case KindPrediction:
		if b.Prediction != nil {
			return b.Prediction.Symbol
		}
	}
	return ""
}

// CheckPayload verifies that exactly the payload selected by Kind is present.
func (b *Bet) CheckPayload() error {
	set := 0
	for _, present := range []bool{b.Event != nil, b.Price != nil, b.Prediction != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("bet %s: %d payloads set, want exactly 1", b.ID, set)
	}
	switch b.Kind {
	case KindEvent:
		if b.Event == nil {
			return fmt.Errorf("bet %s: EVENT bet without event terms", b.ID)
		}
	case KindPrice:
		if b.Price == nil {
			return fmt.Errorf("bet %s: PRICE bet without price terms", b.ID)
		}
	case KindPrediction:
		if b.Prediction == nil {
			return fmt.Errorf("bet %s: PREDICTION bet without prediction terms", b.ID)
		}
	default:
		return ErrUnknownMarketKind
	}
	return nil
}

// MarshalTerms encodes the active payload for the derived_json column.
func (b *Bet) MarshalTerms() ([]byte, error) {
	switch b.Kind {
	case KindEvent:
		return json.Marshal(b.Event)
	case KindPrice:
		return json.Marshal(b.Price)
	case KindPrediction:
		return json.Marshal(b.Prediction)
	}
	return nil, ErrUnknownMarketKind
}

// UnmarshalTerms decodes data into the payload matching b.Kind.
func (b *Bet) UnmarshalTerms(data []byte) error {
	switch b.Kind {
	case KindEvent:
		b.Event = &EventTerms{}
		return json.Unmarshal(data, b.Event)
	case KindPrice:
		b.Price = &PriceTerms{}
		return json.Unmarshal(data, b.Price)
	case KindPrediction:
		b.Prediction = &PredictionTerms{}
		return json.Unmarshal(data, b.Prediction)
	}
	return ErrUnknownMarketKind
}

// ──────────────────────────────────────────────────────────────────────────────
// Request / filter value objects
// ──────────────────────────────────────────────────────────────────────────────

// PlaceBetRequest carries the caller's inputs for placing a bet.  Only the
// fields relevant to Kind are read.
type PlaceBetRequest struct {
	UserID    uuid.UUID
	Kind      MarketKind
	Direction Direction
	Amount    decimal.Decimal

	// EVENT
	MarketID    string
	OptionIndex int

	// PRICE
	Leverage   decimal.Decimal
	TakeProfit *decimal.Decimal
	StopLoss   *decimal.Decimal

	// PRICE and PREDICTION
	Symbol string

	// PREDICTION
	DurationSec int64
	Odds        *decimal.Decimal // optional; must equal the quoted odds when set
}

// BetFilter narrows a bet history query.  Zero values mean "any".
type BetFilter struct {
	Status BetStatus
	Kind   MarketKind
	Limit  int
	Offset int
}
