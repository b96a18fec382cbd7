package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// ──────────────────────────────────────────────────────────────────────────────
// Derivation at placement time
// ──────────────────────────────────────────────────────────────────────────────

// NewEventTerms derives the fields of an EVENT bet.  A "yes" bet buys the
// option at its price p; a "no" bet buys the complement at 1 − p.
//
//	shares = stake / entryPrice   (8 dp)
func NewEventTerms(marketID string, opt EventOption, dir Direction, stake decimal.Decimal) (*EventTerms, error) {
	if !opt.Price.IsPositive() || opt.Price.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("option %d price %s: %w", opt.Index, opt.Price, ErrInvalidPrice)
	}
	entry := opt.Price
	if dir == DirectionNo {
		entry = one.Sub(opt.Price)
	}
	if !entry.IsPositive() || entry.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("option %d %s entry %s: %w", opt.Index, dir, entry, ErrInvalidPrice)
	}
	return &EventTerms{
		MarketID:    marketID,
		OptionIndex: opt.Index,
		OptionLabel: opt.Label,
		EntryPrice:  entry,
		Shares:      stake.DivRound(entry, MoneyScale),
	}, nil
}

// LiquidationPrice returns the price at which a leveraged position loses its
// entire stake.
//
//	long:  entry × (1 − 1/leverage)
//	short: entry × (1 + 1/leverage)
func LiquidationPrice(dir Direction, entry, leverage decimal.Decimal) decimal.Decimal {
	inv := one.DivRound(leverage, 16)
	if dir == DirectionShort {
		return entry.Mul(one.Add(inv)).Round(MoneyScale)
	}
	return entry.Mul(one.Sub(inv)).Round(MoneyScale)
}

// NewPriceTerms derives the fields of a PRICE bet and checks that the
// take-profit and stop-loss sit on the profitable and losing side of entry.
func NewPriceTerms(symbol string, dir Direction, stake, leverage, entry decimal.Decimal, tp, sl *decimal.Decimal) (*PriceTerms, error) {
	if !entry.IsPositive() {
		return nil, fmt.Errorf("%s entry %s: %w", symbol, entry, ErrInvalidPrice)
	}
	if tp != nil {
		if dir == DirectionLong && !tp.GreaterThan(entry) || dir == DirectionShort && !tp.LessThan(entry) {
			return nil, fmt.Errorf("take-profit %s vs entry %s: %w", tp, entry, ErrInvalidTrigger)
		}
		if !tp.IsPositive() {
			return nil, fmt.Errorf("take-profit %s: %w", tp, ErrInvalidTrigger)
		}
	}
	if sl != nil {
		if dir == DirectionLong && !sl.LessThan(entry) || dir == DirectionShort && !sl.GreaterThan(entry) {
			return nil, fmt.Errorf("stop-loss %s vs entry %s: %w", sl, entry, ErrInvalidTrigger)
		}
		if !sl.IsPositive() {
			return nil, fmt.Errorf("stop-loss %s: %w", sl, ErrInvalidTrigger)
		}
	}
	return &PriceTerms{
		Symbol:           symbol,
		Leverage:         leverage,
		EntryPrice:       entry,
		PositionSize:     stake.Mul(leverage).Round(MoneyScale),
		TakeProfit:       tp,
		StopLoss:         sl,
		LiquidationPrice: LiquidationPrice(dir, entry, leverage),
	}, nil
}

// NewPredictionTerms derives the fields of a PREDICTION bet.
func NewPredictionTerms(symbol string, odds, entry decimal.Decimal, durationSec int64, createdAt time.Time) (*PredictionTerms, error) {
	if !entry.IsPositive() {
		return nil, fmt.Errorf("%s entry %s: %w", symbol, entry, ErrInvalidPrice)
	}
	if !odds.GreaterThan(one) {
		return nil, fmt.Errorf("odds %s: %w", odds, ErrInvalidOdds)
	}
	if durationSec <= 0 {
		return nil, ErrInvalidDuration
	}
	return &PredictionTerms{
		Symbol:      symbol,
		Odds:        odds,
		EntryPrice:  entry,
		DurationSec: durationSec,
		ExpiresAt:   createdAt.Add(time.Duration(durationSec) * time.Second),
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────────────────────────────────

// Settlement is the outcome of evaluating an OPEN bet against a snapshot.
type Settlement struct {
	Status    BetStatus
	Payout    decimal.Decimal
	ExitPrice *decimal.Decimal
	Reason    CloseReason
}

// Evaluate decides whether snap closes the bet and with what payout.  It
// returns ErrNotTriggered when the bet stays open.
func (b *Bet) Evaluate(snap MarketSnapshot) (Settlement, error) {
	if !b.IsOpen() {
		return Settlement{}, ErrAlreadyResolved
	}
	if err := b.CheckPayload(); err != nil {
		return Settlement{}, err
	}
	switch b.Kind {
	case KindEvent:
		return b.evaluateEvent(snap)
	case KindPrice:
		return b.evaluatePrice(snap)
	case KindPrediction:
		return b.evaluatePrediction(snap)
	}
	return Settlement{}, ErrUnknownMarketKind
}

func (b *Bet) evaluateEvent(snap MarketSnapshot) (Settlement, error) {
	if snap.Outcome == nil || !snap.Outcome.Resolved {
		return Settlement{}, ErrNotTriggered
	}
	picked := snap.Outcome.OptionIndex == b.Event.OptionIndex
	won := (b.Direction == DirectionYes && picked) || (b.Direction == DirectionNo && !picked)
	s := Settlement{Status: BetStatusLost, Payout: decimal.Zero, Reason: ReasonEventResolved}
	if won {
		s.Status = BetStatusWon
		s.Payout = b.Event.Shares.Round(MoneyScale)
	}
	return s, nil
}

// PriceTrigger returns the close reason crossed at price, checked in the order
// take-profit, stop-loss, liquidation.  ok is false when price is inside the band.
func (t *PriceTerms) PriceTrigger(dir Direction, price decimal.Decimal) (CloseReason, bool) {
	long := dir != DirectionShort
	crossedUp := func(level decimal.Decimal) bool { return price.GreaterThanOrEqual(level) }
	crossedDown := func(level decimal.Decimal) bool { return price.LessThanOrEqual(level) }

	if t.TakeProfit != nil {
		if long && crossedUp(*t.TakeProfit) || !long && crossedDown(*t.TakeProfit) {
			return ReasonTakeProfit, true
		}
	}
	if t.StopLoss != nil {
		if long && crossedDown(*t.StopLoss) || !long && crossedUp(*t.StopLoss) {
			return ReasonStopLoss, true
		}
	}
	if long && crossedDown(t.LiquidationPrice) || !long && crossedUp(t.LiquidationPrice) {
		return ReasonLiquidation, true
	}
	return "", false
}

// PnL returns the profit or loss of the position closed at exit.
//
//	pnl = (exit − entry) / entry × positionSize × sign
func (t *PriceTerms) PnL(dir Direction, exit decimal.Decimal) decimal.Decimal {
	return exit.Sub(t.EntryPrice).
		Mul(t.PositionSize).
		DivRound(t.EntryPrice, 16).
		Mul(dir.sign())
}

func (b *Bet) evaluatePrice(snap MarketSnapshot) (Settlement, error) {
	if !snap.Price.IsPositive() {
		return Settlement{}, fmt.Errorf("snapshot price %s: %w", snap.Price, ErrInvalidPrice)
	}
	reason, ok := b.Price.PriceTrigger(b.Direction, snap.Price)
	if snap.Manual && !ok {
		reason, ok = ReasonManual, true
	}
	if !ok {
		return Settlement{}, ErrNotTriggered
	}

	pnl := b.Price.PnL(b.Direction, snap.Price)
	payout := decimal.Max(b.Stake.Add(pnl), decimal.Zero).Round(MoneyScale)
	if reason == ReasonLiquidation {
		payout = decimal.Zero
	}
	exit := snap.Price
	s := Settlement{Status: BetStatusLost, Payout: payout, ExitPrice: &exit, Reason: reason}
	if pnl.IsPositive() {
		s.Status = BetStatusWon
	}
	return s, nil
}

func (b *Bet) evaluatePrediction(snap MarketSnapshot) (Settlement, error) {
	if snap.Now.Before(b.Prediction.ExpiresAt) {
		return Settlement{}, ErrNotTriggered
	}
	if !snap.Price.IsPositive() {
		return Settlement{}, fmt.Errorf("snapshot price %s: %w", snap.Price, ErrInvalidPrice)
	}
	entry := b.Prediction.EntryPrice
	// A flat close counts as UP.
	up := snap.Price.GreaterThanOrEqual(entry)
	won := (b.Direction == DirectionUp && up) || (b.Direction == DirectionDown && !up)

	exit := snap.Price
	s := Settlement{Status: BetStatusLost, Payout: decimal.Zero, ExitPrice: &exit, Reason: ReasonExpired}
	if won {
		s.Status = BetStatusWon
		s.Payout = b.Stake.Mul(b.Prediction.Odds).Round(MoneyScale)
	}
	return s, nil
}

// ExpiredAt reports whether a PREDICTION bet has reached its expiry at now.
func (b *Bet) ExpiredAt(now time.Time) bool {
	return b.Kind == KindPrediction && b.Prediction != nil && !now.Before(b.Prediction.ExpiresAt)
}
