package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Price data
// ──────────────────────────────────────────────────────────────────────────────

// PriceSource holds a single exchange price reading used for weighted averaging.
type PriceSource struct {
	Exchange  string          `json:"exchange"`
	Price     decimal.Decimal `json:"price"`
	Weight    decimal.Decimal `json:"weight"` // 0–100 integer stored as decimal
	FetchedAt time.Time       `json:"fetched_at"`
}

// PriceQuote is an aggregated price for one symbol at a point in time.
type PriceQuote struct {
	Symbol  string          `json:"symbol"`
	Price   decimal.Decimal `json:"price"`
	AsOf    time.Time       `json:"as_of"`
	Sources []PriceSource   `json:"sources,omitempty"`
}

// Age returns how old the quote is relative to now.
func (q PriceQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.AsOf)
}

// WeightedPrice computes a weighted average price from multiple sources.
// Sources with a zero weight or zero price are skipped, so the remaining
// weights are effectively re-normalised.
// Returns decimal.Zero if no valid sources are provided.
func WeightedPrice(sources []PriceSource) decimal.Decimal {
	var sumWeighted, sumWeights decimal.Decimal
	for _, s := range sources {
		if s.Price.IsZero() || s.Weight.IsZero() {
			continue
		}
		sumWeighted = sumWeighted.Add(s.Price.Mul(s.Weight))
		sumWeights = sumWeights.Add(s.Weight)
	}
	if sumWeights.IsZero() {
		return decimal.Zero
	}
	return sumWeighted.Div(sumWeights)
}

// ──────────────────────────────────────────────────────────────────────────────
// Event data
// ──────────────────────────────────────────────────────────────────────────────

// EventOption is one selectable outcome of an event market.
type EventOption struct {
	Index int             `json:"index"`
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"` // implied probability, 0 < p < 1 while trading
}

// EventMarket is the upstream view of an event market.
type EventMarket struct {
	ID      string        `json:"id"`
	Title   string        `json:"title,omitempty"`
	Closed  bool          `json:"closed"`
	Options []EventOption `json:"options"`
}

// Option returns the option at idx, or false when out of range.
func (m *EventMarket) Option(idx int) (EventOption, bool) {
	for _, o := range m.Options {
		if o.Index == idx {
			return o, true
		}
	}
	return EventOption{}, false
}

// Outcome is the resolution state of an event market.  A pending market has
// Resolved == false and OptionIndex is meaningless.
type Outcome struct {
	Resolved    bool `json:"resolved"`
	OptionIndex int  `json:"option_index"`
}

// ──────────────────────────────────────────────────────────────────────────────
// MarketSnapshot — input to settlement
// ──────────────────────────────────────────────────────────────────────────────

// MarketSnapshot is the market state a bet is settled against.  Price is read
// for PRICE and PREDICTION bets, Outcome for EVENT bets.
type MarketSnapshot struct {
	Price   decimal.Decimal
	PriceAt time.Time
	Outcome *Outcome
	Now     time.Time

	// Manual closes a PRICE bet at Price even when no trigger is crossed.
	Manual bool
}

// PriceSnapshot builds a snapshot from a quote.
func PriceSnapshot(q PriceQuote, now time.Time) MarketSnapshot {
	return MarketSnapshot{Price: q.Price, PriceAt: q.AsOf, Now: now}
}

// OutcomeSnapshot builds a snapshot from an event outcome.
func OutcomeSnapshot(o Outcome, now time.Time) MarketSnapshot {
	return MarketSnapshot{Outcome: &o, Now: now}
}
