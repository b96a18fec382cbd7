package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/evetabi/betengine/internal/clock"
	"github.com/evetabi/betengine/internal/config"
	"github.com/evetabi/betengine/internal/domain"
	"github.com/shopspring/decimal"
)

// clobToken is one outcome token of a CLOB market.
type clobToken struct {
	Outcome string          `json:"outcome"`
	Price   decimal.Decimal `json:"price"`
	TokenID string          `json:"token_id"`
	Winner  bool            `json:"winner"`
}

// clobMarket is the subset of GET /markets/{condition_id} we read.
type clobMarket struct {
	ConditionID string      `json:"condition_id"`
	Question    string      `json:"question"`
	Closed      bool        `json:"closed"`
	Tokens      []clobToken `json:"tokens"`
}

// toDomain maps tokens to options in response order.
func (m *clobMarket) toDomain() *domain.EventMarket {
	em := &domain.EventMarket{
		ID:      m.ConditionID,
		Title:   m.Question,
		Closed:  m.Closed,
		Options: make([]domain.EventOption, len(m.Tokens)),
	}
	for i, t := range m.Tokens {
		em.Options[i] = domain.EventOption{Index: i, Label: t.Outcome, Price: t.Price}
		if t.Winner {
			em.Closed = true
		}
	}
	return em
}

// outcome reports the winning token index, if any.
func (m *clobMarket) outcome() domain.Outcome {
	for i, t := range m.Tokens {
		if t.Winner {
			return domain.Outcome{Resolved: true, OptionIndex: i}
		}
	}
	return domain.Outcome{}
}

type cachedMarket struct {
	market    *clobMarket
	fetchedAt time.Time
}

// EventFeed reads event markets from the Polymarket CLOB REST API.
type EventFeed struct {
	http    *httpGetter
	baseURL string
	ttl     time.Duration
	clock   clock.Clock

	mu    sync.Mutex
	cache map[string]cachedMarket
}

// NewEventFeed creates a CLOB client from cfg.
func NewEventFeed(cfg *config.Config, c clock.Clock) *EventFeed {
	return &EventFeed{
		http:    newHTTPGetter(cfg.Polymarket.FetchTimeout),
		baseURL: cfg.Polymarket.ClobURL,
		ttl:     cfg.Polymarket.CacheTTL,
		clock:   c,
		cache:   make(map[string]cachedMarket),
	}
}

// EventMarket returns the market with its options and current prices.
func (f *EventFeed) EventMarket(ctx context.Context, marketID string) (*domain.EventMarket, error) {
	m, err := f.getMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

// EventOutcome returns the resolution state.  A pending market is not an error.
func (f *EventFeed) EventOutcome(ctx context.Context, marketID string) (domain.Outcome, error) {
	m, err := f.getMarket(ctx, marketID)
	if err != nil {
		return domain.Outcome{}, err
	}
	return m.outcome(), nil
}

func (f *EventFeed) getMarket(ctx context.Context, marketID string) (*clobMarket, error) {
	if marketID == "" {
		return nil, domain.ErrMarketNotFound
	}
	now := f.clock.Now()
	f.mu.Lock()
	if c, ok := f.cache[marketID]; ok && now.Sub(c.fetchedAt) < f.ttl {
		f.mu.Unlock()
		return c.market, nil
	}
	f.mu.Unlock()

	body, err := f.http.get(ctx, f.baseURL+"/markets/"+url.PathEscape(marketID))
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, fmt.Errorf("market %s: %w", marketID, domain.ErrMarketNotFound)
		}
		return nil, fmt.Errorf("polymarket: couldn't get market %s: %w", marketID, err)
	}

	var m clobMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("polymarket: parse market %s: %w", marketID, err)
	}
	if len(m.Tokens) == 0 {
		return nil, fmt.Errorf("market %s has no tokens: %w", marketID, domain.ErrMarketNotFound)
	}
	if m.ConditionID == "" {
		m.ConditionID = marketID
	}

	f.mu.Lock()
	f.cache[marketID] = cachedMarket{market: &m, fetchedAt: now}
	f.mu.Unlock()
	return &m, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Adapter
// ──────────────────────────────────────────────────────────────────────────────

// Adapter is the single market data entry point used by the betting service
// and the resolver.
type Adapter struct {
	*PriceFeed
	*EventFeed
}

// NewAdapter combines the price and event feeds.
func NewAdapter(prices *PriceFeed, events *EventFeed) *Adapter {
	return &Adapter{PriceFeed: prices, EventFeed: events}
}
