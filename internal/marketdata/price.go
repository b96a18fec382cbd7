// Package marketdata resolves the external facts bets are placed and settled
// against: spot prices from crypto exchanges and event outcomes from
// Polymarket.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/evetabi/betengine/internal/clock"
	"github.com/evetabi/betengine/internal/config"
	"github.com/evetabi/betengine/internal/domain"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Exchange definitions
// ──────────────────────────────────────────────────────────────────────────────

const (
	exchangeBinance = "binance"
	exchangeBybit   = "bybit"
	exchangeOKX     = "okx"
)

// exchangeDef describes a single price-feed source.
type exchangeDef struct {
	name   string
	weight decimal.Decimal // 0–100
	fetch  func(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// QuoteCache is a shared cache tier consulted after the in-process cache.
type QuoteCache interface {
	GetQuote(ctx context.Context, symbol string) (domain.PriceQuote, bool)
	SetQuote(ctx context.Context, q domain.PriceQuote)
}

// ──────────────────────────────────────────────────────────────────────────────
// PriceFeed
// ──────────────────────────────────────────────────────────────────────────────

// PriceFeed fetches spot prices from multiple exchanges in parallel, computes
// a weighted average per symbol, and caches the result.
type PriceFeed struct {
	http    *httpGetter
	cfg     *config.PriceConfig
	clock   clock.Clock
	logger  *slog.Logger
	symbols map[string]struct{}
	shared  QuoteCache // optional

	mu    sync.RWMutex
	cache map[string]domain.PriceQuote

	// per-exchange last-success timestamp (for ExchangeStatus)
	statusMu    sync.RWMutex
	lastSuccess map[string]time.Time
	exchanges   []exchangeDef
}

// NewPriceFeed constructs a PriceFeed from the given config.
func NewPriceFeed(cfg *config.Config, c clock.Clock, logger *slog.Logger) *PriceFeed {
	pf := &PriceFeed{
		http:    newHTTPGetter(cfg.Price.FetchTimeout),
		cfg:     &cfg.Price,
		clock:   c,
		logger:  logger.With("component", "price_feed"),
		symbols: make(map[string]struct{}, len(cfg.Price.Symbols)),
		cache:   make(map[string]domain.PriceQuote),
		lastSuccess: map[string]time.Time{
			exchangeBinance: {},
			exchangeBybit:   {},
			exchangeOKX:     {},
		},
	}
	for _, s := range cfg.Price.Symbols {
		pf.symbols[strings.ToUpper(s)] = struct{}{}
	}

	pf.exchanges = []exchangeDef{
		{
			name:   exchangeBinance,
			weight: decimal.NewFromInt(int64(cfg.Price.BinanceWeight)),
			fetch:  pf.fetchBinance,
		},
		{
			name:   exchangeBybit,
			weight: decimal.NewFromInt(int64(cfg.Price.BybitWeight)),
			fetch:  pf.fetchBybit,
		},
		{
			name:   exchangeOKX,
			weight: decimal.NewFromInt(int64(cfg.Price.OKXWeight)),
			fetch:  pf.fetchOKX,
		},
	}
	return pf
}

// SetSharedCache injects the Redis tier post-construction.
func (pf *PriceFeed) SetSharedCache(c QuoteCache) { pf.shared = c }

// Supports reports whether symbol is tradable.
func (pf *PriceFeed) Supports(symbol string) bool {
	_, ok := pf.symbols[strings.ToUpper(symbol)]
	return ok
}

// ──────────────────────────────────────────────────────────────────────────────
// Public API
// ──────────────────────────────────────────────────────────────────────────────

// CurrentPrice returns the weighted average price for symbol.  Fresh quotes
// come from the in-process cache, then the shared cache, then the exchanges.
//
// Partial failures are handled by re-normalising the weights over the
// available sources.  When every exchange fails the error wraps
// domain.ErrPriceUnavailable.
func (pf *PriceFeed) CurrentPrice(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	symbol = strings.ToUpper(symbol)
	if !pf.Supports(symbol) {
		return domain.PriceQuote{}, fmt.Errorf("symbol %q: %w", symbol, domain.ErrMarketNotFound)
	}

	// ── Cache check ──────────────────────────────────────────────────────────
	if q, ok := pf.CachedPrice(symbol); ok {
		return q, nil
	}
	if pf.shared != nil {
		if q, ok := pf.shared.GetQuote(ctx, symbol); ok {
			pf.store(q)
			return q, nil
		}
	}

	// ── Parallel fetch with per-exchange timeout ──────────────────────────────
	type result struct {
		name  string
		price decimal.Decimal
		err   error
	}

	fetchCtx, cancel := context.WithTimeout(ctx, pf.cfg.FetchTimeout)
	defer cancel()

	resultCh := make(chan result, len(pf.exchanges))
	for _, ex := range pf.exchanges {
		go func() {
			p, err := ex.fetch(fetchCtx, symbol)
			resultCh <- result{name: ex.name, price: p, err: err}
		}()
	}

	rawResults := make(map[string]result, len(pf.exchanges))
	for range pf.exchanges {
		r := <-resultCh
		rawResults[r.name] = r
	}

	// ── Build sources list & compute weighted average ─────────────────────────
	var sources []domain.PriceSource
	now := pf.clock.Now()

	for _, ex := range pf.exchanges {
		r := rawResults[ex.name]
		if r.err != nil {
			pf.logger.Debug("exchange fetch failed", "exchange", ex.name, "symbol", symbol, "err", r.err)
			continue
		}
		if !r.price.IsPositive() {
			continue
		}
		sources = append(sources, domain.PriceSource{
			Exchange:  ex.name,
			Price:     r.price,
			Weight:    ex.weight,
			FetchedAt: now,
		})

		pf.statusMu.Lock()
		pf.lastSuccess[ex.name] = now
		pf.statusMu.Unlock()
	}

	price := domain.WeightedPrice(sources)
	if price.IsZero() {
		return domain.PriceQuote{}, fmt.Errorf("marketdata.CurrentPrice %s: all exchange fetches failed: %w",
			symbol, domain.ErrPriceUnavailable)
	}

	q := domain.PriceQuote{
		Symbol:  symbol,
		Price:   price.Round(domain.MoneyScale),
		AsOf:    now,
		Sources: sources,
	}
	pf.store(q)
	if pf.shared != nil {
		pf.shared.SetQuote(ctx, q)
	}
	return q, nil
}

func (pf *PriceFeed) store(q domain.PriceQuote) {
	pf.mu.Lock()
	pf.cache[q.Symbol] = q
	pf.mu.Unlock()
}

// CachedPrice returns the most recently cached quote and true if it is still
// within CacheTTL.
func (pf *PriceFeed) CachedPrice(symbol string) (domain.PriceQuote, bool) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	q, ok := pf.cache[strings.ToUpper(symbol)]
	if !ok || pf.clock.Now().Sub(q.AsOf) >= pf.cfg.CacheTTL {
		return domain.PriceQuote{}, false
	}
	return q, true
}

// ExchangeStatus returns a map of exchange name → whether it answered in the
// last 5 minutes.  Exposed on the health endpoint.
func (pf *PriceFeed) ExchangeStatus() map[string]bool {
	threshold := 5 * time.Minute
	now := pf.clock.Now()
	pf.statusMu.RLock()
	defer pf.statusMu.RUnlock()

	status := make(map[string]bool, len(pf.lastSuccess))
	for name, t := range pf.lastSuccess {
		status[name] = !t.IsZero() && now.Sub(t) < threshold
	}
	return status
}

// ──────────────────────────────────────────────────────────────────────────────
// Exchange fetchers
// ──────────────────────────────────────────────────────────────────────────────

// fetchBinance fetches a spot price from Binance REST API.
//
//	GET /api/v3/ticker/price?symbol=BTCUSDT
//	{"symbol":"BTCUSDT","price":"87350.00"}
func (pf *PriceFeed) fetchBinance(ctx context.Context, symbol string) (decimal.Decimal, error) {
	body, err := pf.http.get(ctx, pf.cfg.BinanceURL+"/api/v3/ticker/price?symbol="+symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: %w", err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("binance parse: %w", err)
	}
	if resp.Price == "" {
		return decimal.Zero, fmt.Errorf("binance: empty price field")
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance decimal: %w", err)
	}
	return price, nil
}

// fetchBybit fetches a spot price from Bybit REST API.
//
//	GET /v5/market/tickers?category=spot&symbol=BTCUSDT
//	{"result":{"list":[{"lastPrice":"87350.00",...}]}}
func (pf *PriceFeed) fetchBybit(ctx context.Context, symbol string) (decimal.Decimal, error) {
	body, err := pf.http.get(ctx, pf.cfg.BybitURL+"/v5/market/tickers?category=spot&symbol="+symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bybit: %w", err)
	}

	var resp struct {
		Result struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("bybit parse: %w", err)
	}
	if len(resp.Result.List) == 0 || resp.Result.List[0].LastPrice == "" {
		return decimal.Zero, fmt.Errorf("bybit: empty result list")
	}
	price, err := decimal.NewFromString(resp.Result.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bybit decimal: %w", err)
	}
	return price, nil
}

// fetchOKX fetches a spot price from OKX REST API.
//
//	GET /api/v5/market/ticker?instId=BTC-USDT
//	{"data":[{"last":"87350.00",...}]}
func (pf *PriceFeed) fetchOKX(ctx context.Context, symbol string) (decimal.Decimal, error) {
	body, err := pf.http.get(ctx, pf.cfg.OKXURL+"/api/v5/market/ticker?instId="+okxInstrument(symbol))
	if err != nil {
		return decimal.Zero, fmt.Errorf("okx: %w", err)
	}

	var resp struct {
		Data []struct {
			Last string `json:"last"`
		} `json:"data"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("okx parse: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].Last == "" {
		return decimal.Zero, fmt.Errorf("okx: empty data field")
	}
	price, err := decimal.NewFromString(resp.Data[0].Last)
	if err != nil {
		return decimal.Zero, fmt.Errorf("okx decimal: %w", err)
	}
	return price, nil
}

var quoteAssets = []string{"USDT", "USDC", "USD", "BTC", "ETH"}

// okxInstrument converts BTCUSDT to OKX's dashed BTC-USDT form.
func okxInstrument(symbol string) string {
	for _, q := range quoteAssets {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return symbol[:len(symbol)-len(q)] + "-" + q
		}
	}
	return symbol
}
