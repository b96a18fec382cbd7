// Package scheduler runs the resolver: three independent background loops
// that reconcile OPEN bets against market data and settle them.
//  1. prediction loop – settles PREDICTION bets whose expiry has passed.
//  2. price loop      – settles PRICE bets whose take-profit, stop-loss or
//     liquidation level has been crossed.
//  3. event loop      – settles EVENT bets once their market has resolved.
//
// Loops share nothing but the store.  A panic inside a loop is logged and the
// loop restarts after a backoff; a failure on one bet, symbol or market never
// stops the rest of the scan.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evetabi/betengine/internal/clock"
	"github.com/evetabi/betengine/internal/config"
	"github.com/evetabi/betengine/internal/domain"
	"github.com/evetabi/betengine/internal/metrics"
	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dependencies
// ──────────────────────────────────────────────────────────────────────────────

// BetSource lists OPEN bets.  Implemented by repository.Store.
type BetSource interface {
	ListOpenBets(ctx context.Context, kind domain.MarketKind) ([]*domain.Bet, error)
}

// Settler closes a bet against a snapshot.  Implemented by
// service.BettingService.
type Settler interface {
	SettleBet(ctx context.Context, betID uuid.UUID, snap domain.MarketSnapshot) (*domain.Bet, error)
}

// MarketData is the subset of the market data adapter the resolver reads.
type MarketData interface {
	CurrentPrice(ctx context.Context, symbol string) (domain.PriceQuote, error)
	EventOutcome(ctx context.Context, marketID string) (domain.Outcome, error)
}

// Loop names, used as log and metric labels.
const (
	LoopPrediction = "prediction"
	LoopPrice      = "price"
	LoopEvent      = "event"
)

// ScanResult counts what one scan did.  Scanned counts bets that were due for
// a check; each of them ends up Settled, Skipped (nothing to do yet, or market
// data unavailable) or Failed.
type ScanResult struct {
	Scanned int
	Settled int
	Skipped int
	Failed  int
}

func (r *ScanResult) add(o outcome) {
	r.Scanned++
	switch o {
	case settled:
		r.Settled++
	case skipped:
		r.Skipped++
	case failed:
		r.Failed++
	}
}

type outcome int

const (
	settled outcome = iota
	skipped
	failed
)

// ──────────────────────────────────────────────────────────────────────────────
// Resolver
// ──────────────────────────────────────────────────────────────────────────────

// Resolver owns the three scan loops.  Construct it in main, call Start once
// and Stop on shutdown.
type Resolver struct {
	bets    BetSource
	settler Settler
	market  MarketData
	clock   clock.Clock
	cfg     config.ResolverConfig
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewResolver creates a Resolver.
func NewResolver(
	bets BetSource,
	settler Settler,
	market MarketData,
	c clock.Clock,
	cfg *config.Config,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		bets:    bets,
		settler: settler,
		market:  market,
		clock:   c,
		cfg:     cfg.Resolver,
		logger:  logger.With("component", "resolver"),
	}
}

type scanFunc func(ctx context.Context) (ScanResult, error)

// Start launches the three loops and returns immediately.  They run until
// Stop is called or ctx is cancelled.
func (r *Resolver) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)

	loops := []struct {
		name     string
		interval time.Duration
		scan     scanFunc
	}{
		{LoopPrediction, r.cfg.PredictionInterval, r.ScanPredictions},
		{LoopPrice, r.cfg.PriceInterval, r.ScanPriceBets},
		{LoopEvent, r.cfg.EventInterval, r.ScanEvents},
	}
	for _, l := range loops {
		r.wg.Add(1)
		go r.supervise(ctx, l.name, l.interval, l.scan)
	}
	r.logger.Info("resolver started",
		"prediction_interval", r.cfg.PredictionInterval,
		"price_interval", r.cfg.PriceInterval,
		"event_interval", r.cfg.EventInterval)
}

// Stop cancels every loop and waits for in-flight scans to finish.
func (r *Resolver) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
	r.logger.Info("resolver stopped")
}

// supervise runs a loop and restarts it after RestartBackoff when it panics.
// A non-positive backoff falls back to the loop interval.
func (r *Resolver) supervise(ctx context.Context, name string, interval time.Duration, scan scanFunc) {
	defer r.wg.Done()
	for {
		if !r.runLoop(ctx, name, interval, scan) || ctx.Err() != nil {
			return
		}
		wait := r.cfg.RestartBackoff
		if wait <= 0 {
			wait = interval
		}
		metrics.LoopRestarts.WithLabelValues(name).Inc()
		r.logger.Warn("restarting resolver loop", "loop", name, "backoff", wait)

		backoff := r.clock.NewTicker(wait)
		select {
		case <-ctx.Done():
			backoff.Stop()
			return
		case <-backoff.C():
			backoff.Stop()
		}
	}
}

// runLoop ticks until ctx is done.  It reports whether it ended in a panic.
func (r *Resolver) runLoop(ctx context.Context, name string, interval time.Duration, scan scanFunc) (panicked bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("PANIC recovered in resolver loop", "loop", name, "panic", rec)
			panicked = true
		}
	}()

	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("resolver loop shutting down", "loop", name)
			return false
		case <-ticker.C():
			r.runScan(ctx, name, scan)
		}
	}
}

func (r *Resolver) runScan(ctx context.Context, name string, scan scanFunc) {
	start := time.Now()
	res, err := scan(ctx)
	metrics.ScanDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		r.logger.Error("resolver scan failed", "loop", name, "err", err)
		return
	}
	metrics.ScanBets.WithLabelValues(name, "settled").Add(float64(res.Settled))
	metrics.ScanBets.WithLabelValues(name, "skipped").Add(float64(res.Skipped))
	metrics.ScanBets.WithLabelValues(name, "failed").Add(float64(res.Failed))
	if res.Settled > 0 || res.Failed > 0 {
		r.logger.Info("resolver scan",
			"loop", name, "scanned", res.Scanned, "settled", res.Settled,
			"skipped", res.Skipped, "failed", res.Failed)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Scans
// ──────────────────────────────────────────────────────────────────────────────

// ScanPredictions settles every OPEN prediction whose expiry is at or before
// now, at the current price of its symbol.
func (r *Resolver) ScanPredictions(ctx context.Context) (ScanResult, error) {
	bets, err := r.bets.ListOpenBets(ctx, domain.KindPrediction)
	if err != nil {
		return ScanResult{}, fmt.Errorf("scheduler.ScanPredictions: %w", err)
	}
	now := r.clock.Now()
	prices := r.newPriceMemo(now)

	var res ScanResult
	for _, b := range bets {
		if !b.ExpiredAt(now) {
			continue
		}
		res.add(r.settleOne(ctx, b, func() (domain.MarketSnapshot, bool) {
			q, err := prices.get(ctx, b.Symbol())
			if err != nil {
				return domain.MarketSnapshot{}, false
			}
			return domain.PriceSnapshot(q, now), true
		}))
	}
	return res, nil
}

// ScanPriceBets checks every OPEN PRICE bet against the current price of its
// symbol and settles those whose take-profit, stop-loss or liquidation level
// has been crossed.
func (r *Resolver) ScanPriceBets(ctx context.Context) (ScanResult, error) {
	bets, err := r.bets.ListOpenBets(ctx, domain.KindPrice)
	if err != nil {
		return ScanResult{}, fmt.Errorf("scheduler.ScanPriceBets: %w", err)
	}
	now := r.clock.Now()
	prices := r.newPriceMemo(now)

	var res ScanResult
	for _, b := range bets {
		res.add(r.settleOne(ctx, b, func() (domain.MarketSnapshot, bool) {
			q, err := prices.get(ctx, b.Symbol())
			if err != nil {
				return domain.MarketSnapshot{}, false
			}
			if _, hit := b.Price.PriceTrigger(b.Direction, q.Price); !hit {
				return domain.MarketSnapshot{}, false
			}
			return domain.PriceSnapshot(q, now), true
		}))
	}
	return res, nil
}

// ScanEvents groups OPEN EVENT bets by market, reads each market's outcome
// once and settles all bets of every resolved market.  A pending market is
// not an error.
func (r *Resolver) ScanEvents(ctx context.Context) (ScanResult, error) {
	bets, err := r.bets.ListOpenBets(ctx, domain.KindEvent)
	if err != nil {
		return ScanResult{}, fmt.Errorf("scheduler.ScanEvents: %w", err)
	}

	byMarket := make(map[string][]*domain.Bet)
	var order []string
	for _, b := range bets {
		if b.Event == nil {
			continue
		}
		id := b.Event.MarketID
		if _, seen := byMarket[id]; !seen {
			order = append(order, id)
		}
		byMarket[id] = append(byMarket[id], b)
	}

	var res ScanResult
	for _, marketID := range order {
		group := byMarket[marketID]
		o, err := r.eventOutcome(ctx, marketID)
		if err != nil {
			metrics.MarketDataErrors.WithLabelValues(metrics.SourceEvent).Inc()
			r.logger.Warn("event outcome unavailable", "market_id", marketID, "bets", len(group), "err", err)
		}
		now := r.clock.Now()
		for _, b := range group {
			res.add(r.settleOne(ctx, b, func() (domain.MarketSnapshot, bool) {
				if err != nil || !o.Resolved {
					return domain.MarketSnapshot{}, false
				}
				return domain.OutcomeSnapshot(o, now), true
			}))
		}
	}
	return res, nil
}

func (r *Resolver) eventOutcome(ctx context.Context, marketID string) (domain.Outcome, error) {
	fctx, cancel := r.fetchContext(ctx)
	defer cancel()
	return r.market.EventOutcome(fctx, marketID)
}

// settleOne settles b with the snapshot from snap.  A false from snap, an
// untriggered snapshot or a bet that is already closed count as skipped.
// Errors and panics are logged and counted as failed.
func (r *Resolver) settleOne(ctx context.Context, b *domain.Bet, snap func() (domain.MarketSnapshot, bool)) (res outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("PANIC recovered while settling bet", "bet_id", b.ID, "kind", b.Kind, "panic", rec)
			res = failed
		}
	}()

	s, ok := snap()
	if !ok {
		return skipped
	}
	_, err := r.settler.SettleBet(ctx, b.ID, s)
	switch {
	case err == nil:
		return settled
	case errors.Is(err, domain.ErrNotTriggered), errors.Is(err, domain.ErrAlreadyResolved):
		return skipped
	default:
		r.logger.Error("settle bet failed", "bet_id", b.ID, "kind", b.Kind, "err", err)
		return failed
	}
}

func (r *Resolver) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.FetchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.FetchTimeout)
}

// ──────────────────────────────────────────────────────────────────────────────
// Per-scan price memo
// ──────────────────────────────────────────────────────────────────────────────

type memoEntry struct {
	quote domain.PriceQuote
	err   error
}

// priceMemo fetches each symbol at most once per scan and rejects quotes older
// than MaxPriceAge.
type priceMemo struct {
	r       *Resolver
	now     time.Time
	entries map[string]memoEntry
}

func (r *Resolver) newPriceMemo(now time.Time) *priceMemo {
	return &priceMemo{r: r, now: now, entries: make(map[string]memoEntry)}
}

func (m *priceMemo) get(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	if e, ok := m.entries[symbol]; ok {
		return e.quote, e.err
	}

	fctx, cancel := m.r.fetchContext(ctx)
	q, err := m.r.market.CurrentPrice(fctx, symbol)
	cancel()
	if err == nil && m.r.cfg.MaxPriceAge > 0 && q.Age(m.now) > m.r.cfg.MaxPriceAge {
		err = fmt.Errorf("%s quote from %s: %w", symbol, q.AsOf.Format(time.RFC3339), domain.ErrStalePrice)
	}
	if err != nil {
		metrics.MarketDataErrors.WithLabelValues(metrics.SourcePrice).Inc()
		m.r.logger.Warn("price unavailable, skipping symbol this cycle", "symbol", symbol, "err", err)
	}
	m.entries[symbol] = memoEntry{quote: q, err: err}
	return q, err
}
