package service_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/evetabi/betengine/internal/clock"
	"github.com/evetabi/betengine/internal/config"
	"github.com/evetabi/betengine/internal/domain"
	"github.com/evetabi/betengine/internal/events"
	"github.com/evetabi/betengine/internal/ledger"
	"github.com/evetabi/betengine/internal/repository"
	"github.com/evetabi/betengine/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	t0      = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// ── Market data stub ─────────────────────────────────────────────────────────

type stubMarket struct {
	clock clock.Clock

	mu       sync.Mutex
	prices   map[string]decimal.Decimal
	markets  map[string]*domain.EventMarket
	outcomes map[string]domain.Outcome
}

func newStubMarket(c clock.Clock) *stubMarket {
	return &stubMarket{
		clock:    c,
		prices:   map[string]decimal.Decimal{"BTCUSDT": dec("50000")},
		markets:  map[string]*domain.EventMarket{},
		outcomes: map[string]domain.Outcome{},
	}
}

func (m *stubMarket) setPrice(symbol, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = dec(price)
}

func (m *stubMarket) addEvent(id string, closed bool, prices ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	em := &domain.EventMarket{ID: id, Closed: closed}
	for i, p := range prices {
		em.Options = append(em.Options, domain.EventOption{Index: i, Label: fmt.Sprintf("opt%d", i), Price: dec(p)})
	}
	m.markets[id] = em
}

func (m *stubMarket) resolve(id string, option int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[id] = domain.Outcome{Resolved: true, OptionIndex: option}
}

func (m *stubMarket) CurrentPrice(_ context.Context, symbol string) (domain.PriceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[symbol]
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("symbol %s: %w", symbol, domain.ErrMarketNotFound)
	}
	return domain.PriceQuote{Symbol: symbol, Price: p, AsOf: m.clock.Now()}, nil
}

func (m *stubMarket) EventMarket(_ context.Context, id string) (*domain.EventMarket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	em, ok := m.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	cp := *em
	return &cp, nil
}

func (m *stubMarket) EventOutcome(_ context.Context, id string) (domain.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.markets[id]; !ok {
		return domain.Outcome{}, domain.ErrMarketNotFound
	}
	return m.outcomes[id], nil
}

// ── Notifier / publisher recorders ───────────────────────────────────────────

type notification struct {
	userID  uuid.UUID
	msgType string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NotifyUser(userID uuid.UUID, msgType string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{userID, msgType})
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.msgType
	}
	return out
}

type chanPublisher struct {
	ch chan events.BetEvent
}

func (p *chanPublisher) Publish(_ context.Context, ev events.BetEvent) error {
	p.ch <- ev
	return nil
}

func (p *chanPublisher) Close() error { return nil }

// ── Fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	svc    *service.BettingService
	store  *repository.MemoryStore
	market *stubMarket
	clock  *clock.Manual
}

func testConfig() *config.Config {
	return &config.Config{
		Betting: config.BettingConfig{
			MinStake:       1,
			MaxStake:       10000,
			MinLeverage:    1,
			MaxLeverage:    100,
			SignupBonus:    1000,
			PredictionOdds: map[int64]float64{60: 1.95, 300: 1.95},
		},
		Resolver: config.ResolverConfig{FetchTimeout: time.Second},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := clock.NewManual(t0)
	store := repository.NewMemoryStore()
	market := newStubMarket(c)
	svc := service.NewBettingService(store, ledger.New(c), market, c, testConfig(), discard)
	return &fixture{svc: svc, store: store, market: market, clock: c}
}

// user opens an account funded with the 1000 signup bonus.
func (f *fixture) user(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if _, _, err := f.svc.OpenAccount(context.Background(), id); err != nil {
		t.Fatalf("OpenAccount: %v", err)
	}
	return id
}

func (f *fixture) balance(t *testing.T, user uuid.UUID) decimal.Decimal {
	t.Helper()
	acc, err := f.svc.Balance(context.Background(), user)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return acc.Balance
}

func assertBalance(t *testing.T, f *fixture, user uuid.UUID, want string) {
	t.Helper()
	if got := f.balance(t, user); !got.Equal(dec(want)) {
		t.Errorf("balance = %s, want %s", got, want)
	}
}

func priceReq(user uuid.UUID, dir domain.Direction, stake, leverage string) domain.PlaceBetRequest {
	return domain.PlaceBetRequest{
		UserID: user, Kind: domain.KindPrice, Direction: dir,
		Amount: dec(stake), Leverage: dec(leverage), Symbol: "BTCUSDT",
	}
}

func predictionReq(user uuid.UUID, dir domain.Direction, stake string) domain.PlaceBetRequest {
	return domain.PlaceBetRequest{
		UserID: user, Kind: domain.KindPrediction, Direction: dir,
		Amount: dec(stake), Symbol: "BTCUSDT", DurationSec: 60,
	}
}

func eventReq(user uuid.UUID, dir domain.Direction, stake, market string, option int) domain.PlaceBetRequest {
	return domain.PlaceBetRequest{
		UserID: user, Kind: domain.KindEvent, Direction: dir,
		Amount: dec(stake), MarketID: market, OptionIndex: option,
	}
}
