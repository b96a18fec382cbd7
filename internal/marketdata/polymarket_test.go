package marketdata_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evetabi/betengine/internal/clock"
	"github.com/evetabi/betengine/internal/config"
	"github.com/evetabi/betengine/internal/domain"
	"github.com/evetabi/betengine/internal/marketdata"
	"github.com/shopspring/decimal"
)

const pendingMarket = `{
  "condition_id": "0xabc",
  "question": "Will it rain?",
  "closed": false,
  "tokens": [
    {"outcome": "Yes", "price": 0.5, "token_id": "1", "winner": false},
    {"outcome": "No",  "price": 0.5, "token_id": "2", "winner": false}
  ]
}`

const resolvedMarket = `{
  "condition_id": "0xdef",
  "question": "Will it snow?",
  "closed": true,
  "tokens": [
    {"outcome": "Yes", "price": 0, "token_id": "1", "winner": false},
    {"outcome": "No",  "price": 1, "token_id": "2", "winner": true}
  ]
}`

func clobServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/markets/0xabc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, pendingMarket)
	})
	mux.HandleFunc("/markets/0xdef", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, resolvedMarket)
	})
	mux.HandleFunc("/markets/0xbad", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func eventFeed(url string) *marketdata.EventFeed {
	cfg := &config.Config{Polymarket: config.PolymarketConfig{
		ClobURL: url, FetchTimeout: 2 * time.Second, CacheTTL: 0,
	}}
	return marketdata.NewEventFeed(cfg, clock.System{})
}

func TestEventFeed_MarketOptions(t *testing.T) {
	feed := eventFeed(clobServer(t).URL)

	m, err := feed.EventMarket(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("EventMarket: %v", err)
	}
	if m.Closed || len(m.Options) != 2 {
		t.Fatalf("market = %+v", m)
	}
	opt, ok := m.Option(0)
	if !ok || opt.Label != "Yes" || !opt.Price.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("option 0 = %+v", opt)
	}
	if _, ok := m.Option(2); ok {
		t.Error("option 2 should not exist")
	}
}

func TestEventFeed_Outcome(t *testing.T) {
	feed := eventFeed(clobServer(t).URL)
	ctx := context.Background()

	pending, err := feed.EventOutcome(ctx, "0xabc")
	if err != nil || pending.Resolved {
		t.Errorf("pending outcome = %+v err=%v", pending, err)
	}

	resolved, err := feed.EventOutcome(ctx, "0xdef")
	if err != nil {
		t.Fatalf("EventOutcome: %v", err)
	}
	if !resolved.Resolved || resolved.OptionIndex != 1 {
		t.Errorf("resolved outcome = %+v, want option 1", resolved)
	}

	m, _ := feed.EventMarket(ctx, "0xdef")
	if !m.Closed {
		t.Error("resolved market should report closed")
	}
}

func TestEventFeed_Errors(t *testing.T) {
	feed := eventFeed(clobServer(t).URL)
	ctx := context.Background()

	if _, err := feed.EventOutcome(ctx, "0xmissing"); !errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("404: err = %v, want ErrMarketNotFound", err)
	}
	_, err := feed.EventOutcome(ctx, "0xbad")
	if err == nil || errors.Is(err, domain.ErrMarketNotFound) {
		t.Errorf("502: err = %v, want transient error", err)
	}
}
