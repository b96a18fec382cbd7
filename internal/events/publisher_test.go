package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/evetabi/betengine/internal/domain"
	"github.com/evetabi/betengine/internal/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNew_NoBrokersIsNop(t *testing.T) {
	p := events.New(nil, discard)
	if _, ok := p.(events.Nop); !ok {
		t.Fatalf("New(nil) = %T, want events.Nop", p)
	}
	if err := p.Publish(context.Background(), events.BetEvent{Topic: events.TopicBetPlaced}); err != nil {
		t.Errorf("nop publish: %v", err)
	}
}

func TestKafkaPublisher_UnknownTopic(t *testing.T) {
	p := events.NewKafkaPublisher([]string{"127.0.0.1:1"}, discard)
	defer p.Close()

	err := p.Publish(context.Background(), events.BetEvent{Topic: "nope"})
	if err == nil || !strings.Contains(err.Error(), "unknown topic") {
		t.Fatalf("err = %v, want unknown topic", err)
	}
}

func TestNewBetEvent_SettledPayload(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payout := decimal.RequireFromString("19.5")
	reason := domain.ReasonExpired
	b := &domain.Bet{
		ID: uuid.New(), OwnerID: uuid.New(), Kind: domain.KindPrediction,
		Direction: domain.DirectionUp, Stake: decimal.NewFromInt(10),
		Status: domain.BetStatusWon, Payout: &payout, CloseReason: &reason,
		Prediction: &domain.PredictionTerms{Symbol: "BTCUSDT"},
	}

	ev := events.NewBetEvent(events.TopicBetSettled, b, at)
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["status"] != "CLOSED_WIN" || got["payout"] != "19.5" || got["symbol"] != "BTCUSDT" {
		t.Errorf("event json = %s", raw)
	}
	if _, ok := got["Topic"]; ok {
		t.Error("topic must not be serialised")
	}
	if got["ts_unix_ms"] != float64(at.UnixMilli()) {
		t.Errorf("ts = %v", got["ts_unix_ms"])
	}
}

// ── Queue ────────────────────────────────────────────────────────────────────

type recordingPublisher struct {
	mu     sync.Mutex
	got    []uuid.UUID
	gate   chan struct{}
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.BetEvent) error {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("publish after close")
	}
	p.got = append(p.got, ev.BetID)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestQueue_DeliversInOrderAndDrainsOnClose(t *testing.T) {
	gate := make(chan struct{})
	inner := &recordingPublisher{gate: gate}
	q := events.NewQueue(inner, 64, time.Second, discard)

	var want []uuid.UUID
	for range 50 {
		id := uuid.New()
		want = append(want, id)
		if err := q.Publish(context.Background(), events.BetEvent{Topic: events.TopicBetPlaced, BetID: id}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	// Deliveries are still blocked; Close must wait for all of them.
	close(gate)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if len(inner.got) != len(want) {
		t.Fatalf("delivered %d events, want %d", len(inner.got), len(want))
	}
	for i := range want {
		if inner.got[i] != want[i] {
			t.Fatalf("event %d out of order", i)
		}
	}
	if !inner.closed {
		t.Error("inner publisher not closed")
	}

	if err := q.Publish(context.Background(), events.BetEvent{Topic: events.TopicBetPlaced}); !errors.Is(err, events.ErrQueueClosed) {
		t.Errorf("publish after close err = %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestQueue_FullFailsFast(t *testing.T) {
	gate := make(chan struct{})
	inner := &recordingPublisher{gate: gate}
	q := events.NewQueue(inner, 1, time.Second, discard)

	var full bool
	for range 3 {
		err := q.Publish(context.Background(), events.BetEvent{Topic: events.TopicBetSettled, BetID: uuid.New()})
		if errors.Is(err, events.ErrQueueFull) {
			full = true
			break
		}
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if !full {
		t.Error("queue of size 1 never reported full")
	}
	close(gate)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
