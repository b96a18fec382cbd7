// Package events publishes bet lifecycle events to Kafka after the owning
// transaction has committed.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/evetabi/betengine/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// Topic names.
const (
	TopicBetPlaced    = "bet_placed"
	TopicBetSettled   = "bet_settled"
	TopicBetCancelled = "bet_cancelled"
)

// BetEvent is the JSON value written to every topic.
type BetEvent struct {
	Topic       string              `json:"-"`
	BetID       uuid.UUID           `json:"bet_id"`
	UserID      uuid.UUID           `json:"user_id"`
	Kind        domain.MarketKind   `json:"kind"`
	Direction   domain.Direction    `json:"direction"`
	Status      domain.BetStatus    `json:"status"`
	Stake       decimal.Decimal     `json:"stake"`
	Payout      *decimal.Decimal    `json:"payout,omitempty"`
	CloseReason *domain.CloseReason `json:"close_reason,omitempty"`
	Symbol      string              `json:"symbol,omitempty"`
	TsUnixMs    int64               `json:"ts_unix_ms"`
}

// NewBetEvent builds the event for b on topic.
func NewBetEvent(topic string, b *domain.Bet, at time.Time) BetEvent {
	ev := BetEvent{
		Topic:       topic,
		BetID:       b.ID,
		UserID:      b.OwnerID,
		Kind:        b.Kind,
		Direction:   b.Direction,
		Status:      b.Status,
		Stake:       b.Stake,
		Payout:      b.Payout,
		CloseReason: b.CloseReason,
		Symbol:      b.Symbol(),
		TsUnixMs:    at.UnixMilli(),
	}
	if b.Event != nil {
		ev.Symbol = b.Event.MarketID
	}
	return ev
}

// Publisher delivers bet events.  Callers on a request path expect Publish
// to return promptly; wrap network sinks in a Queue.
type Publisher interface {
	Publish(ctx context.Context, ev BetEvent) error
	Close() error
}

// Queue sizing for New.
const (
	queueSize      = 1024
	publishTimeout = 5 * time.Second
)

// New returns a queued Kafka publisher for brokers, or a no-op publisher when
// no brokers are configured.
func New(brokers []string, logger *slog.Logger) Publisher {
	if len(brokers) == 0 {
		logger.Info("kafka brokers not configured; bet events disabled")
		return Nop{}
	}
	return NewQueue(NewKafkaPublisher(brokers, logger), queueSize, publishTimeout, logger)
}

// ──────────────────────────────────────────────────────────────────────────────
// Kafka
// ──────────────────────────────────────────────────────────────────────────────

// KafkaPublisher writes each topic through its own kafka.Writer.
type KafkaPublisher struct {
	writers map[string]*kafka.Writer
	logger  *slog.Logger
}

// NewKafkaPublisher creates one writer per topic.  Writers connect lazily.
func NewKafkaPublisher(brokers []string, logger *slog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		writers: make(map[string]*kafka.Writer, 3),
		logger:  logger.With("component", "kafka_publisher"),
	}
	for _, topic := range []string{TopicBetPlaced, TopicBetSettled, TopicBetCancelled} {
		p.writers[topic] = &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireOne,
		}
	}
	return p
}

// Publish writes ev keyed by bet id so events of one bet stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, ev BetEvent) error {
	w, ok := p.writers[ev.Topic]
	if !ok {
		return fmt.Errorf("events.Publish: unknown topic %q", ev.Topic)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events.Publish: marshal: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.BetID.String()),
		Value: b,
		Time:  time.UnixMilli(ev.TsUnixMs),
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events.Publish %s: %w", ev.Topic, err)
	}
	return nil
}

// Close flushes and closes every writer.
func (p *KafkaPublisher) Close() error {
	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, BetEvent) error { return nil }
func (Nop) Close() error                            { return nil }
