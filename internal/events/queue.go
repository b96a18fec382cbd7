package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/evetabi/betengine/internal/metrics"
)

var (
	// ErrQueueFull is returned by Queue.Publish when the buffer is full.
	ErrQueueFull = errors.New("events: queue full")
	// ErrQueueClosed is returned by Queue.Publish after Close.
	ErrQueueClosed = errors.New("events: queue closed")
)

// Queue hands events to an inner Publisher from a single goroutine, so the
// sink sees them in enqueue order.  Publish never waits on the sink.
type Queue struct {
	inner   Publisher
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan BetEvent
	done   chan struct{}
}

// NewQueue starts the delivery goroutine.  Each inner Publish gets timeout.
func NewQueue(inner Publisher, size int, timeout time.Duration, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	q := &Queue{
		inner:   inner,
		timeout: timeout,
		logger:  logger.With("component", "event_queue"),
		ch:      make(chan BetEvent, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Publish enqueues ev.  It fails fast with ErrQueueFull instead of blocking
// the caller behind a slow broker.
func (q *Queue) Publish(_ context.Context, ev BetEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- ev:
		return nil
	default:
		metrics.EventsDropped.WithLabelValues(ev.Topic).Inc()
		return ErrQueueFull
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for ev := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.inner.Publish(ctx, ev); err != nil {
			q.logger.Warn("publish bet event failed", "topic", ev.Topic, "bet_id", ev.BetID, "err", err)
		}
		cancel()
	}
}

// Close stops accepting events, delivers everything already queued, then
// closes the inner publisher.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	<-q.done
	return q.inner.Close()
}
