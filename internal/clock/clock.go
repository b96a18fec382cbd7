// Package clock abstracts time so the resolver and betting service can be
// driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time and tickers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of *time.Ticker the scheduler uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// ──────────────────────────────────────────────────────────────────────────────
// System clock
// ──────────────────────────────────────────────────────────────────────────────

// System is the wall clock (UTC).
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

func (System) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

// ──────────────────────────────────────────────────────────────────────────────
// Manual clock
// ──────────────────────────────────────────────────────────────────────────────

// Manual is a clock that only moves when Advance or Set is called.  Tickers
// created from it fire once per Advance that crosses their period.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManual returns a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t without firing tickers.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d and fires every ticker whose next tick
// falls inside the window.  Ticks are dropped when the receiver is not ready,
// like time.Ticker.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	tickers := append([]*manualTicker(nil), m.tickers...)
	m.mu.Unlock()

	for _, t := range tickers {
		t.fire(now)
	}
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{
		period: d,
		next:   m.now.Add(d),
		ch:     make(chan time.Time, 1),
	}
	m.tickers = append(m.tickers, t)
	return t
}

type manualTicker struct {
	mu      sync.Mutex
	period  time.Duration
	next    time.Time
	stopped bool
	ch      chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *manualTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.next) {
		return
	}
	for !t.next.After(now) {
		t.next = t.next.Add(t.period)
	}
	select {
	case t.ch <- now:
	default:
	}
}
