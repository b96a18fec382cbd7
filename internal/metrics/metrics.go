// Package metrics exposes Prometheus counters for the betting service and the
// resolver, and a small HTTP server for /metrics and /healthz.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Source values for MarketDataErrors.
const (
	SourcePrice = "price"
	SourceEvent = "event"
)

var (
	BetsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betengine_bets_placed_total",
		Help: "Bets placed, by market kind.",
	}, []string{"kind"})

	BetsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betengine_bets_settled_total",
		Help: "Bets settled, by market kind, status and close reason.",
	}, []string{"kind", "status", "reason"})

	BetsCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betengine_bets_cancelled_total",
		Help: "Bets cancelled with a refund, by market kind.",
	}, []string{"kind"})

	StakeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betengine_stake_volume_total",
		Help: "Sum of stakes placed, by market kind.",
	}, []string{"kind"})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "betengine_resolver_scan_seconds",
		Help:    "Duration of one resolver scan, by loop.",
		Buckets: prometheus.DefBuckets,
	}, []string{"loop"})

	ScanBets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betengine_resolver_bets_total",
		Help: "Bets visited by resolver scans, by loop and result (settled, skipped, failed).",
	}, []string{"loop", "result"})

	LoopRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betengine_resolver_loop_restarts_total",
		Help: "Resolver loops restarted after a panic.",
	}, []string{"loop"})

	MarketDataErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betengine_market_data_errors_total",
		Help: "Market data fetch failures seen by the resolver, by source type (price, event).",
	}, []string{"source"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "betengine_events_dropped_total",
		Help: "Bet events dropped because the publish queue was full, by topic.",
	}, []string{"topic"})
)
