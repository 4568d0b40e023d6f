// Package metrics holds the Prometheus collectors for wallet traffic and
// settlement outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the service collectors. A nil *Metrics is a no-op.
type Metrics struct {
	walletCalls     *prometheus.CounterVec
	walletLatency   *prometheus.HistogramVec
	breakerRejected *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	replays         *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		walletCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seamless",
				Subsystem: "wallet",
				Name:      "calls_total",
				Help:      "Core wallet calls partitioned by operation and result.",
			},
			[]string{"op", "result"},
		),
		walletLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "seamless",
				Subsystem: "wallet",
				Name:      "call_duration_seconds",
				Help:      "Core wallet call latency by operation.",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		breakerRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seamless",
				Subsystem: "wallet",
				Name:      "breaker_rejected_total",
				Help:      "Wallet calls rejected by an open circuit, by operator.",
			},
			[]string{"operator"},
		),
		settlements: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seamless",
				Subsystem: "settlement",
				Name:      "operations_total",
				Help:      "Settlement operations by provider, operation and error code.",
			},
			[]string{"provider", "op", "code"},
		),
		replays: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seamless",
				Subsystem: "settlement",
				Name:      "replays_total",
				Help:      "Settle requests answered from the ledger without a wallet call.",
			},
			[]string{"provider"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "seamless",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Provider callback requests by provider and status.",
			},
			[]string{"provider", "status"},
		),
	}
}

// ObserveWalletCall records one gateway round trip. result is ok, declined or error.
func (m *Metrics) ObserveWalletCall(op, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.walletCalls.WithLabelValues(op, result).Inc()
	m.walletLatency.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Metrics) ObserveBreakerRejected(operator string) {
	if m == nil {
		return
	}
	m.breakerRejected.WithLabelValues(operator).Inc()
}

// ObserveSettlement records an orchestrator outcome; code is "OK" on success.
func (m *Metrics) ObserveSettlement(provider, op, code string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(provider, op, code).Inc()
}

func (m *Metrics) ObserveReplay(provider string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(provider).Inc()
}

func (m *Metrics) ObserveHTTP(provider string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(provider, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
