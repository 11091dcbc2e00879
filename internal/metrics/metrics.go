// Package metrics exposes the engine's Prometheus instruments. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "predictpool"

// Metrics holds the engine's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	BetsPlaced       *prometheus.CounterVec
	BetsRejected     *prometheus.CounterVec
	StakePlaced      *prometheus.CounterVec
	MarketsCreated   prometheus.Counter
	MarketsResolved  *prometheus.CounterVec
	BetsSettled      *prometheus.CounterVec
	PayoutTotal      prometheus.Counter
	UnclaimedTotal   prometheus.Counter
	SettleDuration   prometheus.Histogram
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	WebsocketClients prometheus.Gauge
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BetsPlaced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bets_placed_total",
			Help: "Bets accepted into a market pool.",
		}, []string{"position"}),
		BetsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bets_rejected_total",
			Help: "Bets refused, by reason.",
		}, []string{"reason"}),
		StakePlaced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stake_placed_total",
			Help: "Sum of accepted stake amounts.",
		}, []string{"position"}),
		MarketsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "markets_created_total",
			Help: "Markets created.",
		}),
		MarketsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "markets_resolved_total",
			Help: "Markets resolved, by outcome.",
		}, []string{"outcome"}),
		BetsSettled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bets_settled_total",
			Help: "Bets whose payout was written, by result.",
		}, []string{"result"}),
		PayoutTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "payout_total",
			Help: "Sum of payouts written.",
		}),
		UnclaimedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "unclaimed_pool_total",
			Help: "Pool remainder left undistributed after settlement.",
		}),
		SettleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "settlement_duration_seconds",
			Help:    "Time to settle one market.",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests, by method and status code.",
		}, []string{"method", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		WebsocketClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "websocket_clients",
			Help: "Connected WebSocket clients.",
		}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) BetPlaced(position string, stake int64) {
	if m == nil {
		return
	}
	m.BetsPlaced.WithLabelValues(position).Inc()
	m.StakePlaced.WithLabelValues(position).Add(float64(stake))
}

func (m *Metrics) BetRejected(reason string) {
	if m == nil {
		return
	}
	m.BetsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) MarketCreated() {
	if m == nil {
		return
	}
	m.MarketsCreated.Inc()
}

func (m *Metrics) MarketResolved(outcome string) {
	if m == nil {
		return
	}
	m.MarketsResolved.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BetSettled(won bool, payout int64) {
	if m == nil {
		return
	}
	result := "lost"
	if won {
		result = "won"
	}
	m.BetsSettled.WithLabelValues(result).Inc()
	m.PayoutTotal.Add(float64(payout))
}

// MarketSettled records one completed settlement pass.
func (m *Metrics) MarketSettled(unclaimed int64, took time.Duration) {
	if m == nil {
		return
	}
	m.UnclaimedTotal.Add(float64(unclaimed))
	m.SettleDuration.Observe(took.Seconds())
}

func (m *Metrics) HTTPRequest(method string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, statusLabel(code)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(took.Seconds())
}

func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.WebsocketClients.Add(float64(delta))
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
