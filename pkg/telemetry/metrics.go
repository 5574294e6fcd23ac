// Package telemetry exposes replay and book counters to Prometheus.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/uhyunpark/mbobook/pkg/orderbook"
)

const namespace = "mbobook"

// Metrics owns its registry so that several replays (and tests) never share
// collectors.
type Metrics struct {
	reg *prometheus.Registry

	EventsProcessed *prometheus.CounterVec
	EventsRejected  *prometheus.CounterVec
	UnknownActions  prometheus.Counter
	Trades          prometheus.Counter
	TradedVolume    prometheus.Counter
	RestingOrders   prometheus.Gauge
	FilledOrders    prometheus.Gauge
	ReplayDuration  prometheus.Histogram
}

func New(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_processed_total", Help: "Feed events processed by action",
		}, []string{"action"}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_rejected_total", Help: "Feed events the book refused, by reason",
		}, []string{"reason"}),
		UnknownActions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "unknown_actions_total", Help: "Events with an unrecognized action code",
		}),
		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_total", Help: "Trades appended to the ledger",
		}),
		TradedVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "traded_volume_total", Help: "Sum of executed trade sizes",
		}),
		RestingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "resting_orders", Help: "Orders currently resting in the book",
		}),
		FilledOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "filled_orders", Help: "Orders fully filled since start",
		}),
		ReplayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "replay_duration_seconds", Help: "Wall time of a replay run",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}

	m.reg.MustRegister(
		m.EventsProcessed, m.EventsRejected, m.UnknownActions,
		m.Trades, m.TradedVolume, m.RestingOrders, m.FilledOrders, m.ReplayDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	logger.Sugar().Debugw("metrics_initialized", "namespace", namespace)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveTrade is suitable as an orderbook OnTrade hook.
func (m *Metrics) ObserveTrade(t orderbook.Trade) {
	m.Trades.Inc()
	m.TradedVolume.Add(float64(t.Size))
}

// ObserveBook samples the book's counters.
func (m *Metrics) ObserveBook(ob *orderbook.OrderBook) {
	m.RestingOrders.Set(float64(ob.UnfilledOrders()))
	m.FilledOrders.Set(float64(ob.FilledOrders()))
}

func (m *Metrics) ObserveReplay(d time.Duration) {
	m.ReplayDuration.Observe(d.Seconds())
}
