// Package metrics exposes protocol and service counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

const namespace = "overtime"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	Events         *prometheus.CounterVec
	Volume         *prometheus.CounterVec
	OracleMessages *prometheus.CounterVec
	KeeperRuns     *prometheus.CounterVec
	KeeperDuration *prometheus.HistogramVec
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	SinkErrors     *prometheus.CounterVec
	WSConnections  prometheus.Gauge
}

// New registers every collector, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Committed events by type.",
		}, []string{"type"}),
		Volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volume_susd_total",
			Help:      "sUSD traded by engine and side.",
		}, []string{"engine", "side"}),
		OracleMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_messages_total",
			Help:      "Oracle updates consumed by kind and outcome.",
		}, []string{"kind", "stage"}),
		KeeperRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keeper_task_runs_total",
			Help:      "Keeper task runs by task and outcome.",
		}, []string{"task", "outcome"}),
		KeeperDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "keeper_task_duration_seconds",
			Help:      "Keeper task latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"route"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed event deliveries by sink.",
		}, []string{"sink"}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket clients.",
		}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Events, m.Volume, m.OracleMessages,
		m.KeeperRuns, m.KeeperDuration,
		m.HTTPRequests, m.HTTPDuration,
		m.SinkErrors, m.WSConnections,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveHTTP records one request.
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveKeeper records one keeper task run.
func (m *Metrics) ObserveKeeper(task string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.KeeperRuns.WithLabelValues(task, outcome).Inc()
	m.KeeperDuration.WithLabelValues(task).Observe(d.Seconds())
}

// ObserveOracle records one consumed oracle update.
func (m *Metrics) ObserveOracle(kind domain.OracleKind, stage string) {
	if kind == "" {
		kind = "unknown"
	}
	m.OracleMessages.WithLabelValues(string(kind), stage).Inc()
}

// Publish counts a committed event and the volume it carries.
func (m *Metrics) Publish(_ context.Context, evt domain.Event) error {
	m.Events.WithLabelValues(string(evt.Type)).Inc()

	var engine, side, field string
	switch evt.Type {
	case domain.EventBoughtFromAmm:
		engine, side, field = "sports", "buy", "susd_paid"
	case domain.EventSoldToAmm:
		engine, side, field = "sports", "sell", "susd_paid"
	case domain.EventParlayMarketCreated:
		engine, side, field = "parlay", "buy", "susd_paid"
	case domain.EventChainedMarketCreated:
		engine, side, field = "speed", "buy", "buyin"
	default:
		return nil
	}
	if v, ok := evt.Payload[field].(string); ok {
		if d, err := decimal.NewFromString(v); err == nil {
			m.Volume.WithLabelValues(engine, side).Add(d.InexactFloat64())
		}
	}
	return nil
}

var _ domain.EventSink = (*Metrics)(nil)
