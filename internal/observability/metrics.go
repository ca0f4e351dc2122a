package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"aviary/internal/core"
)

const namespace = "aviary"

// Metrics holds the Prometheus collectors for the server and the worker.
// Every helper method is a no-op on a nil receiver.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration *prometheus.HistogramVec // labels: method, route

	RecordsWritten  *prometheus.CounterVec // labels: entity, op={create,update,delete}
	AlertsRaised    *prometheus.CounterVec // labels: kind={temperature,humidity}, level={low,high}
	ExpiringRecords *prometheus.GaugeVec   // labels: level={critical,expired}

	TelemetryMessages  *prometheus.CounterVec // labels: outcome={accepted,invalid,error}
	LedgerPublish      *prometheus.CounterVec // labels: outcome={published,failed}
	LedgerSync         *prometheus.CounterVec // labels: outcome={synced,skipped,error}
	LedgerSyncDuration prometheus.Histogram

	CacheLookups *prometheus.CounterVec // labels: cache, result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route template and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route template.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Record writes by entity and operation.",
		}, []string{"entity", "op"}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "environment_alerts_total",
			Help:      "Out-of-range incubator readings by kind and level.",
		}, []string{"kind", "level"}),
		ExpiringRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "expiring_records",
			Help:      "Licences and permits currently critical or expired.",
		}, []string{"level"}),
		TelemetryMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_messages_total",
			Help:      "Incubator telemetry messages received over MQTT by outcome.",
		}, []string{"outcome"}),
		LedgerPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_publish_total",
			Help:      "Ledger sync messages published to AMQP by outcome.",
		}, []string{"outcome"}),
		LedgerSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_sync_total",
			Help:      "Transactions processed by the ledger worker by outcome.",
		}, []string{"outcome"}),
		LedgerSyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_sync_duration_seconds",
			Help:      "Time spent writing one transaction to the external ledger.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Derived-view cache lookups by cache and result.",
		}, []string{"cache", "result"}),
	}

	prometheus.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.RecordsWritten,
		m.AlertsRaised,
		m.ExpiringRecords,
		m.TelemetryMessages,
		m.LedgerPublish,
		m.LedgerSync,
		m.LedgerSyncDuration,
		m.CacheLookups,
	)

	return m
}

// NewMetricsForTesting returns unregistered collectors so tests can build
// as many as they like.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		HTTPRequests:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total"}, []string{"method", "route", "status"}),
		HTTPDuration:       prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds"}, []string{"method", "route"}),
		RecordsWritten:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "records_written_total"}, []string{"entity", "op"}),
		AlertsRaised:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "environment_alerts_total"}, []string{"kind", "level"}),
		ExpiringRecords:    prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "expiring_records"}, []string{"level"}),
		TelemetryMessages:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "telemetry_messages_total"}, []string{"outcome"}),
		LedgerPublish:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ledger_publish_total"}, []string{"outcome"}),
		LedgerSync:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ledger_sync_total"}, []string{"outcome"}),
		LedgerSyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "ledger_sync_duration_seconds"}),
		CacheLookups:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "cache_lookups_total"}, []string{"cache", "result"}),
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) RecordWrite(entity, op string) {
	if m == nil {
		return
	}
	m.RecordsWritten.WithLabelValues(entity, op).Inc()
}

func (m *Metrics) ObserveAlerts(alerts []core.Alert) {
	if m == nil {
		return
	}
	for _, a := range alerts {
		m.AlertsRaised.WithLabelValues(string(a.Kind), string(a.Level)).Inc()
	}
}

func (m *Metrics) SetExpiring(critical, expired int) {
	if m == nil {
		return
	}
	m.ExpiringRecords.WithLabelValues(string(core.ExpiryCritical)).Set(float64(critical))
	m.ExpiringRecords.WithLabelValues(string(core.ExpiryExpired)).Set(float64(expired))
}

func (m *Metrics) Telemetry(outcome string) {
	if m == nil {
		return
	}
	m.TelemetryMessages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Publish(ok bool) {
	if m == nil {
		return
	}
	outcome := "published"
	if !ok {
		outcome = "failed"
	}
	m.LedgerPublish.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Sync(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LedgerSync.WithLabelValues(outcome).Inc()
	if outcome == "synced" {
		m.LedgerSyncDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) CacheLookup(cache string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}
