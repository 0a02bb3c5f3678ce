// Package metrics exposes Prometheus collectors for the platform.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the services and HTTP layer record into.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	UplinksReceived   *prometheus.CounterVec
	ReadingsIngested  prometheus.Counter
	AlertsOpened      *prometheus.CounterVec
	AlertsResolved    prometheus.Counter
	NotificationsSent *prometheus.CounterVec
	ProvisionAttempts *prometheus.CounterVec
	DigestsSent       prometheus.Counter
	UnitsByStatus     *prometheus.GaugeVec
}

// New creates a Metrics with its own registry, pre-populated with the
// standard Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frostguard_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frostguard_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		UplinksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frostguard_uplinks_received_total",
			Help: "LoRaWAN uplinks received by outcome (accepted, duplicate, unknown_device, invalid).",
		}, []string{"outcome"}),
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frostguard_readings_ingested_total",
			Help: "Sensor readings persisted.",
		}),
		AlertsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frostguard_alerts_opened_total",
			Help: "Alerts opened by kind.",
		}, []string{"kind"}),
		AlertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frostguard_alerts_resolved_total",
			Help: "Alerts resolved.",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frostguard_notifications_total",
			Help: "Notification deliveries by channel and status.",
		}, []string{"channel", "status"}),
		ProvisionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frostguard_provision_attempts_total",
			Help: "Device provisioning attempts by outcome.",
		}, []string{"outcome"}),
		DigestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frostguard_digests_sent_total",
			Help: "Daily digest emails queued.",
		}),
		UnitsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "frostguard_units",
			Help: "Monitored units by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.UplinksReceived,
		m.ReadingsIngested,
		m.AlertsOpened,
		m.AlertsResolved,
		m.NotificationsSent,
		m.ProvisionAttempts,
		m.DigestsSent,
		m.UnitsByStatus,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
