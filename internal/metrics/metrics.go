// Package metrics holds the server's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests         *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	NotificationsEmitted *prometheus.CounterVec
	PushSends            *prometheus.CounterVec
	EmailsSent           *prometheus.CounterVec
	WebsocketClients     prometheus.Gauge
	Backups              *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifly_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifly_http_request_duration_seconds",
				Help:    "Histogram of response durations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		NotificationsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifly_notifications_emitted_total",
				Help: "Notification records created, by kind",
			},
			[]string{"kind"},
		),
		PushSends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifly_push_sends_total",
				Help: "Web push deliveries, by result (sent, expired, failed)",
			},
			[]string{"result"},
		),
		EmailsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifly_emails_total",
				Help: "Emails handed to the mail provider, by type and result",
			},
			[]string{"type", "result"},
		),
		WebsocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifly_websocket_clients",
				Help: "Connected websocket clients",
			},
		),
		Backups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifly_backups_total",
				Help: "Database backups, by result",
			},
			[]string{"result"},
		),
	}
	m.Registry.MustRegister(
		m.HTTPRequests,
		m.RequestDuration,
		m.NotificationsEmitted,
		m.PushSends,
		m.EmailsSent,
		m.WebsocketClients,
		m.Backups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
