// Package metrics holds the Prometheus instruments of the media server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	soapActions     *prometheus.CounterVec
	bytesStreamed   prometheus.Counter
	activeSessions  prometheus.Gauge
}

// New creates and registers the media server metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dms_http_requests_total",
		Help: "Total number of HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dms_http_request_duration_seconds",
		Help:    "HTTP request duration by route and method",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
	soapActions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dms_soap_actions_total",
		Help: "SOAP actions handled by service and action",
	}, []string{"service", "action"})
	bytesStreamed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dms_bytes_streamed_total",
		Help: "Bytes of media, thumbnails and subtitles written to renderers",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dms_active_playback_sessions",
		Help: "Number of streams currently being played",
	})

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		soapActions,
		bytesStreamed,
		activeSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry:        registry,
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
		soapActions:     soapActions,
		bytesStreamed:   bytesStreamed,
		activeSessions:  activeSessions,
	}
}

func (m *Metrics) IncSOAPAction(service, action string) {
	if m == nil {
		return
	}
	m.soapActions.WithLabelValues(service, action).Inc()
}

func (m *Metrics) AddBytesStreamed(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesStreamed.Add(float64(n))
}

// SetActiveSessions matches the playback.Sessions change callback.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
