package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records playground activity on a private registry, so several
// servers can live in one process (tests, the desktop app).
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive    prometheus.Gauge
	sessionsStarted   *prometheus.CounterVec
	decodeFailures    prometheus.Counter
	shareLinks        prometheus.Counter
	clipboardFailures prometheus.Counter
	formats           *prometheus.CounterVec
	docsReloads       prometheus.Counter
}

// NewMetrics registers the playground collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "resultplay",
			Name:      "sessions_active",
			Help:      "Playground sessions currently connected",
		}),
		sessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resultplay",
			Name:      "sessions_started_total",
			Help:      "Playground sessions initialized, by where the buffer came from",
		}, []string{"source"}),
		decodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resultplay",
			Name:      "share_decode_failures_total",
			Help:      "Share tokens that could not be decoded",
		}),
		shareLinks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resultplay",
			Name:      "share_links_total",
			Help:      "Share links written to the address",
		}),
		clipboardFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resultplay",
			Name:      "clipboard_failures_total",
			Help:      "Clipboard writes rejected by the client",
		}),
		formats: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resultplay",
			Name:      "format_total",
			Help:      "Formatter runs by result",
		}, []string{"result"}),
		docsReloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "resultplay",
			Name:      "docs_reloads_total",
			Help:      "Documentation reloads triggered by file changes",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	// The compression middleware already gzips the response.
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{DisableCompression: true})
}

// Initialized implements session.Observer.
func (m *Metrics) Initialized(fromLink bool) {
	source := "default"
	if fromLink {
		source = "link"
	}
	m.sessionsStarted.WithLabelValues(source).Inc()
	m.sessionsActive.Inc()
}

// DecodeFailed implements session.Observer.
func (m *Metrics) DecodeFailed() { m.decodeFailures.Inc() }

// Saved implements session.Observer.
func (m *Metrics) Saved() { m.shareLinks.Inc() }

// ClipboardFailed implements session.Observer.
func (m *Metrics) ClipboardFailed() { m.clipboardFailures.Inc() }

// Formatted implements session.Observer.
func (m *Metrics) Formatted(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.formats.WithLabelValues(result).Inc()
}

// Disposed implements session.Observer.
func (m *Metrics) Disposed() { m.sessionsActive.Dec() }

// DocsReloaded counts a documentation reload.
func (m *Metrics) DocsReloaded() { m.docsReloads.Inc() }
