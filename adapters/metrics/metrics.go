// Package metrics provides Prometheus metrics collection for xbrlgate.
package metrics

import (
	"strings"
	"time"

	"github.com/artpar/xbrlgate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "xbrlgate"

// Collector holds all Prometheus metrics for xbrlgate.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Authorization metrics
	DecisionsTotal    *prometheus.CounterVec
	AuthorizeDuration prometheus.Histogram
	StoreErrors       *prometheus.CounterVec
	LedgerErrors      *prometheus.CounterVec

	// Usage metrics
	UsageRecordsTotal *prometheus.CounterVec
	UsageQueue        prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge

	ledgerBackend string
}

// New creates a collector registered with the default Prometheus registry.
func New(ledgerBackend string) *Collector {
	return newCollector(promauto.With(prometheus.DefaultRegisterer), ledgerBackend)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer, ledgerBackend string) *Collector {
	return newCollector(promauto.With(reg), ledgerBackend)
}

func newCollector(factory promauto.Factory, ledgerBackend string) *Collector {
	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Authorization decisions by outcome and reason",
			},
			[]string{"outcome", "reason"},
		),
		AuthorizeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "authorize_duration_seconds",
				Help:      "Time spent authorizing a request",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Credential store failures by operation",
			},
			[]string{"op"},
		),
		LedgerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_errors_total",
				Help:      "Rate limit ledger failures by backend",
			},
			[]string{"backend"},
		),
		UsageRecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_records_total",
				Help:      "Usage records by result (written, dropped, failed)",
			},
			[]string{"result"},
		),
		UsageQueue: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "usage_queue_depth",
				Help:      "Usage records waiting to be written",
			},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
		ledgerBackend: ledgerBackend,
	}
}

// ObserveDecision records one authorization.
func (c *Collector) ObserveDecision(outcome, reason string, took time.Duration) {
	c.DecisionsTotal.WithLabelValues(outcome, reason).Inc()
	c.AuthorizeDuration.Observe(took.Seconds())
}

// StoreError counts a credential store failure.
func (c *Collector) StoreError(op string) {
	c.StoreErrors.WithLabelValues(op).Inc()
}

// LedgerError counts a ledger failure.
func (c *Collector) LedgerError() {
	c.LedgerErrors.WithLabelValues(c.ledgerBackend).Inc()
}

// UsageRecords counts usage records by result.
func (c *Collector) UsageRecords(result string, n int) {
	c.UsageRecordsTotal.WithLabelValues(result).Add(float64(n))
}

// UsageQueueDepth sets the number of queued usage records.
func (c *Collector) UsageQueueDepth(n int) {
	c.UsageQueue.Set(float64(n))
}

// ConfigReloaded records the outcome of a config reload.
func (c *Collector) ConfigReloaded(err error, at time.Time) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}

// NormalizePath reduces cardinality by replacing ID-like segments with ":id".
// e.g., /admin/keys/6ba7b810-9dad-11d1-80b4-00c04fd430c8 -> /admin/keys/:id
func NormalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if looksLikeID(seg) {
			segments[i] = ":id"
		}
	}
	path = strings.Join(segments, "/")
	if len(path) > 50 {
		return path[:50] + "..."
	}
	return path
}

// looksLikeID reports whether a path segment is numeric or a UUID.
func looksLikeID(seg string) bool {
	if seg == "" {
		return false
	}
	digits := true
	for _, r := range seg {
		if r < '0' || r > '9' {
			digits = false
			break
		}
	}
	if digits {
		return true
	}
	return len(seg) == 36 && strings.Count(seg, "-") == 4
}

// Ensure interface compliance.
var (
	_ ports.AuthMetrics  = (*Collector)(nil)
	_ ports.UsageMetrics = (*Collector)(nil)
)
