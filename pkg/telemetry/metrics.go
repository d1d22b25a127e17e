package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the revision engine. A Metrics
// built from a disabled config is a safe no-op.
type Metrics struct {
	config MetricsConfig

	// Snapshot store metrics
	storesTotal   *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec

	// Revision lifecycle metrics
	revisionsCreated *prometheus.CounterVec
	ephemeralUpdates *prometheus.CounterVec

	// Issue reconciliation metrics
	issuesAdded   *prometheus.CounterVec
	issuesRemoved *prometheus.CounterVec

	// Exception ledger metrics
	exceptionsRecorded *prometheus.CounterVec

	// Read path metrics
	listingRetries prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		storesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stores_total",
				Help:      "Total number of configuration snapshots stored",
			},
			[]string{"technology"},
		),
		storeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_duration_seconds",
				Help:      "Duration of store operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"technology"},
		),
		revisionsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "revisions_created_total",
				Help:      "Total number of new revisions recorded",
			},
			[]string{"technology"},
		),
		ephemeralUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ephemeral_updates_total",
				Help:      "Total number of in-place ephemeral revision updates",
			},
			[]string{"technology"},
		),
		issuesAdded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "issues_added_total",
				Help:      "Total number of audit issues added during reconciliation",
			},
			[]string{"technology"},
		),
		issuesRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "issues_removed_total",
				Help:      "Total number of audit issues removed during reconciliation",
			},
			[]string{"technology"},
		),
		exceptionsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exceptions_recorded_total",
				Help:      "Total number of exception ledger records written",
			},
			[]string{"source"},
		),
		listingRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listing_retries_total",
				Help:      "Total number of retried filtered listing reads",
			},
		),
	}

	registry.MustRegister(
		m.storesTotal,
		m.storeDuration,
		m.revisionsCreated,
		m.ephemeralUpdates,
		m.issuesAdded,
		m.issuesRemoved,
		m.exceptionsRecorded,
		m.listingRetries,
	)

	return m, nil
}

// RecordStore records a completed store operation and its duration.
func (m *Metrics) RecordStore(technology string, duration time.Duration) {
	if m.storesTotal == nil {
		return
	}
	m.storesTotal.WithLabelValues(technology).Inc()
	m.storeDuration.WithLabelValues(technology).Observe(duration.Seconds())
}

// RecordRevisionCreated increments the counter for new revisions.
func (m *Metrics) RecordRevisionCreated(technology string) {
	if m.revisionsCreated == nil {
		return
	}
	m.revisionsCreated.WithLabelValues(technology).Inc()
}

// RecordEphemeralUpdate increments the counter for in-place updates.
func (m *Metrics) RecordEphemeralUpdate(technology string) {
	if m.ephemeralUpdates == nil {
		return
	}
	m.ephemeralUpdates.WithLabelValues(technology).Inc()
}

// RecordIssueChanges records the issue additions and removals of one
// reconciliation pass.
func (m *Metrics) RecordIssueChanges(technology string, added, removed int) {
	if m.issuesAdded == nil {
		return
	}
	if added > 0 {
		m.issuesAdded.WithLabelValues(technology).Add(float64(added))
	}
	if removed > 0 {
		m.issuesRemoved.WithLabelValues(technology).Add(float64(removed))
	}
}

// RecordExceptionRecorded increments the exception ledger counter.
func (m *Metrics) RecordExceptionRecorded(source string) {
	if m.exceptionsRecorded == nil {
		return
	}
	m.exceptionsRecorded.WithLabelValues(source).Inc()
}

// RecordListingRetry increments the retried-read counter.
func (m *Metrics) RecordListingRetry() {
	if m.listingRetries == nil {
		return
	}
	m.listingRetries.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing the metrics endpoint.
// The server runs in the background; errors are reported on the returned
// channel.
func (m *Metrics) StartMetricsServer() <-chan error {
	errCh := make(chan error, 1)
	if !m.config.Enabled {
		return errCh
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	return errCh
}
