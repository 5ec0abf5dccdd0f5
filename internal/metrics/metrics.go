package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// namespace prefixes every metric name.
	namespace = "paperward"

	// readHeaderTimeout bounds header parsing on the diagnostics listener.
	readHeaderTimeout = 5 * time.Second

	// shutdownTimeout bounds the graceful stop of the diagnostics listener.
	shutdownTimeout = 5 * time.Second
)

// Metrics holds the supervisor's collectors on a private registry, so
// tests can create as many instances as they like without panicking on
// duplicate registration.
type Metrics struct {
	// registry backs the /metrics endpoint.
	registry *prometheus.Registry

	// updateChecks counts update checks against the build registry.
	updateChecks prometheus.Counter
	// updatesApplied counts builds committed to the server directory.
	updatesApplied prometheus.Counter
	// updateFailures counts update cycles that fell back to the installed build.
	updateFailures prometheus.Counter
	// serverStarts counts child process launches.
	serverStarts prometheus.Counter
	// restarts counts restart decisions, operator-made or automatic.
	restarts prometheus.Counter
	// downloadBytes counts artifact bytes fetched from the registry.
	downloadBytes prometheus.Counter
	// downloadSeconds observes artifact download durations.
	downloadSeconds prometheus.Histogram
	// installedBuild reports the build number currently installed.
	installedBuild prometheus.Gauge
}

// New returns a metric set registered on its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		updateChecks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_checks_total",
			Help:      "Update checks performed against the build registry.",
		}),
		updatesApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_applied_total",
			Help:      "Builds downloaded and committed to the server directory.",
		}),
		updateFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_failures_total",
			Help:      "Update cycles that failed and fell back to the installed build.",
		}),
		serverStarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_starts_total",
			Help:      "Child server process launches.",
		}),
		restarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Restart decisions, operator-made or automatic.",
		}),
		downloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Artifact bytes fetched from the build registry.",
		}),
		downloadSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Artifact download durations.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		installedBuild: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "installed_build",
			Help:      "Build number currently installed in the server directory.",
		}),
	}
}

// RecordUpdateCheck counts one update check.
func (m *Metrics) RecordUpdateCheck() {
	m.updateChecks.Inc()
}

// RecordUpdateApplied counts a committed build and moves the installed gauge.
func (m *Metrics) RecordUpdateApplied(build int) {
	m.updatesApplied.Inc()
	m.installedBuild.Set(float64(build))
}

// RecordUpdateFailure counts an update cycle that fell back to the installed build.
func (m *Metrics) RecordUpdateFailure() {
	m.updateFailures.Inc()
}

// RecordServerStart counts a child launch and pins the installed gauge.
func (m *Metrics) RecordServerStart(build int) {
	m.serverStarts.Inc()
	m.installedBuild.Set(float64(build))
}

// RecordRestart counts a restart decision.
func (m *Metrics) RecordRestart() {
	m.restarts.Inc()
}

// RecordDownload accounts a finished artifact download.
func (m *Metrics) RecordDownload(bytes int64, elapsed time.Duration) {
	m.downloadBytes.Add(float64(bytes))
	m.downloadSeconds.Observe(elapsed.Seconds())
}

// Handler returns the diagnostics router serving /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	router := chi.NewRouter()

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})) //nolint:exhaustruct // Default handler options are fine.

	return router
}

// Serve exposes the diagnostics router on addr until the context is
// canceled, then shuts the listener down gracefully.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	//nolint:exhaustruct // Remaining server knobs keep their defaults.
	server := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shut down diagnostics server: %w", err)
		}

		<-serveErr

		return nil
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("diagnostics server: %w", err)
		}

		return nil
	}
}
