// Package metrics exposes the Prometheus registry used by city-data-fetch.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, pagination, artifact, pipeline, publish) via promauto.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewMux serves /metrics and /health.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// Serve exposes the metrics endpoint on addr until ctx is done.
// The listener is bound before Serve returns so bind errors surface early.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return nil
}

// Metrics Documentation
//
// Transport Metrics (pkg/client):
//   - citydata_requests_total{host, status} (Counter): Outbound requests by host and HTTP status
//   - citydata_request_duration_seconds{host} (Histogram): Request duration by host
//   - citydata_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - citydata_retries_total{error_class} (Counter): Retry attempts by error class
//   - citydata_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - citydata_retry_exhausted_total{error_class} (Counter): Requests that exhausted max attempts
//
// Cache Metrics (pkg/cache):
//   - citydata_cache_hits_total{layer} (Counter): Cache hits by layer (redis, memory)
//   - citydata_cache_misses_total{layer} (Counter): Cache misses by layer
//   - citydata_cache_size_bytes{layer} (Gauge): Bytes stored by the last write
//   - citydata_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pacing Metrics (pkg/ratelimit):
//   - citydata_politeness_pauses_total{scope} (Counter): Pauses between pages or windows
//   - citydata_politeness_pause_seconds_total{scope} (Counter): Time spent pausing
//   - citydata_rate_limit_waits_total (Counter): Requests delayed by the rate ceiling
//
// Pipeline Metrics (pkg/pagination, pkg/artifact, pkg/pipeline, pkg/publish):
//   - citydata_pages_fetched_total{outcome} (Counter): Page requests by outcome
//   - citydata_rows_fetched_total (Counter): Rows retrieved
//   - citydata_windows_total{source, outcome} (Counter): Windows processed, skipped, empty or failed
//   - citydata_window_duration_seconds{source} (Histogram): Fetch and write time per window
//   - citydata_artifacts_written_total{source} (Counter): Artifacts written
//   - citydata_artifact_rows_total{source} (Counter): Rows written
//   - citydata_mirror_uploads_total{outcome} (Counter): Artifact uploads
//   - citydata_mirror_upload_bytes_total (Counter): Bytes uploaded
//   - citydata_mirror_errors_total (Counter): Artifacts that could not be mirrored
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(citydata_cache_hits_total[5m])) /
//   (sum(rate(citydata_cache_hits_total[5m])) + sum(rate(citydata_cache_misses_total[5m])))
//
//   # Failed windows per source
//   sum by (source) (citydata_windows_total{outcome="failed"})
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(citydata_request_duration_seconds_bucket[5m]))
