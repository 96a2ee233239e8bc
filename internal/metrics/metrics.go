package metrics

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	DefaultListenAddress = "localhost:9090"
	ReadHeaderTimeout    = 2 * time.Second

	jobName = "devicesync"
)

var (
	// Registry holds every collector exported by devicesync.
	Registry = prometheus.NewRegistry()

	// RecordsProcessed counts records by outcome - updated, skipped, failed, dryrun.
	RecordsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devicesync_records_processed_total",
			Help: "A counter metric to measure the number of device records processed, by outcome.",
		},
		[]string{"outcome"},
	)

	// APIRequestDuration measures Jamf API call latency by endpoint kind and status code.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devicesync_api_request_duration_seconds",
			Help:    "A histogram metric to measure Jamf API request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "code"},
	)

	TokenRenewals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "devicesync_token_renewals_total",
			Help: "A counter metric to measure the number of session token renewals.",
		},
	)

	BatchRunTimeSummary = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "devicesync_batch_duration_seconds",
			Help: "A summary metric to measure the total time spent in a batch run.",
		},
		[]string{"state"},
	)
)

func init() {
	Registry.MustRegister(
		RecordsProcessed,
		APIRequestDuration,
		TokenRenewals,
		BatchRunTimeSummary,
	)
}

// ListenAndServe exposes prometheus metrics on addr in a background goroutine.
func ListenAndServe(addr string) {
	if addr == "" {
		addr = DefaultListenAddress
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))

		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: ReadHeaderTimeout,
		}

		if err := server.ListenAndServe(); err != nil {
			slog.Error("Failed to start metrics server", "error", err)
		}
	}()

	slog.Info("metrics enabled", "endpoint", addr+"/metrics")
}

// Push sends the registry to a prometheus Pushgateway, a batch run
// usually ends before it can be scraped.
func Push(gatewayURL, runID string) error {
	err := push.New(gatewayURL, jobName).
		Gatherer(Registry).
		Grouping("run_id", runID).
		Push()
	if err != nil {
		return errors.Wrap(err, "failed to push metrics")
	}

	return nil
}

// ObserveAPIRequest records a single Jamf API call, code is 0 when no
// response was received.
func ObserveAPIRequest(endpoint string, code int, elapsed time.Duration) {
	APIRequestDuration.With(
		prometheus.Labels{
			"endpoint": endpoint,
			"code":     strconv.Itoa(code),
		},
	).Observe(elapsed.Seconds())
}
