// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal        *prometheus.CounterVec
	postsTotal        *prometheus.CounterVec
	mediaBytesTotal   *prometheus.CounterVec
	retriesTotal      *prometheus.CounterVec
	restartsTotal     prometheus.Counter
	jumpBacksTotal    *prometheus.CounterVec
	collectedGauge    *prometheus.GaugeVec
	fetchDurationSecs *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booruscraper_pages_total",
				Help: "Listing pages visited, labeled by site and result.",
			},
			[]string{"site", "result"},
		)
		postsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booruscraper_posts_total",
				Help: "Candidate posts processed, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)
		mediaBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booruscraper_media_bytes_total",
				Help: "Bytes of media written, labeled by site.",
			},
			[]string{"site"},
		)
		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booruscraper_retries_total",
				Help: "Transient failures that triggered a retry, labeled by error type.",
			},
			[]string{"error_type"},
		)
		restartsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "booruscraper_session_restarts_total",
				Help: "Fetcher session restarts.",
			},
		)
		jumpBacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booruscraper_jump_backs_total",
				Help: "Jump-backs to the last productive page, labeled by tag.",
			},
			[]string{"tag"},
		)
		collectedGauge = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "booruscraper_collected_posts",
				Help: "Posts recorded in the checkpoint, labeled by tag.",
			},
			[]string{"tag"},
		)
		fetchDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "booruscraper_fetch_duration_seconds",
				Help:    "Page fetch latency, labeled by kind (listing or post).",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"kind"},
		)
	})
}

// ObservePage counts a listing page visit
func ObservePage(site, result string) {
	Init()
	pagesTotal.WithLabelValues(site, result).Inc()
}

// ObservePost counts a processed post
func ObservePost(site, outcome string) {
	Init()
	postsTotal.WithLabelValues(site, outcome).Inc()
}

// ObserveMediaBytes adds written media bytes
func ObserveMediaBytes(site string, n int64) {
	if n <= 0 {
		return
	}
	Init()
	mediaBytesTotal.WithLabelValues(site).Add(float64(n))
}

// ObserveRetry counts a retried transient failure
func ObserveRetry(errorType string) {
	Init()
	retriesTotal.WithLabelValues(errorType).Inc()
}

// ObserveRestart counts a fetcher session restart
func ObserveRestart() {
	Init()
	restartsTotal.Inc()
}

// ObserveJumpBack counts a jump-back for tag
func ObserveJumpBack(tag string) {
	Init()
	jumpBacksTotal.WithLabelValues(tag).Inc()
}

// SetCollected records the checkpoint size for tag
func SetCollected(tag string, n int) {
	Init()
	collectedGauge.WithLabelValues(tag).Set(float64(n))
}

// ObserveFetch records how long a fetch took
func ObserveFetch(kind string, d time.Duration) {
	Init()
	fetchDurationSecs.WithLabelValues(kind).Observe(d.Seconds())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
