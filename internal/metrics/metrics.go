package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the pipeline counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	passes          prometheus.Counter
	postsDiscovered prometheus.Counter
	postsSkipped    *prometheus.CounterVec
	verdicts        *prometheus.CounterVec
	classifyErrors  prometheus.Counter
	inFlight        prometheus.Gauge
	classifyTime    prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		passes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "slopwatch",
			Name:      "discovery_passes_total",
			Help:      "Discovery passes over the feed",
		}),
		postsDiscovered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "slopwatch",
			Name:      "posts_discovered_total",
			Help:      "Posts seen for the first time",
		}),
		postsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slopwatch",
			Name:      "posts_skipped_total",
			Help:      "Posts not sent to the classifier",
		}, []string{"reason"}),
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slopwatch",
			Name:      "verdicts_total",
			Help:      "Classification verdicts",
		}, []string{"verdict"}),
		classifyErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "slopwatch",
			Name:      "classify_errors_total",
			Help:      "Failed classification calls, counted as genuine",
		}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "slopwatch",
			Name:      "classifications_in_flight",
			Help:      "Classification calls currently running",
		}),
		classifyTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "slopwatch",
			Name:      "classify_duration_seconds",
			Help:      "Duration of classification calls",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 8),
		}),
	}
}

func (m *Metrics) Pass() {
	if m != nil {
		m.passes.Inc()
	}
}

func (m *Metrics) Discovered() {
	if m != nil {
		m.postsDiscovered.Inc()
	}
}

func (m *Metrics) Skipped(reason string) {
	if m != nil {
		m.postsSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Verdict(v string) {
	if m != nil {
		m.verdicts.WithLabelValues(v).Inc()
	}
}

// ClassifyFailed satisfies classifier.Reporter.
func (m *Metrics) ClassifyFailed(error) {
	if m != nil {
		m.classifyErrors.Inc()
	}
}

// Track marks the start of a classification call and returns its completion func.
func (m *Metrics) Track() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func() {
		m.inFlight.Dec()
		m.classifyTime.Observe(time.Since(start).Seconds())
	}
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
