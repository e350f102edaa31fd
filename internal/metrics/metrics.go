// Package metrics exposes Prometheus collectors for the capture service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	capturesTotal              *prometheus.CounterVec
	captureDurationSeconds     *prometheus.HistogramVec
	activeCaptures             prometheus.Gauge
	permitWaitSeconds          prometheus.Histogram
	sinkErrorsTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		capturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webshot_captures_total",
				Help: "Total number of completed captures, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		captureDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webshot_capture_duration_seconds",
				Help:    "Capture latency from permit grant to capture return, labeled by result.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"result"},
		)

		activeCaptures = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webshot_active_captures",
				Help: "Number of captures currently holding a permit.",
			},
		)

		permitWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webshot_permit_wait_seconds",
				Help:    "Histogram of time spent waiting for a capture permit.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		)

		sinkErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webshot_sink_errors_total",
				Help: "Total number of sink write failures, labeled by sink.",
			},
			[]string{"sink"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webshot_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webshot_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// ObserveCapture records one completed capture.
func ObserveCapture(site string, success bool, duration time.Duration) {
	Init()
	label := resultLabel(success)
	capturesTotal.WithLabelValues(SanitizeSite(site), label).Inc()
	captureDurationSeconds.WithLabelValues(label).Observe(duration.Seconds())
}

// ObservePermitWait records how long a task waited for a permit.
func ObservePermitWait(duration time.Duration) {
	Init()
	permitWaitSeconds.Observe(duration.Seconds())
}

// IncActiveCaptures increments the active captures gauge.
func IncActiveCaptures() {
	Init()
	activeCaptures.Inc()
}

// DecActiveCaptures decrements the active captures gauge.
func DecActiveCaptures() {
	Init()
	activeCaptures.Dec()
}

// ObserveSinkError increments the sink failure counter.
func ObserveSinkError(sink string) {
	Init()
	sinkErrorsTotal.WithLabelValues(sink).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
