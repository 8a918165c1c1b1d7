// Package metrics provides Prometheus metrics for monitoring the session
// orchestration service.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total operation requests by operation and status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helmsman_requests_total",
			Help: "Total number of operation requests processed",
		},
		[]string{"operation", "status"},
	)

	// RequestDuration tracks operation duration by operation.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helmsman_request_duration_seconds",
			Help:    "Operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~205s
		},
		[]string{"operation"},
	)

	// BrowserPoolSize shows the configured pool size.
	BrowserPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "helmsman_browser_pool_size",
			Help: "Configured browser pool size",
		},
	)

	// BrowserPoolAvailable shows available browsers in the pool.
	BrowserPoolAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "helmsman_browser_pool_available",
			Help: "Available browsers in pool",
		},
	)

	// BrowserPoolAcquired counts total browser acquisitions.
	BrowserPoolAcquired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "helmsman_browser_pool_acquired_total",
			Help: "Total browser acquisitions from pool",
		},
	)

	// BrowserPoolRecycled counts browser recycles.
	BrowserPoolRecycled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "helmsman_browser_pool_recycled_total",
			Help: "Total browsers recycled",
		},
	)

	// ActiveSessions shows current active sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "helmsman_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// CaptchaDetections counts pages flagged by the captcha-detection
	// heuristic, by detection reason.
	CaptchaDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helmsman_captcha_detections_total",
			Help: "Total pages flagged as CAPTCHA/challenge by reason",
		},
		[]string{"reason"},
	)

	// OperationsFailed counts operations that returned an error, by kind.
	OperationsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helmsman_operations_failed_total",
			Help: "Total operations failed by error kind",
		},
		[]string{"kind"},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "helmsman_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// MemorySysBytes shows system memory obtained.
	MemorySysBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "helmsman_memory_sys_bytes",
			Help: "Total memory obtained from system",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "helmsman_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helmsman_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		BrowserPoolSize,
		BrowserPoolAvailable,
		BrowserPoolAcquired,
		BrowserPoolRecycled,
		ActiveSessions,
		CaptchaDetections,
		OperationsFailed,
		MemoryUsageBytes,
		MemorySysBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector starts a goroutine that periodically updates memory metrics.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

// updateMemoryMetrics updates memory-related metrics.
func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	MemorySysBytes.Set(float64(m.Sys))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordRequest records metrics for a completed operation.
func RecordRequest(operation, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(operation, status).Inc()
	RequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCaptchaDetection records a page flagged by the CAPTCHA heuristic.
func RecordCaptchaDetection(reason string) {
	CaptchaDetections.WithLabelValues(reason).Inc()
}

// RecordOperationFailed records an operation failure by error kind.
func RecordOperationFailed(kind string) {
	OperationsFailed.WithLabelValues(kind).Inc()
}

// UpdatePoolMetrics updates browser pool metrics.
func UpdatePoolMetrics(size, available int, acquired, recycled int64) {
	BrowserPoolSize.Set(float64(size))
	BrowserPoolAvailable.Set(float64(available))
	// acquired and recycled are not recorded: BrowserPoolAcquired and
	// BrowserPoolRecycled are not incremented here or elsewhere.
}

// UpdateSessionMetrics updates session count metric.
func UpdateSessionMetrics(count int) {
	ActiveSessions.Set(float64(count))
}
