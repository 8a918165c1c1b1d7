package resourcemon

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Monitor runs the background sampling loop and retains bounded history of
// system and per-session metrics.
type Monitor struct {
	interval        time.Duration
	idleThreshold   time.Duration
	maxSessionsHint func() int

	mu      sync.RWMutex
	history []SystemMetrics

	sessions *sessionTable

	stopCh chan struct{}
	wg     sync.WaitGroup
	active atomic.Bool

	gauges prometheusGauges
}

type prometheusGauges struct {
	cpuPercent      prometheus.Gauge
	memoryPercent   prometheus.Gauge
	memoryAvailGiB  prometheus.Gauge
	diskPercent     prometheus.Gauge
	activeSessions  prometheus.Gauge
	recommendedCap  prometheus.Gauge
	trackedSessions prometheus.Gauge
}

// New creates a Monitor. maxSessionsHint, if non-nil, is consulted each tick
// to report how many sessions are currently active in the registry; it may
// be nil if the caller only wants the recommended-cap/system-sample side of
// the monitor without session integration.
func New(interval, idleThreshold time.Duration, maxSessionsHint func() int) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if idleThreshold <= 0 {
		idleThreshold = 300 * time.Second
	}

	m := &Monitor{
		interval:        interval,
		idleThreshold:   idleThreshold,
		maxSessionsHint: maxSessionsHint,
		sessions:        newSessionTable(),
		stopCh:          make(chan struct{}),
		gauges: prometheusGauges{
			cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "helmsman_resource_cpu_percent",
				Help: "Host CPU utilization percent, most recent sample",
			}),
			memoryPercent: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "helmsman_resource_memory_percent",
				Help: "Host memory utilization percent, most recent sample",
			}),
			memoryAvailGiB: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "helmsman_resource_memory_available_gib",
				Help: "Host memory available in GiB, most recent sample",
			}),
			diskPercent: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "helmsman_resource_disk_percent",
				Help: "Disk utilization percent for the data volume, most recent sample",
			}),
			activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "helmsman_resource_active_sessions",
				Help: "Active session count as reported by the registry hint",
			}),
			recommendedCap: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "helmsman_resource_recommended_session_cap",
				Help: "Recommended session cap computed from available memory",
			}),
			trackedSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "helmsman_resource_tracked_sessions",
				Help: "Number of sessions with metrics currently retained",
			}),
		},
	}

	return m
}

// Registerer matches prometheus.Registerer's MustRegister signature, kept
// narrow so tests can pass a stub instead of a real registry.
type Registerer interface {
	MustRegister(...prometheus.Collector)
}

// RegisterCollectors registers the monitor's gauges with reg. Call once at
// startup, before Start.
func (m *Monitor) RegisterCollectors(reg Registerer) {
	reg.MustRegister(
		m.gauges.cpuPercent,
		m.gauges.memoryPercent,
		m.gauges.memoryAvailGiB,
		m.gauges.diskPercent,
		m.gauges.activeSessions,
		m.gauges.recommendedCap,
		m.gauges.trackedSessions,
	)
}

// Start launches the background sampling loop. Safe to call at most once;
// a second call is a no-op, matching the source system's "already active"
// guard.
func (m *Monitor) Start() {
	if !m.active.CompareAndSwap(false, true) {
		log.Warn().Msg("Resource monitor already active")
		return
	}

	log.Info().Dur("interval", m.interval).Msg("Resource monitoring started")

	m.wg.Add(2)
	go m.sampleLoop()
	go m.sweepLoop()
}

// Stop halts the background loops and waits for them to exit.
func (m *Monitor) Stop() {
	if !m.active.CompareAndSwap(true, false) {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
	log.Info().Msg("Resource monitoring stopped")
}

func (m *Monitor) sampleLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *Monitor) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.idleThreshold)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if removed := m.sessions.sweepIdle(m.idleThreshold); removed > 0 {
				log.Info().Int("count", removed).Msg("Cleaned up idle session metrics")
			}
		}
	}
}

func (m *Monitor) collect() {
	active := m.sessions.count()
	maxSessions := recommendedSessionCap()
	if m.maxSessionsHint != nil {
		active = m.maxSessionsHint()
	}

	sample, err := sampleSystem(active, maxSessions)
	if err != nil {
		log.Error().Err(err).Msg("Failed to collect system metrics")
		return
	}

	m.mu.Lock()
	m.history = append(m.history, sample)
	if len(m.history) > maxHistorySize {
		m.history = m.history[len(m.history)-maxHistorySize:]
	}
	m.mu.Unlock()

	m.gauges.cpuPercent.Set(sample.CPUPercent)
	m.gauges.memoryPercent.Set(sample.MemoryPercent)
	m.gauges.memoryAvailGiB.Set(sample.MemoryAvailableGiB)
	m.gauges.diskPercent.Set(sample.DiskUsagePercent)
	m.gauges.activeSessions.Set(float64(sample.ActiveSessions))
	m.gauges.recommendedCap.Set(float64(maxSessions))
	m.gauges.trackedSessions.Set(float64(m.sessions.count()))

	if sample.CPUPercent > 80 || sample.MemoryPercent > 80 {
		log.Warn().
			Float64("cpu_percent", sample.CPUPercent).
			Float64("memory_percent", sample.MemoryPercent).
			Msg("High resource usage detected")
	}
}

// RecordSession folds one request's outcome into a session's retained
// metrics, creating the entry on first use.
func (m *Monitor) RecordSession(sessionID string, memoryMB, cpuPercent float64, success bool, responseTime time.Duration) {
	m.sessions.record(sessionID, memoryMB, cpuPercent, success, responseTime)
}

// SessionMetrics returns the retained metrics for one session, if any.
func (m *Monitor) SessionMetrics(sessionID string) (SessionMetrics, bool) {
	return m.sessions.get(sessionID)
}

// LatestSystemMetrics returns the most recent sample, if one has been
// collected.
func (m *Monitor) LatestSystemMetrics() (SystemMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return SystemMetrics{}, false
	}
	return m.history[len(m.history)-1], true
}

// Summary is the aggregate snapshot returned by Summary().
type Summary struct {
	Timestamp       time.Time
	System          SystemMetrics
	TotalRequests   int64
	SuccessRate     float64
	AvgResponseTime time.Duration
	TopSessions     []SessionMetrics
}

// topSessionCount bounds how many sessions Summary reports by memory usage.
const topSessionCount = 5

// Summary produces the system summary projection: latest sample, aggregate
// success rate and average response time across tracked sessions, and the
// top sessions by memory use.
func (m *Monitor) Summary() Summary {
	latest, _ := m.LatestSystemMetrics()
	sessions := m.sessions.all()

	var totalRequests, totalSuccesses int64
	var totalResponseTime time.Duration
	for _, sm := range sessions {
		totalRequests += sm.RequestCount
		totalSuccesses += sm.SuccessCount
		totalResponseTime += sm.AvgResponseTime
	}

	var successRate float64
	if totalRequests > 0 {
		successRate = float64(totalSuccesses) / float64(totalRequests)
	}

	var avgResponseTime time.Duration
	if len(sessions) > 0 {
		avgResponseTime = totalResponseTime / time.Duration(len(sessions))
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].MemoryUsageMB > sessions[j].MemoryUsageMB
	})
	if len(sessions) > topSessionCount {
		sessions = sessions[:topSessionCount]
	}

	return Summary{
		Timestamp:       time.Now(),
		System:          latest,
		TotalRequests:   totalRequests,
		SuccessRate:     successRate,
		AvgResponseTime: avgResponseTime,
		TopSessions:     sessions,
	}
}
