package resourcemon

import (
	"sync"
	"time"
)

// SessionMetrics tracks request counters and a response-time EMA for one
// session, independent of anything the Session Registry itself tracks —
// this is retention for monitoring/summary purposes, not session state.
type SessionMetrics struct {
	SessionID       string
	MemoryUsageMB   float64
	CPUUsagePercent float64
	LastActivity    time.Time
	RequestCount    int64
	SuccessCount    int64
	FailureCount    int64
	AvgResponseTime time.Duration
}

// SuccessRate returns the fraction of requests that succeeded, or 0 if none
// have been recorded yet.
func (m SessionMetrics) SuccessRate() float64 {
	if m.RequestCount == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.RequestCount)
}

type sessionTable struct {
	mu sync.RWMutex
	m  map[string]*SessionMetrics
}

func newSessionTable() *sessionTable {
	return &sessionTable{m: make(map[string]*SessionMetrics)}
}

// record folds one request outcome into a session's counters, creating the
// entry on first use. response time of 0 means "not measured" and leaves the
// EMA untouched, mirroring the source system's skip-if-zero guard.
func (t *sessionTable) record(sessionID string, memoryMB, cpuPercent float64, success bool, responseTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sm, ok := t.m[sessionID]
	if !ok {
		sm = &SessionMetrics{SessionID: sessionID}
		t.m[sessionID] = sm
	}

	sm.LastActivity = time.Now()
	sm.RequestCount++
	sm.MemoryUsageMB = memoryMB
	sm.CPUUsagePercent = cpuPercent

	if success {
		sm.SuccessCount++
	} else {
		sm.FailureCount++
	}

	if responseTime > 0 {
		if sm.AvgResponseTime == 0 {
			sm.AvgResponseTime = responseTime
		} else {
			sm.AvgResponseTime = time.Duration(float64(sm.AvgResponseTime)*0.9 + float64(responseTime)*0.1)
		}
	}
}

func (t *sessionTable) get(sessionID string) (SessionMetrics, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sm, ok := t.m[sessionID]
	if !ok {
		return SessionMetrics{}, false
	}
	return *sm, true
}

func (t *sessionTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// all returns a snapshot copy of every tracked session's metrics.
func (t *sessionTable) all() []SessionMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SessionMetrics, 0, len(t.m))
	for _, sm := range t.m {
		out = append(out, *sm)
	}
	return out
}

// sweepIdle removes entries whose last activity is older than maxIdle and
// reports how many were removed. This is metrics-retention cleanup only —
// it has no bearing on whether the underlying session is still alive.
func (t *sessionTable) sweepIdle(maxIdle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	var removed int
	for id, sm := range t.m {
		if now.Sub(sm.LastActivity) > maxIdle {
			delete(t.m, id)
			removed++
		}
	}
	return removed
}
