// Package resourcemon samples host CPU/memory/disk on an interval, tracks
// per-session request counters, and exposes both as a JSON summary and a set
// of Prometheus gauges. Nothing here is session-authoritative — the Session
// Registry owns session lifecycle; this package only retains metrics about
// sessions it has been told about, and ages them out independently.
package resourcemon

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

// maxHistorySize bounds the system metrics ring; the oldest sample is
// evicted once it's exceeded.
const maxHistorySize = 1000

// SystemMetrics is a single point-in-time snapshot of host resource usage.
type SystemMetrics struct {
	Timestamp          time.Time
	CPUPercent         float64
	MemoryPercent      float64
	MemoryAvailableGiB float64
	DiskUsagePercent   float64
	ActiveSessions     int
	MaxSessions        int
}

// sampleSystem reads current CPU/memory/disk usage from the host. cpuPercent
// is measured over a short blocking window (gopsutil blocks for the given
// interval to compute a delta), matching psutil.cpu_percent(interval=1)'s
// blocking-sample behavior in the source system, just shorter — a full
// second of blocking per tick is wasteful for a 30s default interval.
func sampleSystem(activeSessions, maxSessions int) (SystemMetrics, error) {
	cpuPercents, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		return SystemMetrics{}, err
	}
	var cpuPercent float64
	if len(cpuPercents) > 0 {
		cpuPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return SystemMetrics{}, err
	}

	du, err := disk.Usage("/")
	if err != nil {
		return SystemMetrics{}, err
	}

	return SystemMetrics{
		Timestamp:          time.Now(),
		CPUPercent:         cpuPercent,
		MemoryPercent:      vm.UsedPercent,
		MemoryAvailableGiB: float64(vm.Available) / (1024 * 1024 * 1024),
		DiskUsagePercent:   du.UsedPercent,
		ActiveSessions:     activeSessions,
		MaxSessions:        maxSessions,
	}, nil
}

// recommendedSessionCap computes how many concurrent sessions the host can
// reasonably support: 2 sessions per available GiB of RAM, clamped to
// [5, 20]. A sampling failure falls back to 10, the same conservative
// default the source system uses when psutil itself errors.
func recommendedSessionCap() int {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 10
	}
	availableGiB := float64(vm.Available) / (1024 * 1024 * 1024)
	sessionCap := int(availableGiB * 2)
	if sessionCap < 5 {
		return 5
	}
	if sessionCap > 20 {
		return 20
	}
	return sessionCap
}
