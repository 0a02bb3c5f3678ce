package system

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Health is a point-in-time snapshot of process and host state, served by the
// health endpoint.
type Health struct {
	Status        string    `json:"status"`
	Services      []string  `json:"services"`
	Goroutines    int       `json:"goroutines"`
	UptimeSeconds uint64    `json:"uptime_seconds"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemUsedPct    float64   `json:"mem_used_pct"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Snapshot gathers host metrics. Collection failures leave the corresponding
// fields zeroed rather than failing the health check.
func (m *Manager) Snapshot() Health {
	h := Health{
		Status:     "ok",
		Services:   m.Names(),
		Goroutines: runtime.NumGoroutine(),
		CheckedAt:  time.Now().UTC(),
	}

	if uptime, err := host.Uptime(); err == nil {
		h.UptimeSeconds = uptime
	}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		h.CPUPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		h.MemUsedPct = vm.UsedPercent
	}
	return h
}
