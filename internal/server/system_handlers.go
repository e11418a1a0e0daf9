package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers exposes process and pipeline health.
type SystemHandlers struct {
	orchestrator ScanController
	queues       []QueueStats
	startedAt    time.Time
	log          zerolog.Logger
}

// NewSystemHandlers creates system API handlers.
func NewSystemHandlers(orchestrator ScanController, queues []QueueStats, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		orchestrator: orchestrator,
		queues:       queues,
		startedAt:    time.Now(),
		log:          log.With().Str("component", "system_handlers").Logger(),
	}
}

type queueStatus struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Running  int    `json:"running"`
	Waiting  int    `json:"waiting"`
}

type systemStatus struct {
	ScanActive    bool          `json:"scan_active"`
	Queues        []queueStatus `json:"queues"`
	CPUPercent    float64       `json:"cpu_percent"`
	MemoryPercent float64       `json:"memory_percent"`
	UptimeSeconds int64         `json:"uptime_seconds"`
}

// HandleStatus handles GET /api/system/status requests.
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	cpuAvg, memPercent := h.resourceUsage()

	status := systemStatus{
		ScanActive:    h.orchestrator.Active(),
		Queues:        make([]queueStatus, 0, len(h.queues)),
		CPUPercent:    cpuAvg,
		MemoryPercent: memPercent,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}

	for _, q := range h.queues {
		status.Queues = append(status.Queues, queueStatus{
			Name:     q.Name(),
			Capacity: q.Capacity(),
			Running:  q.Running(),
			Waiting:  q.Waiting(),
		})
	}

	respondJSON(w, http.StatusOK, status)
}

// resourceUsage samples CPU and memory usage. The short CPU sampling window
// keeps the endpoint fast enough for dashboard polling.
func (h *SystemHandlers) resourceUsage() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
