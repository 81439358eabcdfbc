package serve

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/joshlzx/starswap/internal/browser"
)

func (s *Server) registerHealthRoutes(r chi.Router) {
	r.Get("/health", s.handleHealthV1)
	r.Get("/period", s.handlePeriodV1)
}

// healthSystem captures host resource usage for the health report.
type healthSystem struct {
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	CPUPercent        float64 `json:"cpu_percent"`
	Goroutines        int     `json:"goroutines"`
}

type healthReport struct {
	Status        string             `json:"status"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	ActiveSwaps   int                `json:"active_swaps"`
	Pool          browser.PoolStats  `json:"pool"`
	Chrome        browser.ChromeInfo `json:"chrome"`
	System        healthSystem       `json:"system"`
}

// handleHealthV1 reports service liveness and host resource usage.
// GET /api/v1/health
func (s *Server) handleHealthV1(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())

	report := healthReport{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ActiveSwaps:   s.manager.Active(),
		Pool:          s.pool.Stats(),
		Chrome:        s.chrome,
		System:        healthSystem{Goroutines: runtime.NumGoroutine()},
	}
	if !s.chrome.Found {
		report.Status = "degraded"
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		report.System.MemoryUsedPercent = vm.UsedPercent
	}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		report.System.CPUPercent = pcts[0]
	}

	writeSuccessResponse(w, http.StatusOK, report, reqID)
}

// periodWindow describes the add-drop window the service currently targets.
type periodWindow struct {
	Active   bool   `json:"active"`
	Semester string `json:"semester"`
	Year     int    `json:"year"`
}

// nextPeriod computes the current or upcoming add-drop window. Add-drop runs
// in January and August; outside those months the next window is reported.
func nextPeriod(now time.Time) periodWindow {
	switch {
	case now.Month() == time.January:
		return periodWindow{Active: true, Semester: "January", Year: now.Year()}
	case now.Month() == time.August:
		return periodWindow{Active: true, Semester: "August", Year: now.Year()}
	case now.Month() < time.August:
		return periodWindow{Semester: "August", Year: now.Year()}
	default:
		return periodWindow{Semester: "January", Year: now.Year() + 1}
	}
}

// handlePeriodV1 reports whether an add-drop window is open and when the
// next one begins.
// GET /api/v1/period
func (s *Server) handlePeriodV1(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())

	p := nextPeriod(s.now())
	data := map[string]any{
		"active":   p.Active,
		"semester": p.Semester,
		"year":     p.Year,
	}
	if !p.Active {
		data["message"] = fmt.Sprintf("Add-drop is closed. The next window is %s %d.", p.Semester, p.Year)
	}
	writeSuccessResponse(w, http.StatusOK, data, reqID)
}
