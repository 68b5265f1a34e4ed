package handler

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// SystemHandler reports agent health to the shell and to support staff.
type SystemHandler struct {
	kiosk     *service.KioskService
	hub       *ws.Hub
	startTime time.Time
}

func NewSystemHandler(kiosk *service.KioskService, hub *ws.Hub) *SystemHandler {
	return &SystemHandler{
		kiosk:     kiosk,
		hub:       hub,
		startTime: time.Now(),
	}
}

type healthStatus struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Shells     int    `json:"shells"`
	Session    string `json:"session"`
	Recorder   string `json:"recorder,omitempty"`
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_bytes"`
	GoVersion  string `json:"go_version"`
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := healthStatus{
		Status:     "ok",
		Uptime:     formatDuration(time.Since(h.startTime)),
		Shells:     h.hub.Clients(),
		Session:    "NONE",
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  mem.HeapAlloc,
		GoVersion:  runtime.Version(),
	}
	if v, err := h.kiosk.View(); err == nil {
		st.Session = string(v.State)
		st.Recorder = string(v.Recorder)
	}

	response.Success(c, http.StatusOK, st)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
