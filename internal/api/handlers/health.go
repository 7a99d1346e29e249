package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const pingTimeout = 2 * time.Second

// Pinger reports whether the ledger database answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness probe
type HealthHandler struct {
	db      Pinger
	monitor MonitorState
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler. monitor may be nil.
func NewHealthHandler(db Pinger, monitor MonitorState, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, monitor: monitor, logger: logger}
}

// GetHealth reports DOWN with 503 when the database does not answer.
// A stopped monitor is reported but does not fail the probe.
// GET /healthz
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	resp := gin.H{"service": "focusgate"}
	status := http.StatusOK
	resp["status"] = "UP"
	resp["database"] = "UP"
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("Health check failed", "error", err)
		status = http.StatusServiceUnavailable
		resp["status"] = "DOWN"
		resp["database"] = "DOWN"
	}
	if h.monitor != nil {
		resp["monitor_running"] = h.monitor.State().Running
	}
	c.JSON(status, resp)
}
