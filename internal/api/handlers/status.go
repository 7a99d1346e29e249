package handlers

import (
	"log/slog"
	"net/http"

	"focusgate/internal/core"

	"github.com/gin-gonic/gin"
)

// StatusHandler reports progress, the unlock session and the monitor state
type StatusHandler struct {
	manager core.SessionManagerInterface
	monitor MonitorState // optional
	blocked BlockList    // optional
	logger  *slog.Logger
}

// NewStatusHandler creates a new status handler. monitor and blocked may be nil.
func NewStatusHandler(manager core.SessionManagerInterface, monitor MonitorState, blocked BlockList, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		manager: manager,
		monitor: monitor,
		blocked: blocked,
		logger:  logger,
	}
}

// GetStatus returns a point-in-time status report
// GET /v1/status
func (h *StatusHandler) GetStatus(c *gin.Context) {
	status, err := h.manager.Status(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get status",
			"component", "api",
			"error", err,
		)
		internalError(c, "Failed to retrieve status")
		return
	}

	response := gin.H{
		"now":               formatTime(status.Now),
		"covered":           status.Covered,
		"remaining_seconds": int64(status.Remaining.Seconds()),
		"session":           formatSessionResponse(status.Session, status.Now),
		"progress":          formatProgressResponse(status.Progress, status.Now),
	}

	if h.blocked != nil {
		response["blocked_packages"] = h.blocked.Snapshot()
	}

	if h.monitor != nil {
		state := h.monitor.State()
		response["monitor"] = gin.H{
			"running":                   state.Running,
			"screen":                    string(state.Screen),
			"allow_list":                state.AllowList,
			"queue_depth":               state.QueueDepth,
			"checks":                    state.Checks,
			"interventions":             state.Interventions,
			"debounced":                 state.Debounced,
			"dropped":                   state.Dropped,
			"failures":                  state.Failures,
			"last_intervention_at":      formatTimePtr(state.LastInterventionAt),
			"last_intervention_package": state.LastInterventionPackage,
			"last_intervention_id":      state.LastInterventionID,
		}
	}

	c.JSON(http.StatusOK, response)
}
