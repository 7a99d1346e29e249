package handlers

import (
	"log/slog"
	"net/http"

	"focusgate/internal/clock"

	"github.com/gin-gonic/gin"
)

// SessionsHandler handles unlock session history requests
type SessionsHandler struct {
	history HistoryStore
	clock   clock.Clock
	logger  *slog.Logger
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(history HistoryStore, clk clock.Clock, logger *slog.Logger) *SessionsHandler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &SessionsHandler{
		history: history,
		clock:   clk,
		logger:  logger,
	}
}

// ListSessions returns unlock sessions, newest first
// GET /v1/sessions?limit=&active=
func (h *SessionsHandler) ListSessions(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	sessions, err := h.history.ListSessions(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list sessions",
			"component", "api",
			"error", err,
		)
		internalError(c, "Failed to retrieve sessions")
		return
	}

	now := h.clock.Now()
	activeOnly := c.Query("active") == "true"

	response := make([]gin.H, 0, len(sessions))
	for _, session := range sessions {
		if activeOnly && !session.Covers(now) {
			continue
		}
		response = append(response, formatSessionResponse(session, now))
	}
	c.JSON(http.StatusOK, response)
}
