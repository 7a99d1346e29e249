package handlers

import (
	"log/slog"
	"net/http"

	"focusgate/internal/monitor"

	"github.com/gin-gonic/gin"
)

// EventsHandler ingests platform events for the foreground monitor
type EventsHandler struct {
	publisher EventPublisher
	logger    *slog.Logger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(publisher EventPublisher, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		publisher: publisher,
		logger:    logger,
	}
}

// PostEvent accepts an app_changed, screen_off or user_present event
// POST /v1/events
func (h *EventsHandler) PostEvent(c *gin.Context) {
	var evt monitor.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	if err := evt.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"code":  "INVALID_EVENT",
		})
		return
	}

	h.publisher.Publish(evt)
	c.JSON(http.StatusAccepted, gin.H{
		"type":    evt.Type,
		"package": evt.Package,
	})
}
