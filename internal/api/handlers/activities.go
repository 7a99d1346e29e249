package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"focusgate/internal/clock"
	"focusgate/internal/core"

	"github.com/gin-gonic/gin"
)

// ActivitiesHandler handles activity completion, point spending and ledger history
type ActivitiesHandler struct {
	history HistoryStore
	manager core.SessionManagerInterface
	clock   clock.Clock
	logger  *slog.Logger
}

// NewActivitiesHandler creates a new activities handler
func NewActivitiesHandler(history HistoryStore, manager core.SessionManagerInterface, clk clock.Clock, logger *slog.Logger) *ActivitiesHandler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &ActivitiesHandler{
		history: history,
		manager: manager,
		clock:   clk,
		logger:  logger,
	}
}

// ActivityRequest is a kind-tagged activity payload; only the fields of the kind are read
type ActivityRequest struct {
	Kind core.ActivityKind `json:"kind" binding:"required"`

	// push_ups, squats
	Reps int `json:"reps"`

	// reading_app, reading_user
	Minutes     int    `json:"minutes"`
	ContentID   *int64 `json:"content_id"`
	Category    string `json:"category"`
	QuizCorrect int    `json:"quiz_correct"`
	QuizTotal   int    `json:"quiz_total"`

	// speed_dial_call
	DurationSeconds int    `json:"duration_seconds"`
	Contact         string `json:"contact"`

	// arcade_game
	Points int `json:"points"`

	// reading_*, arcade_game
	Title string `json:"title"`

	// trace_drawing
	AverageDeviation float64 `json:"average_deviation"`
}

// Activity converts the payload to its typed activity
func (r ActivityRequest) Activity() (core.Activity, error) {
	switch r.Kind {
	case core.KindPushUps, core.KindSquats:
		if r.Reps < 0 {
			return nil, fmt.Errorf("reps must not be negative")
		}
		return core.Exercise{Squats: r.Kind == core.KindSquats, Reps: r.Reps}, nil
	case core.KindReadingApp, core.KindReadingUser:
		if r.Minutes < 0 || r.QuizCorrect < 0 || r.QuizCorrect > r.QuizTotal {
			return nil, fmt.Errorf("invalid reading payload")
		}
		return core.Reading{
			UserProvided: r.Kind == core.KindReadingUser,
			Minutes:      r.Minutes,
			ContentID:    r.ContentID,
			Title:        r.Title,
			Category:     r.Category,
			QuizCorrect:  r.QuizCorrect,
			QuizTotal:    r.QuizTotal,
		}, nil
	case core.KindSpeedDialCall:
		if r.DurationSeconds < 0 {
			return nil, fmt.Errorf("duration_seconds must not be negative")
		}
		return core.PhoneCall{
			Duration: time.Duration(r.DurationSeconds) * time.Second,
			Contact:  r.Contact,
		}, nil
	case core.KindArcadeGame:
		if r.Points < 0 {
			return nil, fmt.Errorf("points must not be negative")
		}
		return core.ArcadeGame{Points: r.Points, Title: r.Title}, nil
	case core.KindTraceDrawing:
		if r.AverageDeviation < 0 {
			return nil, fmt.Errorf("average_deviation must not be negative")
		}
		return core.TraceDrawing{AverageDeviation: r.AverageDeviation}, nil
	default:
		return nil, core.ErrUnknownActivity
	}
}

// ListActivities returns ledger entries, newest first
// GET /v1/activities?limit=
func (h *ActivitiesHandler) ListActivities(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	records, err := h.history.ListActivities(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list activities",
			"component", "api",
			"error", err,
		)
		internalError(c, "Failed to retrieve activities")
		return
	}

	response := make([]gin.H, 0, len(records))
	for _, record := range records {
		response = append(response, formatActivityResponse(record))
	}
	c.JSON(http.StatusOK, response)
}

// CompleteActivity rewards a completed activity and opens an unlock session
// POST /v1/activities
func (h *ActivitiesHandler) CompleteActivity(c *gin.Context) {
	var req ActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	activity, err := req.Activity()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"code":  "INVALID_ACTIVITY",
		})
		return
	}

	completion, err := h.manager.Complete(c.Request.Context(), activity)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
				"code":  "INVALID_ACTIVITY",
			})
			return
		}
		h.logger.Error("Failed to complete activity",
			"component", "api",
			"kind", req.Kind,
			"error", err,
		)
		internalError(c, "Failed to record activity")
		return
	}

	response := gin.H{
		"activity_id":    completion.ActivityID,
		"points":         completion.Reward.Points,
		"unlock_minutes": completion.Reward.UnlockMinutes,
		"badge":          completion.Reward.Badge,
		"session":        formatSessionResponse(completion.Session, h.clock.Now()),
	}
	c.JSON(http.StatusCreated, response)
}

// SpendPoints redeems points for unlock time
// POST /v1/spend
func (h *ActivitiesHandler) SpendPoints(c *gin.Context) {
	var req struct {
		Points  int `json:"points" binding:"required,gt=0"`
		Minutes int `json:"minutes" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	spent, err := h.manager.SpendPoints(ctx, req.Points, req.Minutes)
	if err != nil {
		if isValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
				"code":  "INVALID_SPEND",
			})
			return
		}
		h.logger.Error("Failed to spend points",
			"component", "api",
			"points", req.Points,
			"minutes", req.Minutes,
			"error", err,
		)
		internalError(c, "Failed to spend points")
		return
	}

	if !spent {
		c.JSON(http.StatusConflict, gin.H{
			"error": core.ErrInsufficientBalance.Error(),
			"code":  "INSUFFICIENT_BALANCE",
		})
		return
	}

	session, err := h.manager.GetActiveSession(ctx)
	if err != nil {
		h.logger.Error("Failed to get session after spend",
			"component", "api",
			"error", err,
		)
		internalError(c, "Points spent but session lookup failed")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"spent":   req.Points,
		"session": formatSessionResponse(session, h.clock.Now()),
	})
}

func isValidationError(err error) bool {
	return errors.Is(err, core.ErrUnknownActivity) ||
		errors.Is(err, core.ErrInvalidActivityKind) ||
		errors.Is(err, core.ErrInvalidPoints) ||
		errors.Is(err, core.ErrInvalidDuration)
}
