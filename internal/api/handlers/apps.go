package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"focusgate/internal/clock"
	"focusgate/internal/core"

	"github.com/gin-gonic/gin"
)

// AppsHandler handles restricted-app requests
type AppsHandler struct {
	store     AppStore
	refresher Refresher
	clock     clock.Clock
	logger    *slog.Logger
}

// NewAppsHandler creates a new apps handler
func NewAppsHandler(store AppStore, refresher Refresher, clk clock.Clock, logger *slog.Logger) *AppsHandler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &AppsHandler{
		store:     store,
		refresher: refresher,
		clock:     clk,
		logger:    logger,
	}
}

// ListApps returns every restricted app
// GET /v1/apps
func (h *AppsHandler) ListApps(c *gin.Context) {
	apps, err := h.store.ListRestrictedApps(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list restricted apps",
			"component", "api",
			"error", err,
		)
		internalError(c, "Failed to retrieve apps")
		return
	}

	response := make([]gin.H, 0, len(apps))
	for _, app := range apps {
		response = append(response, formatAppResponse(app))
	}
	c.JSON(http.StatusOK, response)
}

// GetApp returns a single restricted app
// GET /v1/apps/:package
func (h *AppsHandler) GetApp(c *gin.Context) {
	h.respondWithApp(c, c.Param("package"), http.StatusOK)
}

// PutApp restricts an app or updates its settings
// PUT /v1/apps/:package
func (h *AppsHandler) PutApp(c *gin.Context) {
	packageName := c.Param("package")

	var req struct {
		DisplayName       string `json:"display_name"`
		Blocked           *bool  `json:"blocked"`
		DailyLimitMinutes *int   `json:"daily_limit_minutes"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"code":    "INVALID_REQUEST",
				"details": err.Error(),
			})
			return
		}
	}

	app := &core.RestrictedApp{
		PackageName: packageName,
		DisplayName: req.DisplayName,
		Blocked:     true,
	}
	if app.DisplayName == "" {
		app.DisplayName = packageName
	}
	if req.Blocked != nil {
		app.Blocked = *req.Blocked
	}
	if req.DailyLimitMinutes != nil {
		limit := time.Duration(*req.DailyLimitMinutes) * time.Minute
		app.DailyLimit = &limit
	}

	if err := h.store.UpsertRestrictedApp(c.Request.Context(), app); err != nil {
		if errors.Is(err, core.ErrInvalidPackage) || errors.Is(err, core.ErrInvalidDailyLimit) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
				"code":  "INVALID_APP",
			})
			return
		}
		h.logger.Error("Failed to save restricted app",
			"component", "api",
			"package", packageName,
			"error", err,
		)
		internalError(c, "Failed to save app")
		return
	}

	h.refresher.TriggerRefresh()
	h.respondWithApp(c, packageName, http.StatusOK)
}

// DeleteApp removes an app from the restricted set
// DELETE /v1/apps/:package
func (h *AppsHandler) DeleteApp(c *gin.Context) {
	packageName := c.Param("package")

	if err := h.store.DeleteRestrictedApp(c.Request.Context(), packageName); err != nil {
		if errors.Is(err, core.ErrAppNotFound) {
			appNotFound(c)
			return
		}
		h.logger.Error("Failed to delete restricted app",
			"component", "api",
			"package", packageName,
			"error", err,
		)
		internalError(c, "Failed to delete app")
		return
	}

	h.refresher.TriggerRefresh()
	c.Status(http.StatusNoContent)
}

// BlockApp sets the block flag
// POST /v1/apps/:package/block
func (h *AppsHandler) BlockApp(c *gin.Context) {
	h.setBlocked(c, true)
}

// UnblockApp clears the block flag
// POST /v1/apps/:package/unblock
func (h *AppsHandler) UnblockApp(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *AppsHandler) setBlocked(c *gin.Context, blocked bool) {
	packageName := c.Param("package")

	if err := h.store.SetBlocked(c.Request.Context(), packageName, blocked); err != nil {
		if errors.Is(err, core.ErrAppNotFound) {
			appNotFound(c)
			return
		}
		h.logger.Error("Failed to toggle block flag",
			"component", "api",
			"package", packageName,
			"blocked", blocked,
			"error", err,
		)
		internalError(c, "Failed to update app")
		return
	}

	h.refresher.TriggerRefresh()
	h.respondWithApp(c, packageName, http.StatusOK)
}

// RecordUsage adds foreground time to an app's usage-today counter
// POST /v1/apps/:package/usage
func (h *AppsHandler) RecordUsage(c *gin.Context) {
	packageName := c.Param("package")

	var req struct {
		Seconds int `json:"seconds" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	used := time.Duration(req.Seconds) * time.Second
	if err := h.store.AddUsage(c.Request.Context(), packageName, used, h.clock.Now()); err != nil {
		if errors.Is(err, core.ErrAppNotFound) {
			appNotFound(c)
			return
		}
		h.logger.Error("Failed to record usage",
			"component", "api",
			"package", packageName,
			"seconds", req.Seconds,
			"error", err,
		)
		internalError(c, "Failed to record usage")
		return
	}

	h.respondWithApp(c, packageName, http.StatusOK)
}

// GrantExtraTime adds extra minutes on top of today's daily limit
// POST /v1/apps/:package/extra-time
func (h *AppsHandler) GrantExtraTime(c *gin.Context) {
	packageName := c.Param("package")

	var req struct {
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

	extra := time.Duration(req.Minutes) * time.Minute
	if err := h.store.AddExtraTime(c.Request.Context(), packageName, extra); err != nil {
		if errors.Is(err, core.ErrAppNotFound) {
			appNotFound(c)
			return
		}
		h.logger.Error("Failed to grant extra time",
			"component", "api",
			"package", packageName,
			"minutes", req.Minutes,
			"error", err,
		)
		internalError(c, "Failed to grant extra time")
		return
	}

	h.logger.Info("Extra time granted", "component", "api", "package", packageName, "minutes", req.Minutes)
	h.respondWithApp(c, packageName, http.StatusOK)
}

func (h *AppsHandler) respondWithApp(c *gin.Context, packageName string, status int) {
	app, err := h.store.GetRestrictedApp(c.Request.Context(), packageName)
	if err != nil {
		if errors.Is(err, core.ErrAppNotFound) {
			appNotFound(c)
			return
		}
		h.logger.Error("Failed to get restricted app",
			"component", "api",
			"package", packageName,
			"error", err,
		)
		internalError(c, "Failed to retrieve app")
		return
	}
	c.JSON(status, formatAppResponse(app))
}

func appNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error": "App not found",
		"code":  "APP_NOT_FOUND",
	})
}
