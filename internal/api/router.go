package api

import (
	"log/slog"

	"focusgate/internal/api/handlers"
	"focusgate/internal/api/middleware"
	"focusgate/internal/clock"
	"focusgate/internal/core"
	"focusgate/internal/storage"

	"github.com/gin-gonic/gin"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Storage   storage.Storage
	Manager   core.SessionManagerInterface
	Refresher handlers.Refresher
	Events    handlers.EventPublisher
	Monitor   handlers.MonitorState // optional
	BlockList handlers.BlockList    // optional
	Clock     clock.Clock
	APIKey    string // empty disables authentication
	Logger    *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.ContentType())

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler(config.Storage, config.Monitor, config.Logger)
	router.GET("/healthz", healthHandler.GetHealth)

	v1 := router.Group("/v1")
	v1.Use(middleware.APIKey(config.APIKey))
	{
		statusHandler := handlers.NewStatusHandler(
			config.Manager,
			config.Monitor,
			config.BlockList,
			config.Logger,
		)
		v1.GET("/status", statusHandler.GetStatus)

		// Restricted apps
		appsHandler := handlers.NewAppsHandler(
			config.Storage,
			config.Refresher,
			config.Clock,
			config.Logger,
		)
		v1.GET("/apps", appsHandler.ListApps)
		v1.GET("/apps/:package", appsHandler.GetApp)
		v1.PUT("/apps/:package", appsHandler.PutApp)
		v1.DELETE("/apps/:package", appsHandler.DeleteApp)
		v1.POST("/apps/:package/block", appsHandler.BlockApp)
		v1.POST("/apps/:package/unblock", appsHandler.UnblockApp)
		v1.POST("/apps/:package/usage", appsHandler.RecordUsage)
		v1.POST("/apps/:package/extra-time", appsHandler.GrantExtraTime)

		// Activities and spending
		activitiesHandler := handlers.NewActivitiesHandler(
			config.Storage,
			config.Manager,
			config.Clock,
			config.Logger,
		)
		v1.GET("/activities", activitiesHandler.ListActivities)
		v1.POST("/activities", activitiesHandler.CompleteActivity)
		v1.POST("/spend", activitiesHandler.SpendPoints)

		sessionsHandler := handlers.NewSessionsHandler(
			config.Storage,
			config.Clock,
			config.Logger,
		)
		v1.GET("/sessions", sessionsHandler.ListSessions)

		// Platform events for the monitor
		eventsHandler := handlers.NewEventsHandler(
			config.Events,
			config.Logger,
		)
		v1.POST("/events", eventsHandler.PostEvent)
	}

	return router
}
