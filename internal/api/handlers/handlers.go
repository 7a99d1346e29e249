package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"focusgate/internal/core"
	"focusgate/internal/monitor"

	"github.com/gin-gonic/gin"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// AppStore is the restricted-app part of the ledger
type AppStore interface {
	UpsertRestrictedApp(ctx context.Context, app *core.RestrictedApp) error
	GetRestrictedApp(ctx context.Context, packageName string) (*core.RestrictedApp, error)
	ListRestrictedApps(ctx context.Context) ([]*core.RestrictedApp, error)
	SetBlocked(ctx context.Context, packageName string, blocked bool) error
	DeleteRestrictedApp(ctx context.Context, packageName string) error
	AddUsage(ctx context.Context, packageName string, used time.Duration, at time.Time) error
	AddExtraTime(ctx context.Context, packageName string, extra time.Duration) error
}

// HistoryStore reads the append-only ledger history
type HistoryStore interface {
	ListActivities(ctx context.Context, limit int) ([]*core.ActivityRecord, error)
	ListSessions(ctx context.Context, limit int) ([]*core.UnlockSession, error)
}

// Refresher schedules an out-of-band block list rebuild
type Refresher interface {
	TriggerRefresh()
}

// MonitorState reports the foreground monitor's state
type MonitorState interface {
	State() monitor.State
}

// BlockList exposes the cached set of blocked packages
type BlockList interface {
	Snapshot() []string
}

// EventPublisher accepts platform events for the monitor
type EventPublisher interface {
	Publish(evt monitor.Event)
}

// parseLimit reads ?limit=, defaulting when absent and capping at maxListLimit
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "limit must be a positive integer",
			"code":  "INVALID_LIMIT",
		})
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}

func internalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": message,
		"code":  "INTERNAL_ERROR",
	})
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func formatSessionResponse(session *core.UnlockSession, now time.Time) gin.H {
	if session == nil {
		return nil
	}
	return gin.H{
		"id":                session.ID,
		"activity_id":       session.ActivityID,
		"start_at":          formatTime(session.StartAt),
		"end_at":            formatTime(session.EndAt),
		"active":            session.Active,
		"covered":           session.Covers(now),
		"remaining_seconds": int64(session.Remaining(now).Seconds()),
	}
}

func formatActivityResponse(record *core.ActivityRecord) gin.H {
	response := gin.H{
		"id":             record.ID,
		"kind":           string(record.Kind),
		"points":         record.Points,
		"unlock_minutes": record.UnlockMinutes,
		"completed_at":   formatTime(record.CompletedAt),
	}
	if record.ContentID != nil {
		response["content_id"] = *record.ContentID
	}
	if record.Title != "" {
		response["title"] = record.Title
	}
	return response
}

func formatAppResponse(app *core.RestrictedApp) gin.H {
	response := gin.H{
		"package_name":        app.PackageName,
		"display_name":        app.DisplayName,
		"blocked":             app.Blocked,
		"daily_limit_min":     nil,
		"usage_today_sec":     int64(app.UsageToday.Seconds()),
		"extra_time_sec":      int64(app.ExtraTime.Seconds()),
		"remaining_today_sec": nil,
		"last_usage_at":       formatTimePtr(app.LastUsageAt),
		"warning_sent":        app.WarningSent,
		"created_at":          formatTime(app.CreatedAt),
		"updated_at":          formatTime(app.UpdatedAt),
	}
	if app.DailyLimit != nil {
		response["daily_limit_min"] = int(app.DailyLimit.Minutes())
	}
	if remaining := app.RemainingToday(); remaining != nil {
		response["remaining_today_sec"] = int64(remaining.Seconds())
	}
	return response
}

func formatProgressResponse(p *core.UserProgress, now time.Time) gin.H {
	var lastActivity any
	if p.LastActivityDate != nil {
		lastActivity = p.LastActivityDate.Format("2006-01-02")
	}
	badges := p.Badges
	if badges == nil {
		badges = []string{}
	}
	categories := p.CompletedCategories
	if categories == nil {
		categories = []string{}
	}
	return gin.H{
		"total_points":          p.TotalPoints,
		"current_streak":        p.CurrentStreak,
		"longest_streak":        p.LongestStreak,
		"last_activity_date":    lastActivity,
		"total_activities":      p.TotalActivities,
		"total_unlock_sessions": p.TotalUnlockSessions,
		"perfect_score_streak":  p.PerfectScoreStreak,
		"multiplier_active":     p.MultiplierActive(now),
		"multiplier_expires_at": formatTimePtr(p.MultiplierExpiresAt),
		"badges":                badges,
		"completed_categories":  categories,
	}
}
