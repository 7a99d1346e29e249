// Package client is a Go client for the focusgate control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"focusgate/internal/idgen"
)

// Client is a client for the focusgate REST API
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a new API client. apiKey may be empty when the server runs without one.
func New(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With("component", "api-client"),
	}
}

// App is a restricted app
type App struct {
	PackageName       string  `json:"package_name"`
	DisplayName       string  `json:"display_name"`
	Blocked           bool    `json:"blocked"`
	DailyLimitMinutes *int    `json:"daily_limit_min"`
	UsageTodaySec     int64   `json:"usage_today_sec"`
	ExtraTimeSec      int64   `json:"extra_time_sec"`
	RemainingTodaySec *int64  `json:"remaining_today_sec"`
	WarningSent       bool    `json:"warning_sent"`
	LastUsageAt       *string `json:"last_usage_at"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

// PutAppRequest restricts an app or updates its settings
type PutAppRequest struct {
	DisplayName       string `json:"display_name,omitempty"`
	Blocked           *bool  `json:"blocked,omitempty"`
	DailyLimitMinutes *int   `json:"daily_limit_minutes,omitempty"`
}

// Session is an unlock session
type Session struct {
	ID               int64  `json:"id"`
	ActivityID       int64  `json:"activity_id"`
	StartAt          string `json:"start_at"`
	EndAt            string `json:"end_at"`
	Active           bool   `json:"active"`
	Covered          bool   `json:"covered"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

// Activity is a ledger entry
type Activity struct {
	ID            int64  `json:"id"`
	Kind          string `json:"kind"`
	Points        int    `json:"points"`
	UnlockMinutes int    `json:"unlock_minutes"`
	CompletedAt   string `json:"completed_at"`
	ContentID     *int64 `json:"content_id,omitempty"`
	Title         string `json:"title,omitempty"`
}

// Progress is the points, streak and achievement aggregate
type Progress struct {
	TotalPoints         int      `json:"total_points"`
	CurrentStreak       int      `json:"current_streak"`
	LongestStreak       int      `json:"longest_streak"`
	LastActivityDate    *string  `json:"last_activity_date"`
	TotalActivities     int      `json:"total_activities"`
	TotalUnlockSessions int      `json:"total_unlock_sessions"`
	PerfectScoreStreak  int      `json:"perfect_score_streak"`
	MultiplierActive    bool     `json:"multiplier_active"`
	Badges              []string `json:"badges"`
	CompletedCategories []string `json:"completed_categories"`
}

// MonitorState is the foreground monitor's counters
type MonitorState struct {
	Running                 bool    `json:"running"`
	Screen                  string  `json:"screen"`
	QueueDepth              int     `json:"queue_depth"`
	Checks                  int64   `json:"checks"`
	Interventions           int64   `json:"interventions"`
	Debounced               int64   `json:"debounced"`
	Dropped                 int64   `json:"dropped"`
	Failures                int64   `json:"failures"`
	LastInterventionAt      *string `json:"last_intervention_at"`
	LastInterventionPackage string  `json:"last_intervention_package"`
}

// Status is the status report
type Status struct {
	Now              string        `json:"now"`
	Covered          bool          `json:"covered"`
	RemainingSeconds int64         `json:"remaining_seconds"`
	Session          *Session      `json:"session"`
	Progress         Progress      `json:"progress"`
	BlockedPackages  []string      `json:"blocked_packages"`
	Monitor          *MonitorState `json:"monitor"`
}

// ActivityRequest is a kind-tagged activity payload
type ActivityRequest struct {
	Kind             string  `json:"kind"`
	Reps             int     `json:"reps,omitempty"`
	Minutes          int     `json:"minutes,omitempty"`
	ContentID        *int64  `json:"content_id,omitempty"`
	Category         string  `json:"category,omitempty"`
	QuizCorrect      int     `json:"quiz_correct,omitempty"`
	QuizTotal        int     `json:"quiz_total,omitempty"`
	DurationSeconds  int     `json:"duration_seconds,omitempty"`
	Contact          string  `json:"contact,omitempty"`
	Points           int     `json:"points,omitempty"`
	Title            string  `json:"title,omitempty"`
	AverageDeviation float64 `json:"average_deviation,omitempty"`
}

// Completion is the reward for a completed activity
type Completion struct {
	ActivityID    int64    `json:"activity_id"`
	Points        int      `json:"points"`
	UnlockMinutes int      `json:"unlock_minutes"`
	Badge         string   `json:"badge"`
	Session       *Session `json:"session"`
}

// SpendResult is the session opened by a spend
type SpendResult struct {
	Spent   int      `json:"spent"`
	Session *Session `json:"session"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	Code       string `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s (%s)", e.StatusCode, e.Message, e.Code)
}

// Status retrieves the status report
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.doRequest(ctx, http.MethodGet, "/v1/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListApps retrieves all restricted apps
func (c *Client) ListApps(ctx context.Context) ([]App, error) {
	var apps []App
	if err := c.doRequest(ctx, http.MethodGet, "/v1/apps", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// PutApp restricts an app or updates its settings
func (c *Client) PutApp(ctx context.Context, pkg string, req PutAppRequest) (*App, error) {
	var app App
	if err := c.doRequest(ctx, http.MethodPut, appPath(pkg), req, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// DeleteApp removes an app from the restricted set
func (c *Client) DeleteApp(ctx context.Context, pkg string) error {
	return c.doRequest(ctx, http.MethodDelete, appPath(pkg), nil, nil)
}

// SetBlocked blocks or unblocks a restricted app
func (c *Client) SetBlocked(ctx context.Context, pkg string, blocked bool) (*App, error) {
	action := "/unblock"
	if blocked {
		action = "/block"
	}
	var app App
	if err := c.doRequest(ctx, http.MethodPost, appPath(pkg)+action, nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// AddUsage adds foreground time to an app's usage today
func (c *Client) AddUsage(ctx context.Context, pkg string, used time.Duration) (*App, error) {
	req := struct {
		Seconds int `json:"seconds"`
	}{
		Seconds: int(used.Seconds()),
	}
	var app App
	if err := c.doRequest(ctx, http.MethodPost, appPath(pkg)+"/usage", req, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// AddExtraTime grants extra time on top of an app's daily limit for today
func (c *Client) AddExtraTime(ctx context.Context, pkg string, extra time.Duration) (*App, error) {
	req := struct {
		Minutes int `json:"minutes"`
	}{
		Minutes: int(extra.Minutes()),
	}
	var app App
	if err := c.doRequest(ctx, http.MethodPost, appPath(pkg)+"/extra-time", req, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// Complete reports a completed activity
func (c *Client) Complete(ctx context.Context, req ActivityRequest) (*Completion, error) {
	var completion Completion
	if err := c.doRequest(ctx, http.MethodPost, "/v1/activities", req, &completion); err != nil {
		return nil, err
	}
	return &completion, nil
}

// Spend redeems points for unlock minutes
func (c *Client) Spend(ctx context.Context, points, minutes int) (*SpendResult, error) {
	req := struct {
		Points  int `json:"points"`
		Minutes int `json:"minutes"`
	}{
		Points:  points,
		Minutes: minutes,
	}
	var result SpendResult
	if err := c.doRequest(ctx, http.MethodPost, "/v1/spend", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListActivities retrieves ledger entries, newest first
func (c *Client) ListActivities(ctx context.Context, limit int) ([]Activity, error) {
	var activities []Activity
	if err := c.doRequest(ctx, http.MethodGet, "/v1/activities"+limitQuery(limit), nil, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// ListSessions retrieves unlock sessions, newest first
func (c *Client) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	var sessions []Session
	if err := c.doRequest(ctx, http.MethodGet, "/v1/sessions"+limitQuery(limit), nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// PublishEvent sends a platform event to the monitor
func (c *Client) PublishEvent(ctx context.Context, eventType, pkg string) error {
	req := struct {
		Type    string `json:"type"`
		Package string `json:"package,omitempty"`
	}{
		Type:    eventType,
		Package: pkg,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/events", req, nil)
}

func appPath(pkg string) string {
	return "/v1/apps/" + url.PathEscape(pkg)
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}

// doRequest performs an HTTP request to the focusgate API
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	endpoint := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", idgen.NewRequest())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("API request",
		"method", method,
		"url", endpoint,
	)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
