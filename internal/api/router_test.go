package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"focusgate/internal/clock"
	"focusgate/internal/core"
	"focusgate/internal/monitor"
	"focusgate/internal/storage/sqlite"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls atomic.Int32
}

func (r *countingRefresher) TriggerRefresh() { r.calls.Add(1) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []monitor.Event
}

func (p *recordingPublisher) Publish(evt monitor.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

type fixedState struct{}

func (fixedState) State() monitor.State {
	return monitor.State{Running: true, Screen: monitor.ScreenOn, Checks: 3}
}

type staticBlockList []string

func (b staticBlockList) Snapshot() []string { return b }

type testServer struct {
	router    *gin.Engine
	store     *sqlite.SQLiteStorage
	refresher *countingRefresher
	events    *recordingPublisher
	clock     *clock.MockClock
}

func setupServer(t *testing.T, apiKey string) *testServer {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "focusgate.db"), time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewMockClock(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC))
	ts := &testServer{
		store:     store,
		refresher: &countingRefresher{},
		events:    &recordingPublisher{},
		clock:     clk,
	}
	ts.router = NewRouter(RouterConfig{
		Storage:   store,
		Manager:   core.NewSessionManager(store, clk, time.UTC, logger),
		Refresher: ts.refresher,
		Events:    ts.events,
		Monitor:   fixedState{},
		BlockList: staticBlockList{"com.video"},
		Clock:     clk,
		APIKey:    apiKey,
		Logger:    logger,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequestWithContext(context.Background(), method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeObject(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func decodeList(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRouter_Health(t *testing.T) {
	ts := setupServer(t, "")
	w := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeObject(t, w)
	assert.Equal(t, "UP", body["status"])
	assert.Equal(t, "UP", body["database"])
	assert.Equal(t, true, body["monitor_running"])
}

func TestRouter_HealthDatabaseDown(t *testing.T) {
	ts := setupServer(t, "")
	require.NoError(t, ts.store.Close())

	w := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "DOWN", decodeObject(t, w)["database"])
}

func TestRouter_Apps(t *testing.T) {
	ts := setupServer(t, "")

	w := ts.do(t, http.MethodPut, "/v1/apps/com.video", map[string]any{
		"display_name":        "Video",
		"daily_limit_minutes": 30,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	app := decodeObject(t, w)
	assert.Equal(t, "Video", app["display_name"])
	assert.Equal(t, true, app["blocked"])
	assert.Equal(t, float64(30), app["daily_limit_min"])
	assert.Equal(t, int32(1), ts.refresher.calls.Load())

	w = ts.do(t, http.MethodGet, "/v1/apps", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1)

	w = ts.do(t, http.MethodPost, "/v1/apps/com.video/unblock", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decodeObject(t, w)["blocked"])

	w = ts.do(t, http.MethodPost, "/v1/apps/com.video/block", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeObject(t, w)["blocked"])
	assert.Equal(t, int32(3), ts.refresher.calls.Load())

	w = ts.do(t, http.MethodPost, "/v1/apps/com.none/block", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "APP_NOT_FOUND", decodeObject(t, w)["code"])

	// Usage tracking does not change the block list
	w = ts.do(t, http.MethodPost, "/v1/apps/com.video/usage", map[string]any{"seconds": 600})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	app = decodeObject(t, w)
	assert.Equal(t, float64(600), app["usage_today_sec"])
	assert.Equal(t, float64(1200), app["remaining_today_sec"])
	assert.Equal(t, false, app["warning_sent"])
	assert.Equal(t, int32(3), ts.refresher.calls.Load())

	// Using up the limit raises the warning, extra time clears it
	w = ts.do(t, http.MethodPost, "/v1/apps/com.video/usage", map[string]any{"seconds": 1200})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	app = decodeObject(t, w)
	assert.Equal(t, float64(0), app["remaining_today_sec"])
	assert.Equal(t, true, app["warning_sent"])

	w = ts.do(t, http.MethodPost, "/v1/apps/com.video/extra-time", map[string]any{"minutes": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	app = decodeObject(t, w)
	assert.Equal(t, float64(600), app["extra_time_sec"])
	assert.Equal(t, float64(600), app["remaining_today_sec"])
	assert.Equal(t, false, app["warning_sent"])

	w = ts.do(t, http.MethodPost, "/v1/apps/com.video/extra-time", map[string]any{"minutes": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPost, "/v1/apps/com.none/extra-time", map[string]any{"minutes": 5})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPut, "/v1/apps/com.bad", map[string]any{"daily_limit_minutes": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodDelete, "/v1/apps/com.video", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodDelete, "/v1/apps/com.video", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CompleteAndSpend(t *testing.T) {
	ts := setupServer(t, "")

	w := ts.do(t, http.MethodPost, "/v1/activities", map[string]any{"kind": "push_ups", "reps": 20})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	completion := decodeObject(t, w)
	assert.Equal(t, float64(20), completion["points"])
	assert.Equal(t, float64(30), completion["unlock_minutes"])
	session := completion["session"].(map[string]any)
	assert.Equal(t, true, session["covered"])
	assert.Equal(t, float64(30*60), session["remaining_seconds"])

	// Not enough points: rejected with the balance message, nothing changes
	w = ts.do(t, http.MethodPost, "/v1/spend", map[string]any{"points": 50, "minutes": 10})
	require.Equal(t, http.StatusConflict, w.Code)
	body := decodeObject(t, w)
	assert.Equal(t, core.ErrInsufficientBalance.Error(), body["error"])
	assert.Equal(t, "INSUFFICIENT_BALANCE", body["code"])

	w = ts.do(t, http.MethodPost, "/v1/spend", map[string]any{"points": 10, "minutes": 10})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeObject(t, w)
	assert.Equal(t, true, status["covered"])
	assert.Equal(t, float64(10*60), status["remaining_seconds"])
	progress := status["progress"].(map[string]any)
	assert.Equal(t, float64(10), progress["total_points"])
	assert.Equal(t, float64(1), progress["total_activities"])
	assert.Equal(t, float64(1), progress["current_streak"])
	assert.Equal(t, "2024-05-06", progress["last_activity_date"])
	assert.Equal(t, []any{"com.video"}, status["blocked_packages"])
	assert.Equal(t, float64(3), status["monitor"].(map[string]any)["checks"])

	w = ts.do(t, http.MethodGet, "/v1/activities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	activities := decodeList(t, w)
	require.Len(t, activities, 2)
	assert.Equal(t, "points_spend", activities[0]["kind"])
	assert.Equal(t, float64(-10), activities[0]["points"])
	assert.Equal(t, "push_ups", activities[1]["kind"])

	w = ts.do(t, http.MethodGet, "/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 2)

	w = ts.do(t, http.MethodGet, "/v1/sessions?active=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeList(t, w), 1)

	// Once the session lapses nothing is covered
	ts.clock.Advance(11 * time.Minute)
	w = ts.do(t, http.MethodGet, "/v1/sessions?active=true", nil)
	assert.Len(t, decodeList(t, w), 0)
}

func TestRouter_ActivityKinds(t *testing.T) {
	ts := setupServer(t, "")

	tests := []struct {
		name    string
		body    map[string]any
		status  int
		points  float64
		minutes float64
		badge   string
	}{
		{"reading", map[string]any{"kind": "reading_user", "minutes": 15, "title": "Dune"}, http.StatusCreated, 30, 15, ""},
		{"short call", map[string]any{"kind": "speed_dial_call", "duration_seconds": 120}, http.StatusCreated, 0, 0, ""},
		{"call", map[string]any{"kind": "speed_dial_call", "duration_seconds": 300, "contact": "Mom"}, http.StatusCreated, 10, 10, core.BadgeSpeedDialCaller},
		{"trace", map[string]any{"kind": "trace_drawing", "average_deviation": 4.5}, http.StatusCreated, 5, 5, ""},
		{"arcade", map[string]any{"kind": "arcade_game", "points": 7}, http.StatusCreated, 7, 7, ""},
		{"unknown kind", map[string]any{"kind": "juggling"}, http.StatusBadRequest, 0, 0, ""},
		{"spend kind", map[string]any{"kind": "points_spend"}, http.StatusBadRequest, 0, 0, ""},
		{"negative reps", map[string]any{"kind": "squats", "reps": -1}, http.StatusBadRequest, 0, 0, ""},
		{"missing kind", map[string]any{"reps": 3}, http.StatusBadRequest, 0, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/v1/activities", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusCreated {
				return
			}
			body := decodeObject(t, w)
			assert.Equal(t, tt.points, body["points"])
			assert.Equal(t, tt.minutes, body["unlock_minutes"])
			assert.Equal(t, tt.badge, body["badge"])
		})
	}
}

func TestRouter_Events(t *testing.T) {
	ts := setupServer(t, "")

	w := ts.do(t, http.MethodPost, "/v1/events", map[string]any{"type": "app_changed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/events", map[string]any{"type": "reboot"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/events", map[string]any{"type": "app_changed", "package": "com.video"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = ts.do(t, http.MethodPost, "/v1/events", map[string]any{"type": "screen_off"})
	require.Equal(t, http.StatusAccepted, w.Code)

	ts.events.mu.Lock()
	defer ts.events.mu.Unlock()
	require.Len(t, ts.events.events, 2)
	assert.Equal(t, monitor.EventAppChanged, ts.events.events[0].Type)
	assert.Equal(t, "com.video", ts.events.events[0].Package)
	assert.Equal(t, monitor.EventScreenOff, ts.events.events[1].Type)
}

func TestRouter_InvalidLimit(t *testing.T) {
	ts := setupServer(t, "")
	w := ts.do(t, http.MethodGet, "/v1/activities?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_LIMIT", decodeObject(t, w)["code"])
}

func TestRouter_APIKey(t *testing.T) {
	ts := setupServer(t, "secret")

	w := ts.do(t, http.MethodGet, "/v1/status", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Health stays open
	w = ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
