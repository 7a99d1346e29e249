package logging

import (
	"context"
	"log/slog"
	"time"

	"focusgate/internal/core"
)

// SessionManagerLogger wraps a SessionManager and logs all mutating method calls.
// Hot-path reads (IsCovered, GetActiveSession) log at debug level only.
type SessionManagerLogger struct {
	manager core.SessionManagerInterface
	logger  *slog.Logger
}

// NewSessionManagerLogger creates a new logging decorator for SessionManager
func NewSessionManagerLogger(manager core.SessionManagerInterface, logger *slog.Logger) core.SessionManagerInterface {
	return &SessionManagerLogger{
		manager: manager,
		logger:  logger.With("interface", "SessionManager"),
	}
}

func (l *SessionManagerLogger) GetActiveSession(ctx context.Context) (*core.UnlockSession, error) {
	session, err := l.manager.GetActiveSession(ctx)
	if err != nil {
		l.logger.Error("GetActiveSession failed", "error", err)
		return nil, err
	}
	l.logger.Debug("GetActiveSession completed", "found", session != nil)
	return session, nil
}

func (l *SessionManagerLogger) IsCovered(ctx context.Context, now time.Time) (bool, error) {
	covered, err := l.manager.IsCovered(ctx, now)
	if err != nil {
		l.logger.Error("IsCovered failed", "now", now, "error", err)
		return false, err
	}
	l.logger.Debug("IsCovered completed", "now", now, "covered", covered)
	return covered, nil
}

func (l *SessionManagerLogger) CreateSession(ctx context.Context, activityID int64, durationMinutes int) (*core.UnlockSession, error) {
	start := time.Now()
	l.logger.Info("CreateSession called",
		"activity_id", activityID,
		"duration_minutes", durationMinutes)

	session, err := l.manager.CreateSession(ctx, activityID, durationMinutes)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("CreateSession failed",
			"activity_id", activityID,
			"duration_minutes", durationMinutes,
			"duration", duration,
			"error", err)
		return nil, err
	}

	l.logger.Info("CreateSession completed",
		"activity_id", activityID,
		"session_id", session.ID,
		"ends_at", session.EndAt,
		"duration", duration)

	return session, nil
}

func (l *SessionManagerLogger) SweepExpired(ctx context.Context) (bool, error) {
	swept, err := l.manager.SweepExpired(ctx)
	if err != nil {
		l.logger.Error("SweepExpired failed", "error", err)
		return false, err
	}
	if swept {
		l.logger.Info("SweepExpired completed", "swept", swept)
	}
	return swept, nil
}

func (l *SessionManagerLogger) RecordActivity(ctx context.Context, input core.ActivityInput) (int64, error) {
	start := time.Now()
	l.logger.Info("RecordActivity called",
		"kind", input.Kind,
		"points", input.Points,
		"unlock_minutes", input.UnlockMinutes)

	id, err := l.manager.RecordActivity(ctx, input)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("RecordActivity failed",
			"kind", input.Kind,
			"duration", duration,
			"error", err)
		return 0, err
	}

	l.logger.Info("RecordActivity completed",
		"kind", input.Kind,
		"activity_id", id,
		"duration", duration)

	return id, nil
}

func (l *SessionManagerLogger) Complete(ctx context.Context, activity core.Activity) (*core.Completion, error) {
	start := time.Now()
	kind := core.ActivityKind("")
	if activity != nil {
		kind = activity.Kind()
	}
	l.logger.Info("Complete called", "kind", kind)

	completion, err := l.manager.Complete(ctx, activity)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("Complete failed",
			"kind", kind,
			"duration", duration,
			"error", err)
		return nil, err
	}

	attrs := []any{
		"kind", kind,
		"activity_id", completion.ActivityID,
		"points", completion.Reward.Points,
		"unlock_minutes", completion.Reward.UnlockMinutes,
		"duration", duration,
	}
	if completion.Session != nil {
		attrs = append(attrs, "session_id", completion.Session.ID)
	}
	l.logger.Info("Complete completed", attrs...)

	return completion, nil
}

func (l *SessionManagerLogger) SpendPoints(ctx context.Context, points, durationMinutes int) (bool, error) {
	start := time.Now()
	l.logger.Info("SpendPoints called",
		"points", points,
		"duration_minutes", durationMinutes)

	spent, err := l.manager.SpendPoints(ctx, points, durationMinutes)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("SpendPoints failed",
			"points", points,
			"duration_minutes", durationMinutes,
			"duration", duration,
			"error", err)
		return false, err
	}

	l.logger.Info("SpendPoints completed",
		"points", points,
		"spent", spent,
		"duration", duration)

	return spent, nil
}

func (l *SessionManagerLogger) Status(ctx context.Context) (*core.Status, error) {
	status, err := l.manager.Status(ctx)
	if err != nil {
		l.logger.Error("Status failed", "error", err)
		return nil, err
	}
	return status, nil
}
