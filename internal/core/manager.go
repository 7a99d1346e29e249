package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ActivityInput is a completed activity ready to be written to the ledger
type ActivityInput struct {
	Kind          ActivityKind
	Points        int
	UnlockMinutes int
	ContentID     *int64
	Title         string
	Badge         string
	Category      string
	PerfectQuiz   *bool
}

// Validate validates an ActivityInput
func (in *ActivityInput) Validate() error {
	if !in.Kind.Valid() || in.Kind == KindPointsSpend {
		return ErrInvalidActivityKind
	}
	if in.Points < 0 {
		return ErrInvalidPoints
	}
	if in.UnlockMinutes < 0 {
		return ErrInvalidDuration
	}
	return nil
}

// Completion is the result of completing an activity
type Completion struct {
	ActivityID int64
	Reward     Reward
	Session    *UnlockSession // nil when the activity unlocked no time
}

// Status is a point-in-time view of progress and the current unlock session
type Status struct {
	Now       time.Time
	Progress  *UserProgress
	Session   *UnlockSession // nil when no session is active
	Covered   bool
	Remaining time.Duration
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SessionManager manages unlock sessions, the activity ledger and user progress
type SessionManager struct {
	store    LedgerStore
	clock    Clock
	timezone *time.Location
	logger   *slog.Logger
}

// NewSessionManager creates a new session manager
func NewSessionManager(store LedgerStore, clock Clock, timezone *time.Location, logger *slog.Logger) *SessionManager {
	if clock == nil {
		clock = systemClock{}
	}
	if timezone == nil {
		timezone = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		store:    store,
		clock:    clock,
		timezone: timezone,
		logger:   logger.With("component", "session-manager"),
	}
}

// GetActiveSession returns the active session, or nil when there is none
func (m *SessionManager) GetActiveSession(ctx context.Context) (*UnlockSession, error) {
	return m.store.GetActiveSession(ctx)
}

// IsCovered reports whether an active session covers now.
// The result does not depend on whether SweepExpired has run.
func (m *SessionManager) IsCovered(ctx context.Context, now time.Time) (bool, error) {
	session, err := m.store.GetActiveSession(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get active session: %w", err)
	}
	return session != nil && session.Covers(now), nil
}

// CreateSession deactivates every active session and opens a new one, atomically
func (m *SessionManager) CreateSession(ctx context.Context, activityID int64, durationMinutes int) (*UnlockSession, error) {
	if durationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	now := m.clock.Now()
	var session *UnlockSession
	err := m.store.WithinTx(ctx, func(tx LedgerTx) error {
		progress, err := tx.GetProgress(ctx)
		if err != nil {
			return fmt.Errorf("failed to get progress: %w", err)
		}
		session, err = openSession(ctx, tx, progress, activityID, durationMinutes, now)
		if err != nil {
			return err
		}
		return tx.SaveProgress(ctx, progress)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.logger.Info("unlock session opened",
		"session_id", session.ID,
		"activity_id", activityID,
		"ends_at", session.EndAt)
	return session, nil
}

// SweepExpired deactivates the active session once its end has passed.
// It is idempotent and reports whether a session was deactivated.
func (m *SessionManager) SweepExpired(ctx context.Context) (bool, error) {
	session, err := m.store.GetActiveSession(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get active session: %w", err)
	}
	if session == nil {
		return false, nil
	}

	now := m.clock.Now()
	if now.Before(session.EndAt) {
		return false, nil
	}

	if err := m.store.DeactivateSession(ctx, session.ID); err != nil {
		return false, fmt.Errorf("failed to deactivate session %d: %w", session.ID, err)
	}
	m.logger.Info("unlock session expired",
		"session_id", session.ID,
		"ended_at", session.EndAt)
	return true, nil
}

// RecordActivity appends an activity to the ledger, updates progress and, when the activity
// unlocked time, opens a new session. All three happen in one transaction.
func (m *SessionManager) RecordActivity(ctx context.Context, input ActivityInput) (int64, error) {
	record, _, err := m.recordActivity(ctx, input)
	if err != nil {
		return 0, err
	}
	return record.ID, nil
}

func (m *SessionManager) recordActivity(ctx context.Context, input ActivityInput) (*ActivityRecord, *UnlockSession, error) {
	if err := input.Validate(); err != nil {
		return nil, nil, err
	}

	now := m.clock.Now()
	record := &ActivityRecord{
		Kind:          input.Kind,
		Points:        input.Points,
		UnlockMinutes: input.UnlockMinutes,
		CompletedAt:   now,
		ContentID:     input.ContentID,
		Title:         input.Title,
	}

	var session *UnlockSession
	err := m.store.WithinTx(ctx, func(tx LedgerTx) error {
		if err := tx.InsertActivity(ctx, record); err != nil {
			return fmt.Errorf("failed to insert activity: %w", err)
		}

		progress, err := tx.GetProgress(ctx)
		if err != nil {
			return fmt.Errorf("failed to get progress: %w", err)
		}
		ApplyActivity(progress, ProgressUpdate{
			Points:      input.Points,
			At:          now,
			Badge:       input.Badge,
			Category:    input.Category,
			PerfectQuiz: input.PerfectQuiz,
		}, m.timezone)

		// A zero-minute reward is still recorded but must not end the current session
		if input.UnlockMinutes > 0 {
			session, err = openSession(ctx, tx, progress, record.ID, input.UnlockMinutes, now)
			if err != nil {
				return err
			}
		}

		return tx.SaveProgress(ctx, progress)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record activity: %w", err)
	}

	m.logger.Info("activity recorded",
		"activity_id", record.ID,
		"kind", record.Kind,
		"points", record.Points,
		"unlock_minutes", record.UnlockMinutes)
	return record, session, nil
}

// Complete computes the reward for an activity and records it
func (m *SessionManager) Complete(ctx context.Context, activity Activity) (*Completion, error) {
	reward, err := CalculateReward(activity)
	if err != nil {
		return nil, err
	}

	input := ActivityInput{
		Kind:          activity.Kind(),
		Points:        reward.Points,
		UnlockMinutes: reward.UnlockMinutes,
		Badge:         reward.Badge,
	}
	switch act := activity.(type) {
	case Reading:
		input.ContentID = act.ContentID
		input.Title = act.Title
		input.Category = act.Category
		if act.QuizTotal > 0 {
			perfect := act.PerfectQuiz()
			input.PerfectQuiz = &perfect
		}
	case PhoneCall:
		input.Title = act.Contact
	case ArcadeGame:
		input.Title = act.Title
	}

	record, session, err := m.recordActivity(ctx, input)
	if err != nil {
		return nil, err
	}
	return &Completion{ActivityID: record.ID, Reward: reward, Session: session}, nil
}

// SpendPoints redeems points for unlock time. It returns false, with no state change, when the
// balance is insufficient. Spends do not touch the streak or the activity count.
func (m *SessionManager) SpendPoints(ctx context.Context, points, durationMinutes int) (bool, error) {
	if points <= 0 {
		return false, ErrInvalidPoints
	}
	if durationMinutes <= 0 {
		return false, ErrInvalidDuration
	}

	now := m.clock.Now()
	spent := false
	var session *UnlockSession
	err := m.store.WithinTx(ctx, func(tx LedgerTx) error {
		progress, err := tx.GetProgress(ctx)
		if err != nil {
			return fmt.Errorf("failed to get progress: %w", err)
		}
		if progress.TotalPoints < points {
			return nil
		}

		progress.TotalPoints -= points
		record := &ActivityRecord{
			Kind:          KindPointsSpend,
			Points:        -points,
			UnlockMinutes: durationMinutes,
			CompletedAt:   now,
			Title:         "Redeemed points",
		}
		if err := tx.InsertActivity(ctx, record); err != nil {
			return fmt.Errorf("failed to insert spend record: %w", err)
		}
		session, err = openSession(ctx, tx, progress, record.ID, durationMinutes, now)
		if err != nil {
			return err
		}
		if err := tx.SaveProgress(ctx, progress); err != nil {
			return err
		}
		spent = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to spend points: %w", err)
	}

	if !spent {
		m.logger.Info("spend rejected, insufficient balance", "points", points)
		return false, nil
	}
	m.logger.Info("points spent",
		"points", points,
		"session_id", session.ID,
		"ends_at", session.EndAt)
	return true, nil
}

// Status returns progress and the active session as of now
func (m *SessionManager) Status(ctx context.Context) (*Status, error) {
	progress, err := m.store.GetProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}
	session, err := m.store.GetActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}

	now := m.clock.Now()
	status := &Status{Now: now, Progress: progress, Session: session}
	if session != nil {
		status.Covered = session.Covers(now)
		status.Remaining = session.Remaining(now)
	}
	return status, nil
}

// openSession must run inside a transaction: deactivating first keeps at most one active row
func openSession(ctx context.Context, tx LedgerTx, progress *UserProgress, activityID int64, minutes int, now time.Time) (*UnlockSession, error) {
	if err := tx.DeactivateAllSessions(ctx); err != nil {
		return nil, fmt.Errorf("failed to deactivate sessions: %w", err)
	}

	session := &UnlockSession{
		ActivityID: activityID,
		StartAt:    now,
		EndAt:      now.Add(time.Duration(minutes) * time.Minute),
		Active:     true,
	}
	if err := tx.InsertSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	progress.TotalUnlockSessions++
	return session, nil
}

// Ensure SessionManager implements SessionManagerInterface
var _ SessionManagerInterface = (*SessionManager)(nil)
