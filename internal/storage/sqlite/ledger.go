package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"focusgate/internal/core"

	"github.com/jmoiron/sqlx"
)

const dateLayout = "2006-01-02"

type activityRow struct {
	ID            int64         `db:"id"`
	Kind          string        `db:"kind"`
	Points        int           `db:"points"`
	UnlockMinutes int           `db:"unlock_minutes"`
	CompletedAt   time.Time     `db:"completed_at"`
	ContentID     sql.NullInt64 `db:"content_id"`
	Title         string        `db:"title"`
}

func (r *activityRow) toRecord() *core.ActivityRecord {
	record := &core.ActivityRecord{
		ID:            r.ID,
		Kind:          core.ActivityKind(r.Kind),
		Points:        r.Points,
		UnlockMinutes: r.UnlockMinutes,
		CompletedAt:   r.CompletedAt,
		Title:         r.Title,
	}
	if r.ContentID.Valid {
		id := r.ContentID.Int64
		record.ContentID = &id
	}
	return record
}

type sessionRow struct {
	ID         int64     `db:"id"`
	ActivityID int64     `db:"activity_id"`
	StartAt    time.Time `db:"start_at"`
	EndAt      time.Time `db:"end_at"`
	Active     bool      `db:"active"`
}

func (r *sessionRow) toSession() *core.UnlockSession {
	return &core.UnlockSession{
		ID:         r.ID,
		ActivityID: r.ActivityID,
		StartAt:    r.StartAt,
		EndAt:      r.EndAt,
		Active:     r.Active,
	}
}

type progressRow struct {
	TotalPoints         int            `db:"total_points"`
	CurrentStreak       int            `db:"current_streak"`
	LongestStreak       int            `db:"longest_streak"`
	LastActivityDate    sql.NullString `db:"last_activity_date"`
	TotalActivities     int            `db:"total_activities"`
	TotalUnlockSessions int            `db:"total_unlock_sessions"`
	PerfectScoreStreak  int            `db:"perfect_score_streak"`
	MultiplierExpiresAt sql.NullTime   `db:"multiplier_expires_at"`
	Badges              string         `db:"badges"`
	CompletedCategories string         `db:"completed_categories"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

// ListActivities returns the most recent activity records first; limit <= 0 returns all
func (s *SQLiteStorage) ListActivities(ctx context.Context, limit int) ([]*core.ActivityRecord, error) {
	var rows []activityRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, kind, points, unlock_minutes, completed_at, content_id, title
		FROM activity_records ORDER BY id DESC LIMIT ?
	`, sqlLimit(limit)); err != nil {
		return nil, err
	}

	records := make([]*core.ActivityRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRecord())
	}
	return records, nil
}

// ListSessions returns the most recent unlock sessions first; limit <= 0 returns all
func (s *SQLiteStorage) ListSessions(ctx context.Context, limit int) ([]*core.UnlockSession, error) {
	var rows []sessionRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, activity_id, start_at, end_at, active
		FROM unlock_sessions ORDER BY id DESC LIMIT ?
	`, sqlLimit(limit)); err != nil {
		return nil, err
	}

	sessions := make([]*core.UnlockSession, 0, len(rows))
	for i := range rows {
		sessions = append(sessions, rows[i].toSession())
	}
	return sessions, nil
}

// GetActiveSession returns the active unlock session, or nil when there is none
func (s *SQLiteStorage) GetActiveSession(ctx context.Context) (*core.UnlockSession, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, activity_id, start_at, end_at, active
		FROM unlock_sessions WHERE active = 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toSession(), nil
}

// DeactivateSession clears the active flag of one session; deactivating twice is a no-op
func (s *SQLiteStorage) DeactivateSession(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE unlock_sessions SET active = 0 WHERE id = ?", id)
	return err
}

// GetProgress returns the user progress singleton
func (s *SQLiteStorage) GetProgress(ctx context.Context) (*core.UserProgress, error) {
	return getProgress(ctx, s.db, s.timezone)
}

// WithinTx runs fn in a single transaction, rolling back when fn returns an error
func (s *SQLiteStorage) WithinTx(ctx context.Context, fn func(tx core.LedgerTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&ledgerTx{tx: tx, timezone: s.timezone}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ledgerTx implements core.LedgerTx on top of an open transaction
type ledgerTx struct {
	tx       *sqlx.Tx
	timezone *time.Location
}

func (t *ledgerTx) InsertActivity(ctx context.Context, record *core.ActivityRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	var contentID sql.NullInt64
	if record.ContentID != nil {
		contentID = sql.NullInt64{Int64: *record.ContentID, Valid: true}
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO activity_records (kind, points, unlock_minutes, completed_at, content_id, title)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(record.Kind), record.Points, record.UnlockMinutes, record.CompletedAt.UTC(), contentID, record.Title)
	if err != nil {
		return err
	}

	record.ID, err = result.LastInsertId()
	return err
}

func (t *ledgerTx) GetProgress(ctx context.Context) (*core.UserProgress, error) {
	return getProgress(ctx, t.tx, t.timezone)
}

func (t *ledgerTx) SaveProgress(ctx context.Context, progress *core.UserProgress) error {
	badges, err := encodeSet(progress.Badges)
	if err != nil {
		return fmt.Errorf("failed to marshal badges: %w", err)
	}
	categories, err := encodeSet(progress.CompletedCategories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}

	var lastActivity sql.NullString
	if progress.LastActivityDate != nil {
		lastActivity = sql.NullString{String: progress.LastActivityDate.In(t.timezone).Format(dateLayout), Valid: true}
	}
	var multiplier sql.NullTime
	if progress.MultiplierExpiresAt != nil {
		multiplier = sql.NullTime{Time: progress.MultiplierExpiresAt.UTC(), Valid: true}
	}

	progress.UpdatedAt = time.Now().UTC()

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO user_progress (id, total_points, current_streak, longest_streak, last_activity_date,
			total_activities, total_unlock_sessions, perfect_score_streak, multiplier_expires_at,
			badges, completed_categories, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_points = excluded.total_points,
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_activity_date = excluded.last_activity_date,
			total_activities = excluded.total_activities,
			total_unlock_sessions = excluded.total_unlock_sessions,
			perfect_score_streak = excluded.perfect_score_streak,
			multiplier_expires_at = excluded.multiplier_expires_at,
			badges = excluded.badges,
			completed_categories = excluded.completed_categories,
			updated_at = excluded.updated_at
	`, progress.TotalPoints, progress.CurrentStreak, progress.LongestStreak, lastActivity,
		progress.TotalActivities, progress.TotalUnlockSessions, progress.PerfectScoreStreak, multiplier,
		badges, categories, progress.UpdatedAt)
	return err
}

func (t *ledgerTx) DeactivateAllSessions(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE unlock_sessions SET active = 0 WHERE active = 1")
	return err
}

func (t *ledgerTx) InsertSession(ctx context.Context, session *core.UnlockSession) error {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO unlock_sessions (activity_id, start_at, end_at, active)
		VALUES (?, ?, ?, ?)
	`, session.ActivityID, session.StartAt.UTC(), session.EndAt.UTC(), session.Active)
	if err != nil {
		return err
	}

	session.ID, err = result.LastInsertId()
	return err
}

func getProgress(ctx context.Context, q sqlx.QueryerContext, timezone *time.Location) (*core.UserProgress, error) {
	var row progressRow
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT total_points, current_streak, longest_streak, last_activity_date, total_activities,
			total_unlock_sessions, perfect_score_streak, multiplier_expires_at, badges,
			completed_categories, updated_at
		FROM user_progress WHERE id = 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return &core.UserProgress{}, nil
	}
	if err != nil {
		return nil, err
	}

	progress := &core.UserProgress{
		TotalPoints:         row.TotalPoints,
		CurrentStreak:       row.CurrentStreak,
		LongestStreak:       row.LongestStreak,
		TotalActivities:     row.TotalActivities,
		TotalUnlockSessions: row.TotalUnlockSessions,
		PerfectScoreStreak:  row.PerfectScoreStreak,
		UpdatedAt:           row.UpdatedAt,
	}

	if row.LastActivityDate.Valid {
		date, err := time.ParseInLocation(dateLayout, row.LastActivityDate.String, timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last activity date: %w", err)
		}
		progress.LastActivityDate = &date
	}
	if row.MultiplierExpiresAt.Valid {
		expires := row.MultiplierExpiresAt.Time
		progress.MultiplierExpiresAt = &expires
	}
	if progress.Badges, err = decodeSet(row.Badges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal badges: %w", err)
	}
	if progress.CompletedCategories, err = decodeSet(row.CompletedCategories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
	}

	return progress, nil
}

func encodeSet(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	return string(data), err
}

func decodeSet(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, err
	}
	return values, nil
}

// sqlLimit maps "no limit" onto SQLite's negative LIMIT
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
