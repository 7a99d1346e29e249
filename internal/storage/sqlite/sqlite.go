package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"focusgate/internal/core"
	"focusgate/internal/storage"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements storage.Storage using SQLite
type SQLiteStorage struct {
	db       *sqlx.DB
	timezone *time.Location
}

// New creates a new SQLite storage instance
func New(dbPath string, timezone *time.Location) (*SQLiteStorage, error) {
	if timezone == nil {
		timezone = time.UTC // Fallback to UTC
	}

	// Times are stored as UTC, converted in the app layer
	db, err := sqlx.Connect("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers; every transaction sees the previous one committed
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStorage{
		db:       db,
		timezone: timezone,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate creates the database schema
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS restricted_apps (
			package_name TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			blocked BOOLEAN NOT NULL DEFAULT 0,
			daily_limit_ms INTEGER,
			usage_today_ms INTEGER NOT NULL DEFAULT 0,
			extra_time_ms INTEGER NOT NULL DEFAULT 0,
			last_usage_at DATETIME,
			warning_sent BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS activity_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			points INTEGER NOT NULL,
			unlock_minutes INTEGER NOT NULL DEFAULT 0,
			completed_at DATETIME NOT NULL,
			content_id INTEGER,
			title TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS unlock_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			activity_id INTEGER NOT NULL,
			start_at DATETIME NOT NULL,
			end_at DATETIME NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS user_progress (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			total_points INTEGER NOT NULL DEFAULT 0,
			current_streak INTEGER NOT NULL DEFAULT 0,
			longest_streak INTEGER NOT NULL DEFAULT 0,
			last_activity_date TEXT,
			total_activities INTEGER NOT NULL DEFAULT 0,
			total_unlock_sessions INTEGER NOT NULL DEFAULT 0,
			perfect_score_streak INTEGER NOT NULL DEFAULT 0,
			multiplier_expires_at DATETIME,
			badges TEXT NOT NULL DEFAULT '[]',
			completed_categories TEXT NOT NULL DEFAULT '[]',
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_restricted_apps_blocked ON restricted_apps(blocked);
		CREATE INDEX IF NOT EXISTS idx_activity_records_completed ON activity_records(completed_at);

		-- At most one active unlock session
		CREATE UNIQUE INDEX IF NOT EXISTS idx_unlock_sessions_single_active
			ON unlock_sessions(active) WHERE active = 1;
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO user_progress (id, updated_at) VALUES (1, ?)
	`, time.Now().UTC())
	return err
}

// Ping verifies the connection is usable
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type appRow struct {
	PackageName  string        `db:"package_name"`
	DisplayName  string        `db:"display_name"`
	Blocked      bool          `db:"blocked"`
	DailyLimitMS sql.NullInt64 `db:"daily_limit_ms"`
	UsageTodayMS int64         `db:"usage_today_ms"`
	ExtraTimeMS  int64         `db:"extra_time_ms"`
	LastUsageAt  sql.NullTime  `db:"last_usage_at"`
	WarningSent  bool          `db:"warning_sent"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

func (r *appRow) toApp() *core.RestrictedApp {
	app := &core.RestrictedApp{
		PackageName: r.PackageName,
		DisplayName: r.DisplayName,
		Blocked:     r.Blocked,
		UsageToday:  time.Duration(r.UsageTodayMS) * time.Millisecond,
		ExtraTime:   time.Duration(r.ExtraTimeMS) * time.Millisecond,
		WarningSent: r.WarningSent,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.DailyLimitMS.Valid {
		limit := time.Duration(r.DailyLimitMS.Int64) * time.Millisecond
		app.DailyLimit = &limit
	}
	if r.LastUsageAt.Valid {
		at := r.LastUsageAt.Time
		app.LastUsageAt = &at
	}
	return app
}

const appColumns = `package_name, display_name, blocked, daily_limit_ms, usage_today_ms,
	extra_time_ms, last_usage_at, warning_sent, created_at, updated_at`

// UpsertRestrictedApp creates a restricted app or updates its name, block flag and limit
func (s *SQLiteStorage) UpsertRestrictedApp(ctx context.Context, app *core.RestrictedApp) error {
	if err := app.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	app.UpdatedAt = now

	var dailyLimit sql.NullInt64
	if app.DailyLimit != nil {
		dailyLimit = sql.NullInt64{Int64: app.DailyLimit.Milliseconds(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO restricted_apps (package_name, display_name, blocked, daily_limit_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(package_name) DO UPDATE SET
			display_name = excluded.display_name,
			blocked = excluded.blocked,
			daily_limit_ms = excluded.daily_limit_ms,
			updated_at = excluded.updated_at
	`, app.PackageName, app.DisplayName, app.Blocked, dailyLimit, now, now)
	if err != nil {
		return err
	}

	// created_at survives the upsert
	return s.db.GetContext(ctx, &app.CreatedAt,
		"SELECT created_at FROM restricted_apps WHERE package_name = ?", app.PackageName)
}

// GetRestrictedApp retrieves a restricted app by package name
func (s *SQLiteStorage) GetRestrictedApp(ctx context.Context, packageName string) (*core.RestrictedApp, error) {
	var row appRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+appColumns+" FROM restricted_apps WHERE package_name = ?", packageName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrAppNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toApp(), nil
}

// ListRestrictedApps retrieves all restricted apps
func (s *SQLiteStorage) ListRestrictedApps(ctx context.Context) ([]*core.RestrictedApp, error) {
	var rows []appRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT "+appColumns+" FROM restricted_apps ORDER BY package_name"); err != nil {
		return nil, err
	}

	apps := make([]*core.RestrictedApp, 0, len(rows))
	for i := range rows {
		apps = append(apps, rows[i].toApp())
	}
	return apps, nil
}

// ListBlockedPackages returns the package names of every blocked app
func (s *SQLiteStorage) ListBlockedPackages(ctx context.Context) ([]string, error) {
	packages := []string{}
	err := s.db.SelectContext(ctx, &packages,
		"SELECT package_name FROM restricted_apps WHERE blocked = 1 ORDER BY package_name")
	return packages, err
}

// SetBlocked sets the block flag of a restricted app
func (s *SQLiteStorage) SetBlocked(ctx context.Context, packageName string, blocked bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE restricted_apps SET blocked = ?, updated_at = ? WHERE package_name = ?
	`, blocked, time.Now().UTC(), packageName)
	if err != nil {
		return err
	}
	return requireRow(result, core.ErrAppNotFound)
}

// DeleteRestrictedApp deletes a restricted app
func (s *SQLiteStorage) DeleteRestrictedApp(ctx context.Context, packageName string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM restricted_apps WHERE package_name = ?", packageName)
	if err != nil {
		return err
	}
	return requireRow(result, core.ErrAppNotFound)
}

// AddUsage adds foreground time to an app's usage-today accumulator.
// warning_sent is raised once usage reaches the daily limit plus extra time.
func (s *SQLiteStorage) AddUsage(ctx context.Context, packageName string, used time.Duration, at time.Time) error {
	if used < 0 {
		return core.ErrInvalidDuration
	}

	usedMS := used.Milliseconds()
	result, err := s.db.ExecContext(ctx, `
		UPDATE restricted_apps
		SET usage_today_ms = usage_today_ms + ?,
			warning_sent = CASE
				WHEN daily_limit_ms IS NOT NULL AND usage_today_ms + ? >= daily_limit_ms + extra_time_ms THEN 1
				ELSE warning_sent
			END,
			last_usage_at = ?, updated_at = ?
		WHERE package_name = ?
	`, usedMS, usedMS, at.UTC(), time.Now().UTC(), packageName)
	if err != nil {
		return err
	}
	return requireRow(result, core.ErrAppNotFound)
}

// AddExtraTime grants extra time on top of today's limit. The warning is
// cleared when the grant leaves time remaining.
func (s *SQLiteStorage) AddExtraTime(ctx context.Context, packageName string, extra time.Duration) error {
	if extra <= 0 {
		return core.ErrInvalidDuration
	}

	extraMS := extra.Milliseconds()
	result, err := s.db.ExecContext(ctx, `
		UPDATE restricted_apps
		SET extra_time_ms = extra_time_ms + ?,
			warning_sent = CASE
				WHEN daily_limit_ms IS NOT NULL AND usage_today_ms < daily_limit_ms + extra_time_ms + ? THEN 0
				ELSE warning_sent
			END,
			updated_at = ?
		WHERE package_name = ?
	`, extraMS, extraMS, time.Now().UTC(), packageName)
	if err != nil {
		return err
	}
	return requireRow(result, core.ErrAppNotFound)
}

// ResetDailyUsage clears usage, purchased extra time and warnings for every app
func (s *SQLiteStorage) ResetDailyUsage(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE restricted_apps
		SET usage_today_ms = 0, extra_time_ms = 0, warning_sent = 0, updated_at = ?
	`, time.Now().UTC())
	return err
}

func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// Ensure SQLiteStorage implements storage.Storage
var _ storage.Storage = (*SQLiteStorage)(nil)
