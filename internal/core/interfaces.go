package core

import (
	"context"
	"time"
)

// SessionManagerInterface defines the contract for unlock session and reward management
type SessionManagerInterface interface {
	GetActiveSession(ctx context.Context) (*UnlockSession, error)
	IsCovered(ctx context.Context, now time.Time) (bool, error)
	CreateSession(ctx context.Context, activityID int64, durationMinutes int) (*UnlockSession, error)
	SweepExpired(ctx context.Context) (bool, error)
	RecordActivity(ctx context.Context, input ActivityInput) (int64, error)
	Complete(ctx context.Context, activity Activity) (*Completion, error)
	SpendPoints(ctx context.Context, points, durationMinutes int) (bool, error)
	Status(ctx context.Context) (*Status, error)
}

// LedgerStore is the durable store for restricted apps, activities, sessions and progress
type LedgerStore interface {
	// Restricted apps
	UpsertRestrictedApp(ctx context.Context, app *RestrictedApp) error
	GetRestrictedApp(ctx context.Context, packageName string) (*RestrictedApp, error)
	ListRestrictedApps(ctx context.Context) ([]*RestrictedApp, error)
	ListBlockedPackages(ctx context.Context) ([]string, error)
	SetBlocked(ctx context.Context, packageName string, blocked bool) error
	DeleteRestrictedApp(ctx context.Context, packageName string) error
	AddUsage(ctx context.Context, packageName string, used time.Duration, at time.Time) error
	ResetDailyUsage(ctx context.Context) error

	// Ledger history
	ListActivities(ctx context.Context, limit int) ([]*ActivityRecord, error)
	ListSessions(ctx context.Context, limit int) ([]*UnlockSession, error)

	// Sessions and progress
	GetActiveSession(ctx context.Context) (*UnlockSession, error)
	DeactivateSession(ctx context.Context, id int64) error
	GetProgress(ctx context.Context) (*UserProgress, error)

	// WithinTx runs fn in a single transaction; any error rolls everything back
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the set of operations available inside a ledger transaction
type LedgerTx interface {
	InsertActivity(ctx context.Context, record *ActivityRecord) error
	GetProgress(ctx context.Context) (*UserProgress, error)
	SaveProgress(ctx context.Context, progress *UserProgress) error
	DeactivateAllSessions(ctx context.Context) error
	InsertSession(ctx context.Context, session *UnlockSession) error
}

// Clock abstracts the current time
type Clock interface {
	Now() time.Time
}
