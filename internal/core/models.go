package core

import (
	"errors"
	"time"
)

// ActivityKind identifies what the user did to earn (or spend) points
type ActivityKind string

const (
	KindPushUps       ActivityKind = "push_ups"
	KindSquats        ActivityKind = "squats"
	KindReadingApp    ActivityKind = "reading_app"  // reading content provided by the app
	KindReadingUser   ActivityKind = "reading_user" // user-provided reading material
	KindSpeedDialCall ActivityKind = "speed_dial_call"
	KindArcadeGame    ActivityKind = "arcade_game"
	KindTraceDrawing  ActivityKind = "trace_drawing"
	KindPointsSpend   ActivityKind = "points_spend" // ledger entry for redeemed points
)

// Valid reports whether k is a known activity kind
func (k ActivityKind) Valid() bool {
	switch k {
	case KindPushUps, KindSquats, KindReadingApp, KindReadingUser,
		KindSpeedDialCall, KindArcadeGame, KindTraceDrawing, KindPointsSpend:
		return true
	}
	return false
}

// RestrictedApp is an app the user chose to restrict, keyed by package name
type RestrictedApp struct {
	PackageName string
	DisplayName string
	Blocked     bool
	DailyLimit  *time.Duration // nil = no daily limit
	UsageToday  time.Duration
	ExtraTime   time.Duration // extra time purchased today
	LastUsageAt *time.Time
	WarningSent bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RemainingToday returns how much of the daily limit is left, or nil when the app has no limit
func (a *RestrictedApp) RemainingToday() *time.Duration {
	if a.DailyLimit == nil {
		return nil
	}
	remaining := *a.DailyLimit + a.ExtraTime - a.UsageToday
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// ActivityRecord is an append-only ledger entry for a completed activity or a points spend
type ActivityRecord struct {
	ID            int64
	Kind          ActivityKind
	Points        int // negative when points were spent
	UnlockMinutes int
	CompletedAt   time.Time
	ContentID     *int64
	Title         string
}

// UnlockSession is a time window during which blocked apps are accessible
type UnlockSession struct {
	ID         int64
	ActivityID int64
	StartAt    time.Time
	EndAt      time.Time
	Active     bool
}

// Covers reports whether the session grants access at t
func (s *UnlockSession) Covers(t time.Time) bool {
	return s.Active && t.Before(s.EndAt)
}

// Remaining returns the time left in the session at t (zero once it no longer covers t)
func (s *UnlockSession) Remaining(t time.Time) time.Duration {
	if !s.Covers(t) {
		return 0
	}
	return s.EndAt.Sub(t)
}

// UserProgress is the singleton aggregate of points, streaks and achievements
type UserProgress struct {
	TotalPoints         int
	CurrentStreak       int
	LongestStreak       int
	LastActivityDate    *time.Time // date only, midnight in the configured timezone
	TotalActivities     int
	TotalUnlockSessions int
	PerfectScoreStreak  int
	MultiplierExpiresAt *time.Time
	Badges              []string
	CompletedCategories []string
	UpdatedAt           time.Time
}

// HasBadge reports whether the badge has been earned
func (p *UserProgress) HasBadge(badge string) bool {
	return contains(p.Badges, badge)
}

// HasCompletedCategory reports whether the reading category has been completed
func (p *UserProgress) HasCompletedCategory(category string) bool {
	return contains(p.CompletedCategories, category)
}

// MultiplierActive reports whether a points multiplier is in effect at t
func (p *UserProgress) MultiplierActive(t time.Time) bool {
	return p.MultiplierExpiresAt != nil && t.Before(*p.MultiplierExpiresAt)
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

// Validation errors
var (
	ErrInvalidPackage      = errors.New("package name cannot be empty")
	ErrInvalidDuration     = errors.New("duration must be positive")
	ErrInvalidPoints       = errors.New("points must be positive")
	ErrInvalidActivityKind = errors.New("unknown activity kind")
	ErrUnknownActivity     = errors.New("unknown activity payload")
	ErrAppNotFound         = errors.New("restricted app not found")
	ErrInsufficientBalance = errors.New("insufficient points balance")
	ErrInvalidDailyLimit   = errors.New("daily limit must be positive")
)

// Validate validates a RestrictedApp
func (a *RestrictedApp) Validate() error {
	if a.PackageName == "" {
		return ErrInvalidPackage
	}
	if a.DailyLimit != nil && *a.DailyLimit <= 0 {
		return ErrInvalidDailyLimit
	}
	return nil
}

// Validate validates an ActivityRecord before it is appended to the ledger
func (r *ActivityRecord) Validate() error {
	if !r.Kind.Valid() {
		return ErrInvalidActivityKind
	}
	if r.UnlockMinutes < 0 {
		return ErrInvalidDuration
	}
	return nil
}
