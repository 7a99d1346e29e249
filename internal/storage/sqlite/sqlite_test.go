package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"focusgate/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	storage, err := New(dbPath, time.UTC)
	require.NoError(t, err)

	t.Cleanup(func() {
		storage.Close()
	})

	return storage
}

func TestSQLiteStorage_RestrictedApps(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	limit := 45 * time.Minute
	app := &core.RestrictedApp{
		PackageName: "com.example.video",
		DisplayName: "Video",
		Blocked:     true,
		DailyLimit:  &limit,
	}
	require.NoError(t, storage.UpsertRestrictedApp(ctx, app))
	assert.False(t, app.CreatedAt.IsZero())

	// Test GetRestrictedApp
	retrieved, err := storage.GetRestrictedApp(ctx, "com.example.video")
	require.NoError(t, err)
	assert.Equal(t, "Video", retrieved.DisplayName)
	assert.True(t, retrieved.Blocked)
	require.NotNil(t, retrieved.DailyLimit)
	assert.Equal(t, limit, *retrieved.DailyLimit)

	// Test GetRestrictedApp - not found
	_, err = storage.GetRestrictedApp(ctx, "com.example.none")
	assert.ErrorIs(t, err, core.ErrAppNotFound)

	// Test upsert keeps the row and creation time
	app.DisplayName = "Video Player"
	app.DailyLimit = nil
	require.NoError(t, storage.UpsertRestrictedApp(ctx, app))
	retrieved, err = storage.GetRestrictedApp(ctx, "com.example.video")
	require.NoError(t, err)
	assert.Equal(t, "Video Player", retrieved.DisplayName)
	assert.Nil(t, retrieved.DailyLimit)

	// Test validation
	err = storage.UpsertRestrictedApp(ctx, &core.RestrictedApp{})
	assert.ErrorIs(t, err, core.ErrInvalidPackage)

	// Test ListRestrictedApps
	require.NoError(t, storage.UpsertRestrictedApp(ctx, &core.RestrictedApp{PackageName: "com.example.chat"}))
	apps, err := storage.ListRestrictedApps(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "com.example.chat", apps[0].PackageName)

	// Test DeleteRestrictedApp
	require.NoError(t, storage.DeleteRestrictedApp(ctx, "com.example.chat"))
	assert.ErrorIs(t, storage.DeleteRestrictedApp(ctx, "com.example.chat"), core.ErrAppNotFound)
}

func TestSQLiteStorage_BlockedPackages(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	packages, err := storage.ListBlockedPackages(ctx)
	require.NoError(t, err)
	assert.Empty(t, packages)

	for _, pkg := range []string{"com.b", "com.a", "com.c"} {
		require.NoError(t, storage.UpsertRestrictedApp(ctx, &core.RestrictedApp{PackageName: pkg, Blocked: true}))
	}
	require.NoError(t, storage.SetBlocked(ctx, "com.c", false))

	packages, err = storage.ListBlockedPackages(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"com.a", "com.b"}, packages)

	assert.ErrorIs(t, storage.SetBlocked(ctx, "com.none", true), core.ErrAppNotFound)
}

func TestSQLiteStorage_Usage(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	limit := 30 * time.Minute
	require.NoError(t, storage.UpsertRestrictedApp(ctx, &core.RestrictedApp{PackageName: "com.example.game", DailyLimit: &limit}))

	at := time.Date(2024, 5, 6, 18, 0, 0, 0, time.UTC)
	require.NoError(t, storage.AddUsage(ctx, "com.example.game", 10*time.Minute, at))
	require.NoError(t, storage.AddUsage(ctx, "com.example.game", 5*time.Minute, at.Add(time.Hour)))

	app, err := storage.GetRestrictedApp(ctx, "com.example.game")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, app.UsageToday)
	require.NotNil(t, app.LastUsageAt)
	assert.True(t, app.LastUsageAt.Equal(at.Add(time.Hour)))
	assert.Equal(t, 15*time.Minute, *app.RemainingToday())

	assert.ErrorIs(t, storage.AddUsage(ctx, "com.none", time.Minute, at), core.ErrAppNotFound)
	assert.ErrorIs(t, storage.AddUsage(ctx, "com.example.game", -time.Minute, at), core.ErrInvalidDuration)

	require.NoError(t, storage.ResetDailyUsage(ctx))
	app, err = storage.GetRestrictedApp(ctx, "com.example.game")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), app.UsageToday)
}

func TestSQLiteStorage_UsageLimitWarningAndExtraTime(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	limit := 30 * time.Minute
	require.NoError(t, storage.UpsertRestrictedApp(ctx, &core.RestrictedApp{PackageName: "com.example.game", DailyLimit: &limit}))
	require.NoError(t, storage.UpsertRestrictedApp(ctx, &core.RestrictedApp{PackageName: "com.example.notes"}))
	at := time.Date(2024, 5, 6, 18, 0, 0, 0, time.UTC)

	require.NoError(t, storage.AddUsage(ctx, "com.example.game", 29*time.Minute, at))
	app, err := storage.GetRestrictedApp(ctx, "com.example.game")
	require.NoError(t, err)
	assert.False(t, app.WarningSent, "time still remains")

	require.NoError(t, storage.AddUsage(ctx, "com.example.game", time.Minute, at))
	app, err = storage.GetRestrictedApp(ctx, "com.example.game")
	require.NoError(t, err)
	assert.True(t, app.WarningSent, "usage reached the daily limit")
	assert.Equal(t, time.Duration(0), *app.RemainingToday())

	// Extra time reopens the day and clears the warning
	require.NoError(t, storage.AddExtraTime(ctx, "com.example.game", 10*time.Minute))
	app, err = storage.GetRestrictedApp(ctx, "com.example.game")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, app.ExtraTime)
	assert.False(t, app.WarningSent)
	assert.Equal(t, 10*time.Minute, *app.RemainingToday())

	require.NoError(t, storage.AddUsage(ctx, "com.example.game", 10*time.Minute, at))
	app, err = storage.GetRestrictedApp(ctx, "com.example.game")
	require.NoError(t, err)
	assert.True(t, app.WarningSent, "usage reached limit plus extra time")

	// Apps without a limit never warn
	require.NoError(t, storage.AddUsage(ctx, "com.example.notes", 24*time.Hour, at))
	app, err = storage.GetRestrictedApp(ctx, "com.example.notes")
	require.NoError(t, err)
	assert.False(t, app.WarningSent)

	assert.ErrorIs(t, storage.AddExtraTime(ctx, "com.none", time.Minute), core.ErrAppNotFound)
	assert.ErrorIs(t, storage.AddExtraTime(ctx, "com.example.game", 0), core.ErrInvalidDuration)

	require.NoError(t, storage.ResetDailyUsage(ctx))
	app, err = storage.GetRestrictedApp(ctx, "com.example.game")
	require.NoError(t, err)
	assert.False(t, app.WarningSent)
	assert.Equal(t, time.Duration(0), app.ExtraTime)
}

func TestSQLiteStorage_Progress(t *testing.T) {
	tz := time.FixedZone("UTC+3", 3*60*60)
	storage, err := New(filepath.Join(t.TempDir(), "progress.db"), tz)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	ctx := context.Background()

	// Fresh database: zero-value singleton
	progress, err := storage.GetProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, progress.TotalPoints)
	assert.Nil(t, progress.LastActivityDate)
	assert.Empty(t, progress.Badges)

	lastDay := time.Date(2024, 5, 7, 0, 0, 0, 0, tz)
	expires := time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)
	err = storage.WithinTx(ctx, func(tx core.LedgerTx) error {
		return tx.SaveProgress(ctx, &core.UserProgress{
			TotalPoints:         120,
			CurrentStreak:       3,
			LongestStreak:       5,
			LastActivityDate:    &lastDay,
			TotalActivities:     9,
			TotalUnlockSessions: 7,
			PerfectScoreStreak:  2,
			MultiplierExpiresAt: &expires,
			Badges:              []string{core.BadgeSpeedDialCaller},
			CompletedCategories: []string{"science", "history"},
		})
	})
	require.NoError(t, err)

	progress, err = storage.GetProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120, progress.TotalPoints)
	assert.Equal(t, 3, progress.CurrentStreak)
	assert.Equal(t, 5, progress.LongestStreak)
	assert.Equal(t, 9, progress.TotalActivities)
	assert.Equal(t, 7, progress.TotalUnlockSessions)
	assert.Equal(t, 2, progress.PerfectScoreStreak)
	require.NotNil(t, progress.LastActivityDate)
	assert.True(t, progress.LastActivityDate.Equal(lastDay), "date survives in the configured timezone")
	require.NotNil(t, progress.MultiplierExpiresAt)
	assert.True(t, progress.MultiplierExpiresAt.Equal(expires))
	assert.Equal(t, []string{core.BadgeSpeedDialCaller}, progress.Badges)
	assert.Equal(t, []string{"science", "history"}, progress.CompletedCategories)
}

func TestSQLiteStorage_WithinTxRollback(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := storage.WithinTx(ctx, func(tx core.LedgerTx) error {
		record := &core.ActivityRecord{Kind: core.KindPushUps, Points: 10, UnlockMinutes: 15, CompletedAt: time.Now()}
		require.NoError(t, tx.InsertActivity(ctx, record))
		require.NoError(t, tx.InsertSession(ctx, &core.UnlockSession{
			ActivityID: record.ID, StartAt: time.Now(), EndAt: time.Now().Add(15 * time.Minute), Active: true,
		}))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	activities, err := storage.ListActivities(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, activities)

	session, err := storage.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSQLiteStorage_SingleActiveIndex(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	err := storage.WithinTx(ctx, func(tx core.LedgerTx) error {
		if err := tx.InsertSession(ctx, &core.UnlockSession{ActivityID: 1, StartAt: now, EndAt: now.Add(time.Minute), Active: true}); err != nil {
			return err
		}
		// Second active row without deactivating first
		return tx.InsertSession(ctx, &core.UnlockSession{ActivityID: 2, StartAt: now, EndAt: now.Add(time.Minute), Active: true})
	})
	assert.Error(t, err, "the database rejects a second active session")

	session, err := storage.GetActiveSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSQLiteStorage_SessionsAndActivities(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	manager := core.NewSessionManager(storage, nil, time.UTC, nil)

	contentID := int64(7)
	completion, err := manager.Complete(ctx, core.Reading{Minutes: 5, ContentID: &contentID, Title: "Volcanoes"})
	require.NoError(t, err)
	require.NotNil(t, completion.Session)

	active, err := storage.GetActiveSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, completion.Session.ID, active.ID)
	assert.Equal(t, completion.ActivityID, active.ActivityID)
	assert.True(t, active.EndAt.Equal(completion.Session.EndAt))

	activities, err := storage.ListActivities(ctx, 10)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, core.KindReadingApp, activities[0].Kind)
	assert.Equal(t, 10, activities[0].Points)
	require.NotNil(t, activities[0].ContentID)
	assert.Equal(t, contentID, *activities[0].ContentID)

	require.NoError(t, storage.DeactivateSession(ctx, active.ID))
	require.NoError(t, storage.DeactivateSession(ctx, active.ID))

	sessions, err := storage.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].Active)
}

func TestSQLiteStorage_ConcurrentCreateSession(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	manager := core.NewSessionManager(storage, nil, time.UTC, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := manager.CreateSession(ctx, int64(i), 5)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sessions, err := storage.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 20)

	active := 0
	for _, s := range sessions {
		if s.Active {
			active++
		}
	}
	assert.Equal(t, 1, active)

	progress, err := storage.GetProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, progress.TotalUnlockSessions)
}

func TestSQLiteStorage_SpendRollsBackAsUnit(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	manager := core.NewSessionManager(storage, nil, time.UTC, nil)

	_, err := manager.RecordActivity(ctx, core.ActivityInput{Kind: core.KindPushUps, Points: 50, UnlockMinutes: 1})
	require.NoError(t, err)

	ok, err := manager.SpendPoints(ctx, 100, 15)
	require.NoError(t, err)
	assert.False(t, ok)

	progress, err := storage.GetProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, progress.TotalPoints)

	activities, err := storage.ListActivities(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, activities, 1)
}
