package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

const (
	// DefaultRefreshInterval is the periodic block list refresh
	DefaultRefreshInterval = 15 * time.Minute

	// DefaultSweepInterval is the backstop for expiring unlock sessions
	DefaultSweepInterval = 5 * time.Second

	// jobTimeout bounds a single job run
	jobTimeout = 30 * time.Second
)

// Job tags; a tag identifies a job for idempotent scheduling
const (
	TagRefresh    = "block-cache-refresh"
	TagSweep      = "session-sweep"
	TagUsageReset = "daily-usage-reset"
)

// Refresher rebuilds the block policy cache
type Refresher interface {
	Rebuild(ctx context.Context) error
}

// Sweeper expires unlock sessions
type Sweeper interface {
	SweepExpired(ctx context.Context) (bool, error)
}

// UsageResetter clears per-day usage counters
type UsageResetter interface {
	ResetDailyUsage(ctx context.Context) error
}

// Config holds scheduler settings
type Config struct {
	RefreshInterval time.Duration
	SweepInterval   time.Duration
	Timezone        *time.Location // midnight for the daily usage reset
}

// JobStatus describes one scheduled job
type JobStatus struct {
	Tag      string
	NextRun  time.Time
	LastRun  time.Time
	RunCount int
}

// Scheduler runs the periodic refresh triggers
type Scheduler struct {
	cron     *gocron.Scheduler
	cache    Refresher
	sessions Sweeper
	usage    UsageResetter
	config   Config
	logger   *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	stopOnce sync.Once
}

// NewScheduler creates a new scheduler. usage may be nil to skip the daily reset.
func NewScheduler(cache Refresher, sessions Sweeper, usage UsageResetter, config Config, logger *slog.Logger) *Scheduler {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     gocron.NewScheduler(config.Timezone),
		cache:    cache,
		sessions: sessions,
		usage:    usage,
		config:   config,
		logger:   logger.With("component", "scheduler"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Schedule registers the periodic jobs. A job whose tag is already scheduled
// is kept as is, so calling Schedule again is a no-op.
func (s *Scheduler) Schedule() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.scheduleOnce(TagRefresh, func() error {
		_, err := s.cron.Every(s.config.RefreshInterval).Tag(TagRefresh).SingletonMode().Do(s.refresh)
		return err
	}); err != nil {
		return err
	}

	if err := s.scheduleOnce(TagSweep, func() error {
		_, err := s.cron.Every(s.config.SweepInterval).Tag(TagSweep).SingletonMode().Do(s.sweep)
		return err
	}); err != nil {
		return err
	}

	if s.usage != nil {
		if err := s.scheduleOnce(TagUsageReset, func() error {
			_, err := s.cron.Every(1).Day().At("00:00").Tag(TagUsageReset).SingletonMode().Do(s.resetUsage)
			return err
		}); err != nil {
			return err
		}
	}

	return nil
}

func (s *Scheduler) scheduleOnce(tag string, register func() error) error {
	jobs, err := s.cron.FindJobsByTag(tag)
	if err == nil && len(jobs) > 0 {
		s.logger.Debug("job already scheduled", "tag", tag)
		return nil
	}
	if err != nil && !errors.Is(err, gocron.ErrJobNotFoundWithTag) {
		return fmt.Errorf("failed to look up job %s: %w", tag, err)
	}
	if err := register(); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", tag, err)
	}
	s.logger.Info("job scheduled", "tag", tag)
	return nil
}

// Start schedules the jobs and runs them in the background. Interval jobs
// fire immediately, which doubles as the boot-time refresh.
func (s *Scheduler) Start() error {
	if err := s.Schedule(); err != nil {
		return err
	}
	s.cron.StartAsync()
	s.logger.Info("Scheduler started",
		"refresh_interval", s.config.RefreshInterval,
		"sweep_interval", s.config.SweepInterval)
	return nil
}

// Stop halts the scheduler and cancels running jobs
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.cron.Stop()
		s.logger.Info("Scheduler stopped")
	})
}

// TriggerRefresh requests an out-of-band block list refresh without waiting for it
func (s *Scheduler) TriggerRefresh() {
	if s.cron.IsRunning() {
		if err := s.cron.RunByTag(TagRefresh); err == nil {
			return
		}
	}
	go s.refresh()
}

// Jobs returns the status of every scheduled job, ordered by tag
func (s *Scheduler) Jobs() []JobStatus {
	var out []JobStatus
	for _, job := range s.cron.Jobs() {
		tags := job.Tags()
		if len(tags) == 0 {
			continue
		}
		out = append(out, JobStatus{
			Tag:      tags[0],
			NextRun:  job.NextRun(),
			LastRun:  job.LastRun(),
			RunCount: job.RunCount(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, jobTimeout)
}

// refresh rebuilds the block policy cache
func (s *Scheduler) refresh() {
	ctx, cancel := s.jobContext()
	defer cancel()

	if err := s.cache.Rebuild(ctx); err != nil {
		s.logger.Error("Failed to refresh block list", "error", err)
		return
	}
	s.logger.Debug("Block list refreshed")
}

// sweep deactivates an expired unlock session
func (s *Scheduler) sweep() {
	ctx, cancel := s.jobContext()
	defer cancel()

	swept, err := s.sessions.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("Failed to sweep expired sessions", "error", err)
		return
	}
	if swept {
		s.logger.Info("Expired unlock session swept")
	}
}

// resetUsage clears usage counters at local midnight
func (s *Scheduler) resetUsage() {
	ctx, cancel := s.jobContext()
	defer cancel()

	if err := s.usage.ResetDailyUsage(ctx); err != nil {
		s.logger.Error("Failed to reset daily usage", "error", err)
		return
	}
	s.logger.Info("Daily usage reset")
}
