package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"focusgate/internal/clock"
	"focusgate/internal/idgen"
)

const (
	// DefaultDebounce is the minimum gap between two interventions
	DefaultDebounce = 2 * time.Second

	// DefaultQueueSize bounds the checks waiting for the worker
	DefaultQueueSize = 64

	// drainTimeout bounds the checks processed after a stop
	drainTimeout = 2 * time.Second
)

// ErrAlreadyRunning is returned when Run is called twice
var ErrAlreadyRunning = errors.New("monitor already running")

// ScreenState is the monitor's view of the display
type ScreenState string

const (
	ScreenOn  ScreenState = "on"
	ScreenOff ScreenState = "off"
)

// Config holds monitor settings
type Config struct {
	SelfPackage string        // never blocked
	AllowList   []string      // input methods, system UI and the like
	Debounce    time.Duration // minimum gap between interventions
	QueueSize   int           // pending checks before events are dropped
}

// State is a point-in-time copy of the monitor's state
type State struct {
	Running                 bool
	Screen                  ScreenState
	AllowList               []string
	QueueDepth              int
	LastInterventionAt      *time.Time
	LastInterventionPackage string
	LastInterventionID      string
	Checks                  int64
	Interventions           int64
	Debounced               int64
	Dropped                 int64
	Failures                int64
}

// Monitor reacts to foreground app changes and blocks uncovered restricted apps
type Monitor struct {
	policy    BlockPolicy
	sessions  Sessions
	presenter Presenter
	clock     clock.Clock
	logger    *slog.Logger

	selfPackage string
	debounce    time.Duration
	allow       atomic.Pointer[map[string]struct{}]

	queue   chan string
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup

	mu                      sync.Mutex
	screen                  ScreenState
	lastInterventionAt      *time.Time
	lastInterventionPackage string
	lastInterventionID      string

	checks        atomic.Int64
	interventions atomic.Int64
	debounced     atomic.Int64
	dropped       atomic.Int64
	failures      atomic.Int64
}

// New creates a new monitor in the ScreenOn state
func New(cfg Config, policy BlockPolicy, sessions Sessions, presenter Presenter, clk clock.Clock, logger *slog.Logger) *Monitor {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		policy:      policy,
		sessions:    sessions,
		presenter:   presenter,
		clock:       clk,
		logger:      logger.With("component", "monitor"),
		selfPackage: cfg.SelfPackage,
		debounce:    cfg.Debounce,
		queue:       make(chan string, cfg.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
		screen:      ScreenOn,
	}
	m.SetAllowList(cfg.AllowList)
	return m
}

// SetAllowList replaces the allow-list. The monitor's own package is always allowed.
func (m *Monitor) SetAllowList(packages []string) {
	allow := make(map[string]struct{}, len(packages)+1)
	for _, pkg := range packages {
		if pkg != "" {
			allow[pkg] = struct{}{}
		}
	}
	if m.selfPackage != "" {
		allow[m.selfPackage] = struct{}{}
	}
	m.allow.Store(&allow)
	m.logger.Debug("allow-list updated", "count", len(allow))
}

func (m *Monitor) allowed(pkg string) bool {
	_, ok := (*m.allow.Load())[pkg]
	return ok
}

// Run subscribes to source and dispatches its events until ctx is cancelled,
// Stop is called, or the source closes its channel. Run returns after the
// worker has drained and exited.
func (m *Monitor) Run(ctx context.Context, source Source) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if m.ctx.Err() != nil {
		m.running.Store(false)
		return context.Canceled
	}

	events, err := source.Subscribe(m.ctx)
	if err != nil {
		m.running.Store(false)
		return fmt.Errorf("failed to subscribe to event source: %w", err)
	}

	m.logger.Info("starting foreground monitor", "debounce", m.debounce)

	m.wg.Add(1)
	go m.worker()

	defer m.wg.Wait()
	defer m.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("foreground monitor stopped (context cancelled)")
			return nil
		case <-m.ctx.Done():
			m.logger.Info("foreground monitor stopped")
			return nil
		case evt, ok := <-events:
			if !ok {
				// Permission revoked or platform source gone; lazy expiry keeps sessions correct
				m.logger.Warn("event source closed, monitor stopping")
				return nil
			}
			m.Dispatch(evt)
		}
	}
}

// Stop signals the monitor to stop. It is safe to call more than once.
func (m *Monitor) Stop() {
	m.cancel()
	m.running.Store(false)
}

// Dispatch handles one event on the caller's goroutine. It never performs store I/O.
func (m *Monitor) Dispatch(evt Event) {
	if m.ctx.Err() != nil {
		return
	}

	switch evt.Type {
	case EventScreenOff:
		m.setScreen(ScreenOff)
	case EventUserPresent:
		m.setScreen(ScreenOn)
		m.rebuildAsync()
	case EventAppChanged:
		m.onAppChanged(evt.Package)
	default:
		m.logger.Warn("ignoring unknown event", "type", evt.Type)
	}
}

func (m *Monitor) setScreen(s ScreenState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.screen != s {
		m.logger.Debug("screen state changed", "from", m.screen, "to", s)
	}
	m.screen = s
}

func (m *Monitor) rebuildAsync() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.policy.Rebuild(m.ctx); err != nil {
			m.logger.Warn("block list refresh on user present failed", "error", err)
		}
	}()
}

func (m *Monitor) onAppChanged(pkg string) {
	m.mu.Lock()
	screen := m.screen
	m.mu.Unlock()

	if screen != ScreenOn || pkg == "" || m.allowed(pkg) {
		return
	}
	if !m.policy.ShouldBlock(pkg) {
		return
	}

	select {
	case m.queue <- pkg:
	default:
		m.dropped.Add(1)
		m.logger.Warn("check queue full, dropping event", "package", pkg)
	}
}

// worker runs queued checks until the monitor stops, then drains what is left
func (m *Monitor) worker() {
	defer m.wg.Done()
	for {
		select {
		case pkg := <-m.queue:
			m.check(m.ctx, pkg)
		case <-m.ctx.Done():
			m.drain()
			return
		}
	}
}

func (m *Monitor) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case pkg := <-m.queue:
			m.check(ctx, pkg)
		default:
			return
		}
	}
}

// check sweeps expired sessions, then intervenes when no session covers now.
// A failed check is logged and never stops the monitor.
func (m *Monitor) check(ctx context.Context, pkg string) {
	defer func() {
		if r := recover(); r != nil {
			m.failures.Add(1)
			m.logger.Error("panic during block check", "package", pkg, "panic", r)
		}
	}()

	m.checks.Add(1)

	if _, err := m.sessions.SweepExpired(ctx); err != nil {
		// Coverage below does not depend on the sweep
		m.logger.Warn("failed to sweep expired sessions", "error", err)
	}

	now := m.clock.Now()
	covered, err := m.sessions.IsCovered(ctx, now)
	if err != nil {
		m.failures.Add(1)
		m.logger.Error("failed to check unlock session", "package", pkg, "error", err)
		return
	}
	if covered {
		m.logger.Debug("unlock session covers app", "package", pkg)
		return
	}

	m.intervene(pkg, now)
}

// intervene sends the user home and shows the block screen, at most once per debounce window.
// The intervention is recorded under the lock; the presenter runs after it is released.
func (m *Monitor) intervene(pkg string, now time.Time) {
	m.mu.Lock()
	if m.lastInterventionAt != nil {
		since := now.Sub(*m.lastInterventionAt)
		if since < m.debounce {
			m.mu.Unlock()
			m.debounced.Add(1)
			m.logger.Debug("intervention debounced",
				"package", pkg,
				"time_since_last", since,
				"debounce", m.debounce,
			)
			return
		}
	}

	id := idgen.NewIntervention()
	m.lastInterventionAt = &now
	m.lastInterventionPackage = pkg
	m.lastInterventionID = id
	m.mu.Unlock()

	m.interventions.Add(1)
	m.logger.Info("blocking app", "package", pkg, "intervention_id", id)

	if err := m.presenter.GoHome(); err != nil {
		m.logger.Error("failed to navigate home", "intervention_id", id, "error", err)
	}
	if err := m.presenter.PresentBlockScreen(pkg); err != nil {
		m.logger.Error("failed to present block screen", "intervention_id", id, "package", pkg, "error", err)
	}
}

// State returns a copy of the current state
func (m *Monitor) State() State {
	allow := make([]string, 0)
	for pkg := range *m.allow.Load() {
		allow = append(allow, pkg)
	}
	sort.Strings(allow)

	m.mu.Lock()
	defer m.mu.Unlock()

	s := State{
		Running:                 m.running.Load(),
		Screen:                  m.screen,
		AllowList:               allow,
		QueueDepth:              len(m.queue),
		LastInterventionPackage: m.lastInterventionPackage,
		LastInterventionID:      m.lastInterventionID,
		Checks:                  m.checks.Load(),
		Interventions:           m.interventions.Load(),
		Debounced:               m.debounced.Load(),
		Dropped:                 m.dropped.Load(),
		Failures:                m.failures.Load(),
	}
	if m.lastInterventionAt != nil {
		at := *m.lastInterventionAt
		s.LastInterventionAt = &at
	}
	return s
}
