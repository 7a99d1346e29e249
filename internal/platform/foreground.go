package platform

import (
	"context"
	"log/slog"
	"time"

	"focusgate/internal/monitor"
)

// DefaultPollInterval is how often the foreground window is sampled
const DefaultPollInterval = 500 * time.Millisecond

// Probe reports the package owning the foreground window. present is false
// when there is no interactive foreground, such as a locked workstation.
type Probe func() (pkg string, present bool, err error)

// ForegroundPoller turns foreground-window samples into monitor events
type ForegroundPoller struct {
	probe     Probe
	publisher Publisher
	interval  time.Duration
	logger    *slog.Logger

	lastPackage string
	present     bool
}

// NewForegroundPoller creates a poller for the current OS
func NewForegroundPoller(publisher Publisher, interval time.Duration, logger *slog.Logger) (*ForegroundPoller, error) {
	probe := nativeProbe()
	if probe == nil {
		return nil, ErrUnsupported
	}
	return newForegroundPoller(probe, publisher, interval, logger), nil
}

func newForegroundPoller(probe Probe, publisher Publisher, interval time.Duration, logger *slog.Logger) *ForegroundPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &ForegroundPoller{
		probe:     probe,
		publisher: publisher,
		interval:  interval,
		logger:    logger.With("component", "foreground-poller"),
		present:   true,
	}
}

// Run samples the foreground window until ctx is cancelled (blocking)
func (p *ForegroundPoller) Run(ctx context.Context) {
	p.logger.Info("starting foreground poller", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("foreground poller stopped")
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll publishes an event when the foreground app or presence changed
func (p *ForegroundPoller) poll() {
	pkg, present, err := p.probe()
	if err != nil {
		p.logger.Debug("failed to read foreground window", "error", err)
		return
	}

	now := time.Now()
	if !present {
		if p.present {
			p.present = false
			p.lastPackage = ""
			p.publisher.Publish(monitor.Event{Type: monitor.EventScreenOff, At: now})
		}
		return
	}
	if !p.present {
		p.present = true
		p.publisher.Publish(monitor.Event{Type: monitor.EventUserPresent, At: now})
	}

	if pkg == "" || pkg == p.lastPackage {
		return
	}
	p.lastPackage = pkg
	p.publisher.Publish(monitor.Event{Type: monitor.EventAppChanged, Package: pkg, At: now})
}
