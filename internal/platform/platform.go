// Package platform adapts the host OS to the monitor: a foreground-window
// event source and the surface used to block the user.
package platform

import (
	"errors"
	"log/slog"

	"focusgate/internal/monitor"
)

// ErrUnsupported is returned for operations the current OS cannot perform
var ErrUnsupported = errors.New("operation not supported on this platform")

// Publisher receives events produced by a platform source
type Publisher interface {
	Publish(evt monitor.Event)
}

// LogPresenter implements monitor.Presenter by logging. It is used where no
// native block surface exists and in headless deployments.
type LogPresenter struct {
	logger *slog.Logger
}

// NewLogPresenter creates a new log-only presenter
func NewLogPresenter(logger *slog.Logger) *LogPresenter {
	return &LogPresenter{
		logger: logger.With("component", "presenter-log"),
	}
}

// GoHome logs the navigation
func (p *LogPresenter) GoHome() error {
	p.logger.Warn("GO_HOME", "action", "home")
	return nil
}

// PresentBlockScreen logs the block screen
func (p *LogPresenter) PresentBlockScreen(pkg string) error {
	p.logger.Warn("BLOCK_SCREEN",
		"action", "block",
		"package", pkg,
	)
	return nil
}

// Ensure LogPresenter implements monitor.Presenter
var _ monitor.Presenter = (*LogPresenter)(nil)
