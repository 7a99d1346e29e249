//go:build !windows

package platform

import (
	"log/slog"

	"focusgate/internal/monitor"
)

// nativeProbe returns nil: there is no foreground-window source here.
// Events arrive through the control API instead.
func nativeProbe() Probe {
	return nil
}

// NewPresenter creates a presenter for the current OS
func NewPresenter(logger *slog.Logger) monitor.Presenter {
	return NewLogPresenter(logger)
}
