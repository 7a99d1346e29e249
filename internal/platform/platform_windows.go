//go:build windows

package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"focusgate/internal/monitor"

	"golang.org/x/sys/windows"
)

var errNoForeground = errors.New("no foreground window")

// nativeProbe reads the executable name of the foreground window's process
func nativeProbe() Probe {
	return foregroundExecutable
}

func foregroundExecutable() (string, bool, error) {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		// Secure desktop (lock screen, UAC) has no foreground window we can see
		return "", false, nil
	}

	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil {
		return "", true, fmt.Errorf("GetWindowThreadProcessId: %w", err)
	}
	if pid == 0 {
		return "", true, errNoForeground
	}

	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", true, fmt.Errorf("OpenProcess %d: %w", pid, err)
	}
	defer windows.CloseHandle(handle)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(handle, 0, &buf[0], &size); err != nil {
		return "", true, fmt.Errorf("QueryFullProcessImageName %d: %w", pid, err)
	}

	return filepath.Base(windows.UTF16ToString(buf[:size])), true, nil
}

// WindowsPresenter implements monitor.Presenter with user32 calls
type WindowsPresenter struct {
	logger *slog.Logger
}

// NewWindowsPresenter creates a new Windows presenter
func NewWindowsPresenter(logger *slog.Logger) *WindowsPresenter {
	return &WindowsPresenter{
		logger: logger.With("component", "presenter-windows"),
	}
}

// GoHome minimizes the foreground window
func (p *WindowsPresenter) GoHome() error {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return errNoForeground
	}
	windows.ShowWindow(hwnd, windows.SW_MINIMIZE)
	return nil
}

// PresentBlockScreen shows a topmost message box naming the blocked app.
// The box is modal to its own goroutine so the monitor worker is not held.
func (p *WindowsPresenter) PresentBlockScreen(pkg string) error {
	text, err := windows.UTF16PtrFromString(fmt.Sprintf("%s is blocked.\n\nComplete an activity to unlock it.", pkg))
	if err != nil {
		return err
	}
	caption, err := windows.UTF16PtrFromString("focusgate")
	if err != nil {
		return err
	}

	go func() {
		if _, err := windows.MessageBox(0, text, caption, windows.MB_OK|windows.MB_ICONWARNING|windows.MB_TOPMOST|windows.MB_SETFOREGROUND); err != nil {
			p.logger.Error("failed to show block screen", "package", pkg, "error", err)
		}
	}()
	return nil
}

// NewPresenter creates a presenter for the current OS
func NewPresenter(logger *slog.Logger) monitor.Presenter {
	return NewWindowsPresenter(logger)
}

// Ensure WindowsPresenter implements monitor.Presenter
var _ monitor.Presenter = (*WindowsPresenter)(nil)
