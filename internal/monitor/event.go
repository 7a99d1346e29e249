package monitor

import (
	"context"
	"fmt"
	"time"
)

// EventType identifies what the platform observed
type EventType string

const (
	// EventAppChanged fires when a different app comes to the foreground
	EventAppChanged EventType = "app_changed"
	// EventScreenOff fires when the display turns off
	EventScreenOff EventType = "screen_off"
	// EventUserPresent fires when the user unlocks the device
	EventUserPresent EventType = "user_present"
)

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	switch t {
	case EventAppChanged, EventScreenOff, EventUserPresent:
		return true
	}
	return false
}

// Event is a single platform observation
type Event struct {
	Type    EventType `json:"type"`
	Package string    `json:"package,omitempty"` // set for EventAppChanged
	At      time.Time `json:"at"`
}

// Validate validates an Event
func (e Event) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Type == EventAppChanged && e.Package == "" {
		return fmt.Errorf("%s event requires a package", e.Type)
	}
	return nil
}

// Source delivers platform events until ctx is cancelled or the source goes away,
// at which point the channel is closed.
type Source interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Presenter is the surface used to interrupt the user
type Presenter interface {
	// GoHome sends the user to the home/launcher surface
	GoHome() error

	// PresentBlockScreen shows the block screen for the offending package
	PresentBlockScreen(pkg string) error
}

// BlockPolicy answers block membership without I/O and can be refreshed
type BlockPolicy interface {
	ShouldBlock(pkg string) bool
	Rebuild(ctx context.Context) error
}

// Sessions is the part of the session manager the monitor consults
type Sessions interface {
	SweepExpired(ctx context.Context) (bool, error)
	IsCovered(ctx context.Context, now time.Time) (bool, error)
}
