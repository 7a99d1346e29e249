package platform

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"focusgate/internal/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []monitor.Event
}

func (r *recordingPublisher) Publish(evt monitor.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingPublisher) types() []monitor.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]monitor.EventType, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

type sample struct {
	pkg     string
	present bool
	err     error
}

// scriptedProbe replays samples, repeating the last one
func scriptedProbe(samples ...sample) Probe {
	i := 0
	return func() (string, bool, error) {
		s := samples[i]
		if i < len(samples)-1 {
			i++
		}
		return s.pkg, s.present, s.err
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestForegroundPoller_PublishesChanges(t *testing.T) {
	pub := &recordingPublisher{}
	probe := scriptedProbe(
		sample{pkg: "chrome.exe", present: true},
		sample{pkg: "chrome.exe", present: true},
		sample{err: errors.New("access denied")},
		sample{pkg: "game.exe", present: true},
		sample{present: false},
		sample{present: false},
		sample{pkg: "game.exe", present: true},
	)
	p := newForegroundPoller(probe, pub, time.Second, discardLogger())

	for i := 0; i < 7; i++ {
		p.poll()
	}

	assert.Equal(t, []monitor.EventType{
		monitor.EventAppChanged, // chrome
		monitor.EventAppChanged, // game
		monitor.EventScreenOff,
		monitor.EventUserPresent,
		monitor.EventAppChanged, // game again after unlock
	}, pub.types())
	assert.Equal(t, "game.exe", pub.events[len(pub.events)-1].Package)
}

func TestForegroundPoller_RunStopsOnCancel(t *testing.T) {
	pub := &recordingPublisher{}
	p := newForegroundPoller(scriptedProbe(sample{pkg: "notepad.exe", present: true}), pub, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(pub.types()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Len(t, pub.types(), 1, "an unchanged foreground publishes once")
}

func TestLogPresenter(t *testing.T) {
	p := NewLogPresenter(discardLogger())
	assert.NoError(t, p.GoHome())
	assert.NoError(t, p.PresentBlockScreen("com.video"))
}
