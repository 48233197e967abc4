package scheme

import (
	"sync"
	"testing"
	"time"

	"github.com/CliForge/authflow/pkg/storage"
)

// fakeTimer records its delay and callback instead of arming anything.
type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

// fakeClock is a manually driven Clock for deterministic tests.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &fakeTimer{delay: d, fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// lastTimer returns the most recently armed timer, or nil.
func (c *fakeClock) lastTimer() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

// newTestScheme builds a scheme over in-memory storage.
func newTestScheme(t *testing.T, cfg *Config) *RefreshScheme {
	t.Helper()

	s, err := New(cfg, storage.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}
