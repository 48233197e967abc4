package scheme

import (
	"context"
	"sync"
	"time"
)

// Clock supplies time and timers. The default implementation delegates to
// the time package; tests substitute a fake.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancelable armed timer.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// minRefreshDelay floors the proactive refresh interval so a
// misconfigured or already expired token cannot cause a hot refresh loop.
const minRefreshDelay = time.Second

// Scheduler arms the proactive refresh timer from the current access
// token expiration.
type Scheduler struct {
	scheme *RefreshScheme

	mu    sync.Mutex
	timer Timer
}

func newScheduler(s *RefreshScheme) *Scheduler {
	return &Scheduler{scheme: s}
}

// Schedule computes the next proactive refresh delay and arms the timer,
// canceling any previously armed one. No-op when auto-refresh is disabled
// or no access token expiration is stored.
func (s *Scheduler) Schedule() {
	sch := s.scheme
	if !sch.cfg.AutoRefresh || sch.cfg.TokensDisabled {
		return
	}

	exp := sch.expirations.Access()
	if !exp.Present() {
		return
	}

	delay := refreshDelay(exp, sch.cfg.Clock.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = sch.cfg.Clock.AfterFunc(delay, s.fire)
}

// Stop cancels the armed timer, if any.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// fire runs one proactive refresh and re-arms from the refreshed
// expiration. A failed refresh clears the expiration through logout, so
// Schedule finds nothing to arm and the cycle ends.
func (s *Scheduler) fire() {
	s.scheme.coordinator.Refresh(context.Background())
	s.Schedule()
}

// refreshDelay is 75% of the remaining token lifetime, floored at
// minRefreshDelay.
func refreshDelay(exp Expiry, now time.Time) time.Duration {
	remaining := time.Duration(exp.At-now.UnixMilli()) * time.Millisecond
	delay := remaining * 3 / 4
	if delay < minRefreshDelay {
		delay = minRefreshDelay
	}
	return delay
}
