package scheme

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaitTimeout is returned by Coordinator.Wait when an in-flight
// refresh does not settle within the configured bound.
var ErrWaitTimeout = errors.New("timed out waiting for token refresh")

// Outcome reports which branch a refresh took.
type Outcome int

const (
	// OutcomeSkipped means no refresh was attempted: the endpoint is
	// disabled, no refresh token is available, or a refresh was already
	// in flight.
	OutcomeSkipped Outcome = iota
	// OutcomeRefreshed means the token pair was refreshed.
	OutcomeRefreshed
	// OutcomeLoggedOut means the refresh failed and the scheme fell back
	// to a clean logged-out state.
	OutcomeLoggedOut
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeLoggedOut:
		return "logged-out"
	default:
		return "skipped"
	}
}

// Coordinator is the single-flight refresh state machine. At most one
// refresh is in flight per scheme instance; the refreshing state is set
// and cleared under the coordinator's lock so a second caller can never
// observe idle while a refresh is logically underway. Completion is
// broadcast by closing the done channel, waking all waiters at once.
type Coordinator struct {
	scheme *RefreshScheme

	mu         sync.Mutex
	refreshing bool
	changed    bool
	done       chan struct{}
}

func newCoordinator(s *RefreshScheme) *Coordinator {
	return &Coordinator{scheme: s}
}

// Refreshing reports whether a refresh is currently in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Wait blocks until the in-flight refresh settles, the timeout elapses,
// or ctx is done. Returns immediately when no refresh is in flight.
func (c *Coordinator) Wait(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	if !c.refreshing {
		c.mu.Unlock()
		return nil
	}
	done := c.done
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrWaitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh exchanges the refresh token for a new token pair. It no-ops
// when the refresh endpoint is disabled, tokens are disabled, no refresh
// token is available, or a refresh is already in flight. A failed call
// falls back to a local logout instead of surfacing the error; the
// returned Outcome tells callers which branch fired.
func (c *Coordinator) Refresh(ctx context.Context) Outcome {
	s := c.scheme

	if s.cfg.Endpoints.Refresh == nil || s.cfg.TokensDisabled {
		return OutcomeSkipped
	}

	if !c.begin() {
		return OutcomeSkipped
	}
	defer c.end()

	if _, err := s.tokens.SyncToken(ctx); err != nil {
		s.log.WithError(err).Warn("failed to sync access token before refresh")
	}
	refresh, err := s.tokens.SyncRefreshToken(ctx)
	if err != nil {
		s.log.WithError(err).Warn("failed to sync refresh token before refresh")
	}
	if !refresh.Present() {
		return OutcomeSkipped
	}

	body := map[string]interface{}{}
	if field := s.cfg.RefreshTokenDataField; field != "" {
		body[field] = refresh.Value
	}
	if field := s.cfg.ClientIDDataField; field != "" {
		if id := s.tokens.ClientID(); id.Present() {
			body[field] = id.Value
		}
	}
	if field := s.cfg.GrantTypeDataField; field != "" && s.cfg.GrantTypeValue != "" {
		body[field] = s.cfg.GrantTypeValue
	}

	payload, err := s.doJSON(ctx, s.cfg.Endpoints.Refresh, body)
	if err == nil {
		err = s.updateTokens(ctx, payload)
	}
	if err != nil {
		s.log.WithError(err).Warn("token refresh failed, falling back to logged-out state")
		s.logoutLocally(ctx)
		return OutcomeLoggedOut
	}

	s.log.Debug("token refresh succeeded")
	return OutcomeRefreshed
}

// begin atomically transitions idle -> refreshing. Returns false when a
// refresh is already in flight.
func (c *Coordinator) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshing {
		return false
	}
	c.refreshing = true
	c.done = make(chan struct{})
	return true
}

// end transitions refreshing -> idle and broadcasts completion.
// Idempotent: a logout during the refresh may already have reset the state.
func (c *Coordinator) end() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshing {
		c.refreshing = false
		close(c.done)
	}
}

// reset clears all coordinator state, broadcasting to any waiters.
// Called on logout.
func (c *Coordinator) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.changed = false
	if c.refreshing {
		c.refreshing = false
		close(c.done)
	}
}

// refreshTokenChanged reports whether the refresh token value differed
// from the previously stored one on the last token update.
func (c *Coordinator) refreshTokenChanged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

func (c *Coordinator) setRefreshTokenChanged(changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed = changed
}
