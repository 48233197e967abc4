package scheme

import (
	"net/http"
)

// Gate is an http.RoundTripper that keeps outgoing requests
// authenticated. Per request it attaches the current access token,
// triggers a reactive refresh when the access token has expired, defers
// the request while a concurrent refresh is in flight, and forces a
// local logout when the refresh token has expired too.
type Gate struct {
	scheme *RefreshScheme
	next   http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (g *Gate) RoundTrip(req *http.Request) (*http.Response, error) {
	s := g.scheme
	if s.cfg.TokensDisabled {
		return g.next.RoundTrip(req)
	}

	ctx := req.Context()

	token, err := s.tokens.SyncToken(ctx)
	if err != nil {
		s.log.WithError(err).Warn("failed to sync access token")
	}
	refresh, err := s.tokens.SyncRefreshToken(ctx)
	if err != nil {
		s.log.WithError(err).Warn("failed to sync refresh token")
	}

	// Unauthenticated call: nothing to attach, nothing to refresh.
	if !token.Present() || !refresh.Present() {
		return g.next.RoundTrip(req)
	}

	req = req.Clone(ctx)
	req.Header.Set(s.cfg.HeaderName, token.Value)

	if !s.coordinator.Refreshing() {
		now := s.cfg.Clock.Now()
		accessExpired := s.expirations.Access().Expired(now)
		refreshExpired := s.expirations.Refresh().Expired(now)

		switch {
		case accessExpired && refreshExpired:
			// Expired refresh token: no network call, straight to logout.
			s.log.Debug("refresh token expired, logging out locally")
			s.logoutLocally(ctx)
			req.Header.Del(s.cfg.HeaderName)

		case accessExpired:
			switch s.coordinator.Refresh(ctx) {
			case OutcomeRefreshed:
				s.scheduler.Schedule()
				g.reattach(req)
			case OutcomeSkipped:
				// Another request won the race; ride its refresh.
				if err := s.coordinator.Wait(ctx, s.cfg.DeferTimeout); err != nil {
					s.log.WithError(err).Warn("gave up waiting for in-flight token refresh")
				}
				g.reattach(req)
			case OutcomeLoggedOut:
				// Failed refresh logs out as a side effect; the request
				// itself proceeds unauthenticated.
				req.Header.Del(s.cfg.HeaderName)
			}
		}
	} else if !g.isRefreshRequest(req) {
		// Defer behind the in-flight refresh so this request cannot race
		// it or trigger a duplicate. The refresh call itself is exempt,
		// it must not wait on its own completion.
		if err := s.coordinator.Wait(ctx, s.cfg.DeferTimeout); err != nil {
			s.log.WithError(err).Warn("gave up waiting for in-flight token refresh")
		}
		g.reattach(req)
	}

	return g.next.RoundTrip(req)
}

// reattach overwrites the auth header with the now-current access token,
// or drops it when the token is gone.
func (g *Gate) reattach(req *http.Request) {
	s := g.scheme
	if t := s.tokens.Token(); t.Present() {
		req.Header.Set(s.cfg.HeaderName, t.Value)
	} else {
		req.Header.Del(s.cfg.HeaderName)
	}
}

func (g *Gate) isRefreshRequest(req *http.Request) bool {
	ep := g.scheme.cfg.Endpoints.Refresh
	return ep != nil && req.URL.String() == ep.URL
}
