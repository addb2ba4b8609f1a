package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/pkce-session/internal/serviceerr"
)

// RefreshTokens redeems the refresh token for a new set of tokens. It is a
// no-op without a session. Concurrent callers share one request, which keeps
// running when a caller gives up waiting.
func (m *Manager) RefreshTokens(ctx context.Context) error {
	return m.refresh(ctx, refreshFlightKey, nil)
}

// refresh runs refreshTokens in the flight named key. due, when set, is
// evaluated under m.mu and skips the request when it reports false.
func (m *Manager) refresh(ctx context.Context, key string, due func(Authenticated) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	flightCtx := context.WithoutCancel(ctx)
	result := m.refreshGroup.DoChan(key, func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()

		return nil, m.refreshTokens(flightCtx, due)
	})

	select {
	case res := <-result:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// refreshTokens must be called with m.mu held.
func (m *Manager) refreshTokens(ctx context.Context, due func(Authenticated) bool) error {
	session, ok := m.record.Phase().(Authenticated)
	if !ok {
		return nil
	}
	if due != nil && !due(session) {
		return nil
	}

	now := m.now()
	if now.Before(m.refreshNotBefore) {
		slogctx.Debug(ctx, "Skipping token refresh while backing off",
			"retry_at", m.refreshNotBefore, "failures", m.refreshFailures)
		return serviceerr.ErrRefreshBackoff
	}

	tokens, err := m.exchangeRefreshToken(ctx, session.RefreshToken)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		m.refreshFailed(ctx, now, err)
		return err
	}

	if tokens.IDToken != "" {
		session.IDToken = tokens.IDToken
	}
	if tokens.RefreshToken != "" {
		session.RefreshToken = tokens.RefreshToken
	}
	if tokens.TokenType != "" {
		session.TokenType = tokens.TokenType
	}
	session.AccessToken = tokens.AccessToken
	session.Expiry = m.expiryFrom(tokens.ExpiresIn)

	m.record.SetPhase(session)
	m.resetRefreshBackoff()
	if err := m.record.Save(ctx); err != nil {
		slogctx.Warn(ctx, "Could not persist refreshed tokens", "error", err)
	}

	slogctx.Debug(ctx, "Refreshed tokens", "application", m.applicationName, "expiry", session.Expiry)

	return nil
}

// refreshFailed opens the next backoff window. Only rejections of the
// refresh token count towards the failure threshold that drops the session.
func (m *Manager) refreshFailed(ctx context.Context, now time.Time, err error) {
	rejected := refreshRejected(err)
	if rejected {
		m.refreshFailures++
	}

	if limit := m.refreshPolicy.MaxFailures; limit > 0 && m.refreshFailures >= limit {
		slogctx.Error(ctx, "Refresh token keeps failing; dropping the session",
			"failures", m.refreshFailures, "error", err)
		if clearErr := m.record.Clear(ctx); clearErr != nil {
			slogctx.Warn(ctx, "Could not clear the session record", "error", clearErr)
		}
		m.resetRefreshBackoff()
		m.setReady(ctx, false)
		return
	}

	wait := m.refreshBackoff.NextBackOff()
	m.refreshNotBefore = now.Add(wait)

	slogctx.Warn(ctx, "Failed to refresh tokens",
		"rejected", rejected, "failures", m.refreshFailures, "retry_in", wait, "error", err)
}

// refreshRejected reports whether the token endpoint refused the refresh
// token itself. Transport errors, 5xx responses and throttling are transient.
func refreshRejected(err error) bool {
	var tokenErr *TokenError
	if errors.As(err, &tokenErr) {
		switch tokenErr.Err {
		case serviceerr.CodeInvalidGrant, serviceerr.CodeInvalidClient, serviceerr.CodeUnauthorizedClient:
			return true
		}
	}

	var statusErr *statusError
	if !errors.As(err, &statusErr) {
		return false
	}

	switch statusErr.code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	default:
		return statusErr.code >= http.StatusBadRequest && statusErr.code < http.StatusInternalServerError
	}
}

func (m *Manager) resetRefreshBackoff() {
	m.refreshFailures = 0
	m.refreshNotBefore = time.Time{}
	if m.refreshBackoff != nil {
		m.refreshBackoff.Reset()
	}
}

// AccessToken returns the access token, refreshing it first when it expires
// within timeToExpire. It reports false when there is no session.
func (m *Manager) AccessToken(ctx context.Context, timeToExpire time.Duration) (string, bool) {
	session, ok := m.freshSession(ctx, timeToExpire)
	if !ok {
		return "", false
	}

	return session.AccessToken, true
}

// IDToken is AccessToken for the ID token.
func (m *Manager) IDToken(ctx context.Context, timeToExpire time.Duration) (string, bool) {
	session, ok := m.freshSession(ctx, timeToExpire)
	if !ok {
		return "", false
	}

	return session.IDToken, true
}

func (m *Manager) freshSession(ctx context.Context, timeToExpire time.Duration) (Authenticated, bool) {
	m.mu.Lock()
	session, ok := m.record.Phase().(Authenticated)
	m.mu.Unlock()
	if !ok {
		return Authenticated{}, false
	}

	expiring := func(s Authenticated) bool {
		return s.Expiry.Sub(m.now()) < timeToExpire
	}
	if !expiring(session) {
		return session, true
	}

	// Re-checked inside the flight: a refresh that finished in the meantime
	// already made the tokens fresh.
	if err := m.refresh(ctx, refreshFlightKey+"/"+timeToExpire.String(), expiring); err != nil {
		slogctx.Debug(ctx, "Returning the current token after a failed refresh", "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok = m.record.Phase().(Authenticated)

	return session, ok
}
