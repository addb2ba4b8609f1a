package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/pkce-session/internal/pkce"
	"github.com/openkcm/pkce-session/internal/serviceerr"
)

const (
	storageKeySuffix   = "-session"
	refreshFlightKey   = "refresh"
	defaultHTTPTimeout = 30 * time.Second
)

// Config is the immutable configuration of a Manager.
type Config struct {
	AuthenticationURL string // Base URL of the authorization server
	ClientID          string
	APIURL            string // Base URL of the API the tokens are meant for
}

// RefreshPolicy bounds the retries of a failing refresh token. After a
// failure no refresh is attempted until the backoff elapsed. After
// MaxFailures consecutive failures the session is dropped; zero disables
// dropping.
type RefreshPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxFailures    int
}

func DefaultRefreshPolicy() RefreshPolicy {
	return RefreshPolicy{
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Minute,
		MaxFailures:    10,
	}
}

type Option func(*Manager)

func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) { m.client = client }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithAuditor(auditor Auditor) Option {
	return func(m *Manager) { m.audit = auditor }
}

func WithMeter(meter metric.Meter) Option {
	return func(m *Manager) { m.meter = meter }
}

func WithRefreshPolicy(policy RefreshPolicy) Option {
	return func(m *Manager) { m.refreshPolicy = policy }
}

// WithRandom sets the entropy source of state and code verifiers.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) { m.pkce = pkce.Source{Reader: r} }
}

// Manager drives the authorization code flow with PKCE for one application
// and owns its persisted session record.
type Manager struct {
	applicationName string
	cfg             Config

	authorizeEndpoint string
	tokenEndpoint     string
	logoutEndpoint    string

	record *Record
	nav    Navigator
	pkce   pkce.Source
	client *http.Client
	audit  Auditor
	meter  metric.Meter

	metrics *metrics
	now     func() time.Time
	ready   Signal

	// mu serializes every read-modify-persist cycle of the record.
	mu sync.Mutex

	refreshGroup     singleflight.Group
	refreshPolicy    RefreshPolicy
	refreshBackoff   *backoff.ExponentialBackOff
	refreshFailures  int
	refreshNotBefore time.Time
}

// NewManager builds a manager whose record is stored under
// applicationName + "-session" and loads that record. It neither navigates
// nor talks to the network.
func NewManager(
	ctx context.Context,
	applicationName string,
	cfg Config,
	store Store,
	nav Navigator,
	opts ...Option,
) (*Manager, error) {
	if applicationName == "" {
		return nil, errors.New("application name is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if nav == nil {
		return nil, errors.New("navigator is required")
	}

	base, err := url.Parse(cfg.AuthenticationURL)
	if err != nil {
		return nil, fmt.Errorf("parsing authentication URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("authentication URL %q must be absolute", cfg.AuthenticationURL)
	}

	m := &Manager{
		applicationName:   applicationName,
		cfg:               cfg,
		authorizeEndpoint: base.JoinPath("authorize").String(),
		tokenEndpoint:     base.JoinPath("oauth2", "token").String(),
		logoutEndpoint:    base.JoinPath("logout").String(),
		record:            NewRecord(applicationName+storageKeySuffix, store),
		nav:               nav,
		client:            &http.Client{Timeout: defaultHTTPTimeout},
		now:               time.Now,
		refreshPolicy:     DefaultRefreshPolicy(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.meter == nil {
		m.meter = defaultMeter()
	}
	m.metrics, err = newMetrics(m.meter)
	if err != nil {
		return nil, err
	}

	defaults := DefaultRefreshPolicy()
	if m.refreshPolicy.InitialBackoff <= 0 {
		m.refreshPolicy.InitialBackoff = defaults.InitialBackoff
	}
	if m.refreshPolicy.MaxBackoff < m.refreshPolicy.InitialBackoff {
		m.refreshPolicy.MaxBackoff = max(defaults.MaxBackoff, m.refreshPolicy.InitialBackoff)
	}

	m.refreshBackoff = backoff.NewExponentialBackOff()
	m.refreshBackoff.InitialInterval = m.refreshPolicy.InitialBackoff
	m.refreshBackoff.MaxInterval = m.refreshPolicy.MaxBackoff
	m.refreshBackoff.Reset()

	if err := m.record.Load(ctx); err != nil {
		slogctx.Warn(ctx, "Could not load the session record; starting with an empty session",
			"key", m.record.Key(), "error", err)
	}

	return m, nil
}

func (m *Manager) ApplicationName() string {
	return m.applicationName
}

func (m *Manager) APIURL() string {
	return m.cfg.APIURL
}

// Ready returns the readiness signal.
func (m *Manager) Ready() *Signal {
	return &m.ready
}

// SessionOK reports whether the record holds a refresh token.
func (m *Manager) SessionOK() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.record.Phase().(Authenticated)

	return ok
}

// Phase returns the current phase of the record.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.record.Phase()
}

// StartLogin begins a fresh login attempt and navigates to the
// authorization endpoint. Tokens of an existing session are discarded.
func (m *Manager) StartLogin(ctx context.Context) error {
	slogctx.Info(ctx, "Starting login", "application", m.applicationName)

	m.mu.Lock()

	state, err := m.pkce.State()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("generating state: %w", err)
	}
	challenge, err := m.pkce.PKCE()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("generating pkce parameters: %w", err)
	}

	m.record.SetPhase(LoginPending{
		State:        state,
		CodeVerifier: challenge.Verifier,
	})
	m.resetRefreshBackoff()
	m.setReady(ctx, false)

	if err := m.record.Save(ctx); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("saving session record: %w", err)
	}

	authURI, err := m.authURI(state, challenge, origin(m.nav.Location()))
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("generating auth uri: %w", err)
	}

	if err := m.nav.Navigate(ctx, authURI); err != nil {
		return fmt.Errorf("navigating to the authorization endpoint: %w", err)
	}

	return nil
}

func (m *Manager) authURI(state string, challenge pkce.PKCE, redirectURI string) (string, error) {
	u, err := url.Parse(m.authorizeEndpoint)
	if err != nil {
		return "", fmt.Errorf("parsing authorisation endpoint url: %w", err)
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", m.cfg.ClientID)
	q.Set("state", state)
	q.Set("code_challenge_method", challenge.Method)
	q.Set("code_challenge", challenge.Challenge)
	q.Set("redirect_uri", redirectURI)

	u.RawQuery = q.Encode()

	return u.String(), nil
}

// CompleteLogin must run on every page load. It reloads the record, looks at
// the callback parameters of the current location and applies the matching
// transition. The returned error is diagnostic: the manager is left in a
// consistent phase either way.
func (m *Manager) CompleteLogin(ctx context.Context) error {
	ctx = slogctx.With(ctx,
		"application", m.applicationName,
		"correlation_id", uuid.NewString(),
	)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record.Load(ctx); err != nil {
		slogctx.Warn(ctx, "Could not load the session record; continuing with an empty session", "error", err)
	}
	if _, ok := m.record.Phase().(Authenticated); !ok {
		m.setReady(ctx, false)
	}

	location := m.nav.Location()
	state, code := callbackParams(location)

	switch phase := m.record.Phase().(type) {
	case Authenticated:
		slogctx.Info(ctx, "Session ok")
		m.setReady(ctx, true)
		if state != "" || code != "" {
			m.stripLocation(ctx, location)
		}
		return nil
	case LoginPending:
		if state == "" || code == "" {
			slogctx.Info(ctx, "No session")
			return nil
		}
		if !stateMatches(state, phase.State) {
			return m.rejectCallback(ctx)
		}
		if phase.Code == code {
			slogctx.Warn(ctx, "Authentication failed - authorization code was already exchanged")
			return serviceerr.ErrCodeAlreadyUsed
		}
		phase.Code = code
		return m.finishLogin(ctx, phase, location)
	default:
		if state == "" || code == "" {
			slogctx.Info(ctx, "No session")
			return nil
		}
		return m.rejectCallback(ctx)
	}
}

func (m *Manager) rejectCallback(ctx context.Context) error {
	slogctx.Warn(ctx, "Authentication failed - invalid state in URL")
	m.auditLoginFailure(ctx, "invalid state")

	return serviceerr.ErrInvalidState
}

// finishLogin exchanges the code of a genuine callback. The code is persisted
// before the request so that a reload never sends it a second time.
func (m *Manager) finishLogin(ctx context.Context, pending LoginPending, location *url.URL) error {
	m.record.SetPhase(pending)
	if err := m.record.Save(ctx); err != nil {
		m.auditLoginFailure(ctx, "failed to store authorization code")
		return fmt.Errorf("saving session record: %w", err)
	}

	slogctx.Info(ctx, "Authentication ok; exchanging the authorization code")

	tokens, err := m.exchangeCode(ctx, pending, origin(location))
	if err != nil {
		slogctx.Error(ctx, "Failed to get tokens", "error", err)
		m.auditLoginFailure(ctx, "failed to exchange code for tokens")
		return fmt.Errorf("exchanging code for tokens: %w", err)
	}

	m.record.SetPhase(Authenticated{
		IDToken:      tokens.IDToken,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
		Expiry:       m.expiryFrom(tokens.ExpiresIn),
	})
	m.resetRefreshBackoff()
	if err := m.record.Save(ctx); err != nil {
		slogctx.Error(ctx, "Could not persist the session; it will not survive a reload", "error", err)
	}

	slogctx.Info(ctx, "Exchanged the auth code for tokens")
	m.auditLoginSuccess(ctx)
	m.setReady(ctx, true)
	m.stripLocation(ctx, location)

	return nil
}

// stripLocation hides the callback parameters by replacing the location with
// its bare origin.
func (m *Manager) stripLocation(ctx context.Context, location *url.URL) {
	if err := m.nav.Replace(ctx, origin(location)); err != nil {
		slogctx.Warn(ctx, "Could not replace the location", "error", err)
	}
}

// Logout clears the session. An authenticated session additionally navigates
// to the logout endpoint of the authorization server. Failures are logged,
// never returned.
func (m *Manager) Logout(ctx context.Context) {
	slogctx.Info(ctx, "Logging out", "application", m.applicationName)

	m.mu.Lock()
	_, authenticated := m.record.Phase().(Authenticated)
	if authenticated {
		m.setReady(ctx, false)
	}
	if err := m.record.Clear(ctx); err != nil {
		slogctx.Warn(ctx, "Could not clear the session record", "error", err)
	}
	m.resetRefreshBackoff()
	redirectURI := origin(m.nav.Location())
	m.mu.Unlock()

	if !authenticated {
		return
	}

	u, err := url.Parse(m.logoutEndpoint)
	if err != nil {
		slogctx.Warn(ctx, "Could not build the logout URL", "error", err)
		return
	}
	q := u.Query()
	q.Set("client_id", m.cfg.ClientID)
	q.Set("logout_uri", redirectURI)
	u.RawQuery = q.Encode()

	slogctx.Debug(ctx, "Navigating to logout endpoint", "url", u.String())
	if err := m.nav.Navigate(ctx, u.String()); err != nil {
		slogctx.Warn(ctx, "Could not navigate to the logout endpoint", "error", err)
	}
}

// IDTokenClaims decodes the claims of the current ID token.
func (m *Manager) IDTokenClaims() (Claims, error) {
	m.mu.Lock()
	phase, ok := m.record.Phase().(Authenticated)
	m.mu.Unlock()

	if !ok || phase.IDToken == "" {
		return Claims{}, serviceerr.ErrNotFound
	}

	return ParseIDTokenClaims(phase.IDToken)
}

func (m *Manager) setReady(ctx context.Context, ok bool) {
	if m.ready.set(ok) {
		slogctx.Debug(ctx, "Readiness changed", "ok", ok)
		m.metrics.recordReadiness(ctx, ok)
	}
}
