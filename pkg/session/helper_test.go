package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/openkcm/pkce-session/pkg/session"
	sessionmock "github.com/openkcm/pkce-session/pkg/session/mock"
)

const (
	testApp      = "cmk"
	testClientID = "my-client-id"
	testOrigin   = "http://app.example.com"
	testKey      = testApp + "-session"
)

// tokenServer is a mock authorization server token endpoint.
type tokenServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []url.Values
	status   int
	body     any
}

func startTokenServer(t *testing.T) *tokenServer {
	t.Helper()

	ts := &tokenServer{
		status: http.StatusOK,
		body: map[string]any{
			"id_token":      "id-1",
			"access_token":  "access-1",
			"refresh_token": "r1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		},
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/token" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = r.ParseForm()

		ts.mu.Lock()
		ts.requests = append(ts.requests, r.PostForm)
		status, body := ts.status, ts.body
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)

	return ts
}

func (ts *tokenServer) respond(status int, body any) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.status = status
	ts.body = body
}

func (ts *tokenServer) calls() []url.Values {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	return append([]url.Values(nil), ts.requests...)
}

func (ts *tokenServer) callsFor(grant string) int {
	n := 0
	for _, req := range ts.calls() {
		if req.Get("grant_type") == grant {
			n++
		}
	}

	return n
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type fixture struct {
	manager *session.Manager
	store   *sessionmock.Store
	nav     *sessionmock.Navigator
	server  *tokenServer
	clock   *clock
}

func newFixture(t *testing.T, store *sessionmock.Store, opts ...session.Option) *fixture {
	t.Helper()

	f := &fixture{
		store:  store,
		nav:    sessionmock.NewNavigator(testOrigin + "/"),
		server: startTokenServer(t),
		clock:  newClock(),
	}

	opts = append([]session.Option{
		session.WithClock(f.clock.Now),
		session.WithHTTPClient(f.server.Client()),
	}, opts...)

	m, err := session.NewManager(t.Context(), testApp, session.Config{
		AuthenticationURL: f.server.URL,
		ClientID:          testClientID,
		APIURL:            "http://api.example.com",
	}, store, f.nav, opts...)
	require.NoError(t, err)
	f.manager = m

	return f
}

// seed stores a raw blob under the test key.
func seed(store *sessionmock.Store, blob string) {
	_ = store.Set(context.Background(), testKey, []byte(blob))
	store.Sets = 0
}

func authenticatedBlob(expiry time.Time) string {
	return `{"state":null,"codeVerifier":null,"code":null,"idToken":"id-0","accessToken":"access-0",` +
		`"refreshToken":"r0","tokenType":"Bearer","tokenExpiry":"` + expiry.UTC().Format("2006-01-02T15:04:05.000Z07:00") + `"}`
}

func pendingBlob(state, verifier string) string {
	return `{"state":"` + state + `","codeVerifier":"` + verifier + `","code":null,"idToken":null,` +
		`"accessToken":null,"refreshToken":null,"tokenType":null,"tokenExpiry":null}`
}

// recordingMeter records the grant and outcome of every token exchange.
type recordingMeter struct {
	noop.Meter

	mu        sync.Mutex
	exchanges []string
}

func (m *recordingMeter) Int64Counter(name string, opts ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	if name != "session.token_exchange_count" {
		return m.Meter.Int64Counter(name, opts...)
	}

	return &exchangeCounter{meter: m}, nil
}

func (m *recordingMeter) Exchanges() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.exchanges...)
}

type exchangeCounter struct {
	noop.Int64Counter

	meter *recordingMeter
}

func (c *exchangeCounter) Add(_ context.Context, _ int64, opts ...metric.AddOption) {
	attrs := metric.NewAddConfig(opts).Attributes()
	grant, _ := attrs.Value("grant")
	outcome, _ := attrs.Value("outcome")

	c.meter.mu.Lock()
	defer c.meter.mu.Unlock()

	c.meter.exchanges = append(c.meter.exchanges, grant.AsString()+"/"+outcome.AsString())
}

// gatedTransport holds every request until gate is closed.
type gatedTransport struct {
	next    http.RoundTripper
	entered chan struct{}
	gate    chan struct{}
}

func newGatedTransport() *gatedTransport {
	return &gatedTransport{
		entered: make(chan struct{}, 1),
		gate:    make(chan struct{}),
	}
}

func (g *gatedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.gate

	return g.next.RoundTrip(r)
}
