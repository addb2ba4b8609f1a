package business

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"

	"github.com/openkcm/pkce-session/internal/audit"
	"github.com/openkcm/pkce-session/internal/business/server"
	"github.com/openkcm/pkce-session/internal/config"
	"github.com/openkcm/pkce-session/pkg/session"
	sessionfile "github.com/openkcm/pkce-session/pkg/session/file"
	sessionkeyring "github.com/openkcm/pkce-session/pkg/session/keyring"
	sessionmemory "github.com/openkcm/pkce-session/pkg/session/memory"
	sessionvalkey "github.com/openkcm/pkce-session/pkg/session/valkey"
)

func initSessionManager(ctx context.Context, cfg *config.Config, nav session.Navigator) (_ *session.Manager, closeFn func(), _ error) {
	store, closeStore, err := buildStore(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("creating session store: %w", err)
	}

	clientID, err := commoncfg.LoadValueFromSourceRef(cfg.Session.ClientID)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("loading client id: %w", err)
	}

	httpClient, err := loadHTTPClient(cfg.Session)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("loading http client: %w", err)
	}

	opts := []session.Option{
		session.WithHTTPClient(httpClient),
		session.WithMeter(newMeter(cfg.Application)),
		session.WithRefreshPolicy(session.RefreshPolicy{
			InitialBackoff: cfg.Session.Refresh.InitialBackoff,
			MaxBackoff:     cfg.Session.Refresh.MaxBackoff,
			MaxFailures:    cfg.Session.Refresh.MaxFailures,
		}),
	}

	if cfg.Audit.Endpoint != "" {
		auditLogger, err := otlpaudit.NewLogger(&cfg.Audit)
		if err != nil {
			closeStore()
			return nil, nil, fmt.Errorf("creating audit logger: %w", err)
		}
		opts = append(opts, session.WithAuditor(audit.NewLogger(auditLogger)))
	}

	manager, err := session.NewManager(ctx,
		cfg.Session.ApplicationName,
		session.Config{
			AuthenticationURL: cfg.Session.AuthenticationURL,
			ClientID:          string(clientID),
			APIURL:            cfg.Session.APIURL,
		},
		store,
		nav,
		opts...,
	)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("creating session manager: %w", err)
	}

	return manager, closeStore, nil
}

func buildStore(conf config.Storage) (_ session.Store, closeFn func(), _ error) {
	noop := func() {}

	switch conf.Type {
	case config.StorageMemory:
		return sessionmemory.NewStore(conf.TTL), noop, nil
	case config.StorageFile, "":
		store, err := sessionfile.NewStore(os.ExpandEnv(conf.File.Directory))
		if err != nil {
			return nil, nil, err
		}

		return store, noop, nil
	case config.StorageValKey:
		opts, err := config.MakeValKeyOptions(conf.ValKey)
		if err != nil {
			return nil, nil, err
		}

		client, err := valkey.NewClient(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
		}

		return sessionvalkey.NewStore(client, conf.ValKey.Prefix, conf.TTL), client.Close, nil
	case config.StorageKeyring:
		return sessionkeyring.NewStore(conf.Keyring.Service), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", conf.Type)
	}
}

func loadHTTPClient(conf config.Session) (*http.Client, error) {
	switch conf.ClientAuth.Type {
	case config.ClientAuthNone, "":
		return &http.Client{Timeout: conf.HTTPTimeout}, nil
	case config.ClientAuthMTLS:
		tlsConfig, err := commoncfg.LoadMTLSConfig(conf.ClientAuth.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading mTLS config: %w", err)
		}

		return &http.Client{
			Timeout: conf.HTTPTimeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown client auth type %q", conf.ClientAuth.Type)
	}
}

func newMeter(app commoncfg.Application) metric.Meter {
	return otel.Meter(
		"pkce-session/"+app.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(app)...),
	)
}

// hostNavigator is the navigator of commands that run without the callback
// server. Its location is the redirect origin; navigation opens the browser.
type hostNavigator struct {
	browser *server.Browser

	mu       sync.Mutex
	location *url.URL
}

func newHostNavigator(conf config.Callback, browser *server.Browser) *hostNavigator {
	return &hostNavigator{
		browser:  browser,
		location: &url.URL{Scheme: "http", Host: conf.Address, Path: "/"},
	}
}

func (n *hostNavigator) Location() *url.URL {
	n.mu.Lock()
	defer n.mu.Unlock()

	u := *n.location

	return &u
}

func (n *hostNavigator) Replace(_ context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	u, err := n.location.Parse(target)
	if err != nil {
		return fmt.Errorf("parsing replacement location: %w", err)
	}
	n.location = u

	return nil
}

func (n *hostNavigator) Navigate(ctx context.Context, target string) error {
	return n.browser.Open(ctx, target)
}
