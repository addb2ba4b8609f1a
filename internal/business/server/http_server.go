package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/pkce-session/internal/config"
	"github.com/openkcm/pkce-session/internal/middleware/responsewriter"
	"github.com/openkcm/pkce-session/internal/serviceerr"
)

const readHeaderTimeout = 10 * time.Second

// PageLoader is what the callback server drives on every request.
type PageLoader interface {
	CompleteLogin(ctx context.Context) error
	SessionOK() bool
}

// CallbackServer is a loopback HTTP server that plays the role of the host
// page of a session. Its origin is the redirect URI of the login; every
// request to "/" is a page load.
type CallbackServer struct {
	app      commoncfg.Application
	cfg      config.Callback
	browser  *Browser
	listener net.Listener
	origin   *url.URL

	// loadMu serializes page loads so that the location belongs to one
	// request at a time.
	loadMu sync.Mutex

	mu       sync.Mutex
	location *url.URL
}

func NewCallbackServer(app commoncfg.Application, cfg config.Callback, browser *Browser) *CallbackServer {
	return &CallbackServer{
		app:     app,
		cfg:     cfg,
		browser: browser,
	}
}

// Listen binds the loopback listener. The origin is known afterwards.
func (s *CallbackServer) Listen(ctx context.Context) error {
	listener, err := new(net.ListenConfig).Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return oops.In("Callback Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	s.listener = listener
	s.origin = &url.URL{Scheme: "http", Host: listener.Addr().String()}
	s.setLocation(&url.URL{Path: "/"})

	return nil
}

// Origin returns the origin of the server, nil before Listen.
func (s *CallbackServer) Origin() *url.URL {
	if s.origin == nil {
		return nil
	}
	u := *s.origin

	return &u
}

func (s *CallbackServer) Location() *url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.location == nil {
		return nil
	}
	u := *s.location

	return &u
}

// Replace moves the location. During a page load the rendered page also
// rewrites the address bar to target.
func (s *CallbackServer) Replace(ctx context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parsing replacement location: %w", err)
	}
	s.setLocation(u)

	if load, ok := ctx.Value(pageLoadKey{}).(*pageLoad); ok {
		load.replace = target
	}

	return nil
}

func (s *CallbackServer) Navigate(ctx context.Context, target string) error {
	return s.browser.Open(ctx, target)
}

func (s *CallbackServer) setLocation(u *url.URL) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.origin != nil {
		loc := *u
		loc.Scheme = s.origin.Scheme
		loc.Host = s.origin.Host
		u = &loc
	}
	s.location = u
}

func (s *CallbackServer) handler(ctx context.Context, loader PageLoader) (http.Handler, error) {
	m, err := initMeters(ctx, s.app)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		s.loadMu.Lock()
		defer s.loadMu.Unlock()

		s.setLocation(r.URL)

		load := &pageLoad{}
		ctx := context.WithValue(r.Context(), pageLoadKey{}, load)

		// The exchange must not be cut short by the browser going away.
		loadErr := loader.CompleteLogin(context.WithoutCancel(ctx))

		s.render(ctx, w, page{
			OK:      loader.SessionOK(),
			Err:     loadErr,
			Replace: load.replace,
		})
	})

	handler := m.traceMiddleware(s.app, mux)
	handler = responsewriter.ResponseWriterMiddleware(handler)

	return handler, nil
}

type pageLoadKey struct{}

type pageLoad struct {
	replace string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Replace}}<script>history.replaceState(null, "", {{.Replace}});</script>{{end}}
</body>
</html>
`))

type page struct {
	OK      bool
	Err     error
	Replace string
}

type pageView struct {
	Title   string
	Message string
	Replace string
}

func (s *CallbackServer) render(ctx context.Context, w http.ResponseWriter, p page) {
	status := http.StatusOK
	view := pageView{
		Title:   "Waiting for login",
		Message: "Complete the login in the window that was opened.",
		Replace: p.Replace,
	}

	switch {
	case p.Err != nil:
		status = serviceerr.HTTPStatus(p.Err)
		view.Title = "Login failed"
		view.Message = p.Err.Error()
	case p.OK:
		view.Title = "Login succeeded"
		view.Message = "You can close this window and return to the terminal."
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, view); err != nil {
		slogctx.Warn(ctx, "Failed to render the callback page", "error", err)
	}
}

// Serve answers page loads until ctx is done, then shuts down gracefully.
func (s *CallbackServer) Serve(ctx context.Context, loader PageLoader) error {
	if s.listener == nil {
		return oops.In("Callback Server").Errorf("Serve called before Listen")
	}

	handler, err := s.handler(ctx, loader)
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		slogctx.Info(ctx, "Serving the callback server", "address", s.listener.Addr().String())
		err := server.Serve(s.listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve the callback server", "error", err)
		}

		slogctx.Info(ctx, "Stopped the callback server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("Callback Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down the callback server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of the callback server")

	return nil
}
