package business

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/pkce-session/internal/business/server"
	"github.com/openkcm/pkce-session/internal/cmdutils"
	"github.com/openkcm/pkce-session/internal/config"
	"github.com/openkcm/pkce-session/pkg/session"
)

// Output receives what the commands print. Out carries results, Err carries
// prompts such as the URL to open, so that results can be piped.
type Output struct {
	Out io.Writer
	Err io.Writer
}

func StdOutput() Output {
	return Output{Out: os.Stdout, Err: os.Stderr}
}

// LoginMain runs a complete login: it serves the redirect origin on the
// loopback interface, sends the user to the authorization endpoint and
// waits until the session is ready.
func LoginMain(out Output) cmdutils.BusinessFunc {
	return func(ctx context.Context, cfg *config.Config) error {
		browser := server.NewBrowser(out.Err, cfg.Callback.OpenBrowser)
		callback := server.NewCallbackServer(cfg.Application, cfg.Callback, browser)
		if err := callback.Listen(ctx); err != nil {
			return err
		}

		manager, closeFn, err := initSessionManager(ctx, cfg, callback)
		if err != nil {
			return oops.In("Login").
				WithContext(ctx).
				Wrapf(err, "Failed to initialise the session manager")
		}
		defer closeFn()

		return login(ctx, cfg.Callback.LoginTimeout, callback, manager, out)
	}
}

func login(ctx context.Context, timeout time.Duration, callback *server.CallbackServer, manager *session.Manager, out Output) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	loggedIn := make(chan struct{})
	var once sync.Once
	unsubscribe := manager.Ready().Subscribe(func(ok bool) {
		if ok {
			once.Do(func() { close(loggedIn) })
		}
	})
	defer unsubscribe()

	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()

	served := make(chan error, 1)
	go func() {
		served <- callback.Serve(serveCtx, manager)
	}()

	err := manager.StartLogin(ctx)
	if err != nil {
		err = oops.In("Login").
			WithContext(ctx).
			Wrapf(err, "Failed to start the login")
	} else {
		select {
		case <-loggedIn:
		case <-ctx.Done():
			err = oops.In("Login").
				WithContext(ctx).
				Wrapf(ctx.Err(), "Login did not complete")
		}
	}

	// Shutdown lets the page load that completed the login finish.
	stopServing()
	if serveErr := <-served; serveErr != nil && err == nil {
		err = serveErr
	}
	if err != nil {
		return err
	}

	slogctx.Info(ctx, "Login completed", "application", manager.ApplicationName())

	claims, claimsErr := manager.IDTokenClaims()
	if claimsErr != nil || claims.Subject == "" {
		_, _ = fmt.Fprintln(out.Out, "Logged in")
		return nil
	}
	_, _ = fmt.Fprintf(out.Out, "Logged in as %s\n", claims.Subject)

	return nil
}
