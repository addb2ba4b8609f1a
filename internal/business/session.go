package business

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/oops"

	"github.com/openkcm/pkce-session/internal/business/server"
	"github.com/openkcm/pkce-session/internal/cmdutils"
	"github.com/openkcm/pkce-session/internal/config"
	"github.com/openkcm/pkce-session/pkg/session"
)

type TokenKind string

const (
	AccessToken TokenKind = "access"
	IDToken     TokenKind = "id"
)

// TokenOptions are read when the command runs, so flags may be bound to
// their fields.
type TokenOptions struct {
	Kind     TokenKind
	MinValid time.Duration
}

type StatusFormat string

const (
	StatusText StatusFormat = "text"
	StatusJSON StatusFormat = "json"
	StatusYAML StatusFormat = "yaml"
)

type StatusOptions struct {
	Format StatusFormat
}

// Status describes the stored session. Token values are never part of it.
type Status struct {
	Application string     `json:"application" yaml:"application"`
	Phase       string     `json:"phase" yaml:"phase"`
	TokenType   string     `json:"tokenType,omitempty" yaml:"tokenType,omitempty"`
	Expiry      *time.Time `json:"expiry,omitempty" yaml:"expiry,omitempty"`
	Subject     string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	Issuer      string     `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	APIURL      string     `json:"apiURL,omitempty" yaml:"apiURL,omitempty"`
}

// withManager runs fn with a manager that is not attached to the callback
// server.
func withManager(ctx context.Context, cfg *config.Config, out Output, fn func(*session.Manager) error) error {
	nav := newHostNavigator(cfg.Callback, server.NewBrowser(out.Err, cfg.Callback.OpenBrowser))

	manager, closeFn, err := initSessionManager(ctx, cfg, nav)
	if err != nil {
		return oops.In("Session").
			WithContext(ctx).
			Wrapf(err, "Failed to initialise the session manager")
	}
	defer closeFn()

	return fn(manager)
}

func errNotLoggedIn(ctx context.Context) error {
	return oops.In("Session").
		WithContext(ctx).
		Errorf("Not logged in; run the login command first")
}

// TokenMain prints a token, refreshing it first when it expires within
// opts.MinValid.
func TokenMain(out Output, opts *TokenOptions) cmdutils.BusinessFunc {
	return func(ctx context.Context, cfg *config.Config) error {
		return withManager(ctx, cfg, out, func(manager *session.Manager) error {
			var (
				token string
				ok    bool
			)
			switch opts.Kind {
			case AccessToken, "":
				token, ok = manager.AccessToken(ctx, opts.MinValid)
			case IDToken:
				token, ok = manager.IDToken(ctx, opts.MinValid)
			default:
				return oops.In("Session").Errorf("Unknown token kind %q", opts.Kind)
			}
			if !ok {
				return errNotLoggedIn(ctx)
			}

			_, err := fmt.Fprintln(out.Out, token)

			return err
		})
	}
}

// RefreshMain redeems the refresh token unconditionally.
func RefreshMain(out Output) cmdutils.BusinessFunc {
	return func(ctx context.Context, cfg *config.Config) error {
		return withManager(ctx, cfg, out, func(manager *session.Manager) error {
			if !manager.SessionOK() {
				return errNotLoggedIn(ctx)
			}

			if err := manager.RefreshTokens(ctx); err != nil {
				return oops.In("Session").
					WithContext(ctx).
					Wrapf(err, "Failed to refresh the tokens")
			}

			phase, ok := manager.Phase().(session.Authenticated)
			if !ok {
				return errNotLoggedIn(ctx)
			}
			_, err := fmt.Fprintf(out.Out, "Tokens refreshed; valid until %s\n", phase.Expiry.Format(time.RFC3339))

			return err
		})
	}
}

// LogoutMain clears the session and, when there was one, sends the user to
// the logout endpoint.
func LogoutMain(out Output) cmdutils.BusinessFunc {
	return func(ctx context.Context, cfg *config.Config) error {
		return withManager(ctx, cfg, out, func(manager *session.Manager) error {
			manager.Logout(ctx)

			_, err := fmt.Fprintln(out.Out, "Logged out")

			return err
		})
	}
}

// StatusMain prints the phase of the stored session.
func StatusMain(out Output, opts *StatusOptions) cmdutils.BusinessFunc {
	return func(ctx context.Context, cfg *config.Config) error {
		return withManager(ctx, cfg, out, func(manager *session.Manager) error {
			return writeStatus(out, opts.Format, sessionStatus(manager))
		})
	}
}

func sessionStatus(manager *session.Manager) Status {
	phase := manager.Phase()
	status := Status{
		Application: manager.ApplicationName(),
		Phase:       session.PhaseName(phase),
		APIURL:      manager.APIURL(),
	}

	if authenticated, ok := phase.(session.Authenticated); ok {
		status.TokenType = authenticated.TokenType
		if !authenticated.Expiry.IsZero() {
			expiry := authenticated.Expiry
			status.Expiry = &expiry
		}
	}

	if claims, err := manager.IDTokenClaims(); err == nil {
		status.Subject = claims.Subject
		status.Issuer = claims.Issuer
	}

	return status
}

func writeStatus(out Output, format StatusFormat, status Status) error {
	switch format {
	case StatusJSON:
		enc := json.NewEncoder(out.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			return fmt.Errorf("encoding status: %w", err)
		}

		return nil
	case StatusYAML:
		b, err := yaml.Marshal(status)
		if err != nil {
			return fmt.Errorf("encoding status: %w", err)
		}
		_, err = out.Out.Write(b)

		return err
	case StatusText, "":
		return renderStatusTable(out, status)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderStatusTable(out Output, status Status) error {
	rows := [][]string{
		{"Application", status.Application},
		{"Phase", status.Phase},
	}
	if status.TokenType != "" {
		rows = append(rows, []string{"Token type", status.TokenType})
	}
	if status.Expiry != nil {
		rows = append(rows, []string{"Expiry", status.Expiry.Format(time.RFC3339)})
	}
	if status.Subject != "" {
		rows = append(rows, []string{"Subject", status.Subject})
	}
	if status.Issuer != "" {
		rows = append(rows, []string{"Issuer", status.Issuer})
	}
	if status.APIURL != "" {
		rows = append(rows, []string{"API URL", status.APIURL})
	}

	table := tablewriter.NewWriter(out.Out)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("appending row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}

	return nil
}
