package server

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/browser"

	slogctx "github.com/veqryn/slog-context"
)

// Browser opens external URLs for the user. The URL is always printed so
// that it can be opened by hand when no browser is available.
type Browser struct {
	Out     io.Writer
	Enabled bool

	openURL func(string) error
}

func NewBrowser(out io.Writer, enabled bool) *Browser {
	return &Browser{
		Out:     out,
		Enabled: enabled,
		openURL: browser.OpenURL,
	}
}

// Open prints target and hands it to the system browser. A browser that
// cannot be started is not an error since the printed URL still works.
func (b *Browser) Open(ctx context.Context, target string) error {
	_, err := fmt.Fprintf(b.Out, "Open the following URL in your browser:\n\n    %s\n\n", target)
	if err != nil {
		return fmt.Errorf("printing url: %w", err)
	}

	if !b.Enabled {
		return nil
	}

	if err := b.openURL(target); err != nil {
		slogctx.Warn(ctx, "Could not open the browser", "error", err)
	}

	return nil
}
