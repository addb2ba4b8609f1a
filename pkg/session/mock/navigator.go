package sessionmock

import (
	"context"
	"net/url"
	"sync"
)

// Navigator records navigations. Replace also moves the location, like a
// browser history replace does.
type Navigator struct {
	mu       sync.Mutex
	location *url.URL

	Replaced  []string
	Navigated []string

	NavigateErr error
}

func NewNavigator(location string) *Navigator {
	n := &Navigator{}
	n.SetLocation(location)

	return n
}

// SetLocation simulates a page load of rawURL.
func (n *Navigator) SetLocation(rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}

	n.mu.Lock()
	n.location = u
	n.mu.Unlock()
}

func (n *Navigator) Location() *url.URL {
	n.mu.Lock()
	defer n.mu.Unlock()

	u := *n.location

	return &u
}

func (n *Navigator) Replace(_ context.Context, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.Replaced = append(n.Replaced, target)
	n.location = u

	return nil
}

func (n *Navigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.Navigated = append(n.Navigated, target)

	return n.NavigateErr
}

// LastNavigation returns the most recent Navigate target, "" if none.
func (n *Navigator) LastNavigation() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.Navigated) == 0 {
		return ""
	}

	return n.Navigated[len(n.Navigated)-1]
}
