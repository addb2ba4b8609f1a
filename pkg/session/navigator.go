package session

import (
	"context"
	"net/url"
)

// Navigator is the host's location. Location is the page currently loaded,
// including the query of an authorization callback. Replace swaps the
// current location without leaving the host, Navigate leaves it for an
// external URL.
type Navigator interface {
	Location() *url.URL
	Replace(ctx context.Context, target string) error
	Navigate(ctx context.Context, target string) error
}

// origin returns scheme://host of u, or "" when u is nil.
func origin(u *url.URL) string {
	if u == nil {
		return ""
	}

	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
}

func callbackParams(u *url.URL) (state, code string) {
	if u == nil {
		return "", ""
	}
	q := u.Query()

	return q.Get("state"), q.Get("code")
}
