package sessionkeyring

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/openkcm/pkce-session/internal/serviceerr"
)

// Store keeps session records in the OS keyring, one secret per record
// key under a common service name.
type Store struct {
	service string
}

func NewStore(service string) *Store {
	return &Store{service: service}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	secret, err := keyring.Get(s.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, serviceerr.ErrNotFound
		}

		return nil, fmt.Errorf("reading keyring secret: %w", err)
	}

	return []byte(secret), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if err := keyring.Set(s.service, key, string(value)); err != nil {
		return fmt.Errorf("writing keyring secret: %w", err)
	}

	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting keyring secret: %w", err)
	}

	return nil
}
