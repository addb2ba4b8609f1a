package sessionmock

import (
	"context"
	"sync"

	"github.com/openkcm/pkce-session/internal/serviceerr"
)

type StoreOption func(*Store)

func WithGetError(err error) StoreOption {
	return func(s *Store) { s.getErr = err }
}

func WithSetError(err error) StoreOption {
	return func(s *Store) { s.setErr = err }
}

func WithDeleteError(err error) StoreOption {
	return func(s *Store) { s.deleteErr = err }
}

// Store is an in-memory session.Store that counts writes.
type Store struct {
	mu     sync.Mutex
	Values map[string][]byte
	Sets   int

	getErr, setErr, deleteErr error
}

func NewInMemStore(opts ...StoreOption) *Store {
	s := &Store{Values: make(map[string][]byte)}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return nil, s.getErr
	}

	v, ok := s.Values[key]
	if !ok {
		return nil, serviceerr.ErrNotFound
	}

	return append([]byte(nil), v...), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setErr != nil {
		return s.setErr
	}

	s.Sets++
	s.Values[key] = append([]byte(nil), value...)

	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}

	delete(s.Values, key)

	return nil
}

// Value returns the stored blob as a string, "" when absent.
func (s *Store) Value(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return string(s.Values[key])
}
