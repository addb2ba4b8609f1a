package sessionmemory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/openkcm/pkce-session/internal/serviceerr"
)

// Store keeps session records in process memory. A positive TTL bounds
// the lifetime of each record, zero keeps records until deleted.
type Store struct {
	cache *cache.Cache
}

func NewStore(ttl time.Duration) *Store {
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = ttl
	}

	return &Store{cache: cache.New(expiration, cleanup)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, serviceerr.ErrNotFound
	}

	data, _ := v.([]byte)

	return append([]byte(nil), data...), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.cache.Set(key, append([]byte(nil), value...), cache.DefaultExpiration)

	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)

	return nil
}
