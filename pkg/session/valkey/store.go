package sessionvalkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/pkce-session/internal/serviceerr"
)

// Store keeps session records in ValKey under "<prefix>:<key>". Records
// written with a positive TTL expire with it, which scopes a session to a
// maximum lifetime.
type Store struct {
	valkey valkey.Client
	prefix string
	ttl    time.Duration
}

func NewStore(valkeyClient valkey.Client, prefix string, ttl time.Duration) *Store {
	prefix = strings.TrimSuffix(prefix, ":")
	return &Store{
		valkey: valkeyClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(s.key(key)).Build()).AsBytes()
	if err != nil {
		valkeyErr, ok := valkey.IsValkeyErr(err)
		if ok && valkeyErr.IsNil() {
			return nil, errors.Join(valkeyErr, serviceerr.ErrNotFound)
		}

		return nil, fmt.Errorf("executing get command: %w", err)
	}

	return bytes, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	cmd := s.valkey.B().Set().Key(s.key(key)).Value(valkey.BinaryString(value))

	var err error
	if s.ttl > 0 {
		err = s.valkey.Do(ctx, cmd.ExSeconds(expirySeconds(s.ttl)).Build()).Error()
	} else {
		err = s.valkey.Do(ctx, cmd.Build()).Error()
	}
	if err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.valkey.Do(ctx, s.valkey.B().Del().Key(s.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	return nil
}

func (s *Store) key(key string) string {
	return s.prefix + ":" + key
}

// expirySeconds rounds ttl up to whole seconds; EX rejects zero.
func expirySeconds(ttl time.Duration) int64 {
	return int64((ttl + time.Second - 1) / time.Second)
}
