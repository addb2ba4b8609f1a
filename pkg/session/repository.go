package session

import "context"

// Store is the synchronous key-value substrate a Record persists into.
// Get returns an error matching ErrNotFound when the key is absent, and
// Delete of an absent key succeeds.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
