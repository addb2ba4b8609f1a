package sessionfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/openkcm/pkce-session/internal/serviceerr"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600

	lockTimeout       = 5 * time.Second
	lockRetryInterval = 100 * time.Millisecond
)

// Store keeps each session record in its own file "<dir>/<key>.json",
// readable by the owner only. Writes and deletes hold an advisory lock so
// that several processes can share the directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, serviceerr.ErrNotFound
		}

		return nil, fmt.Errorf("reading session file: %w", err)
	}

	return data, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	return s.locked(ctx, path, func() error {
		// Write to a temporary file first so readers never see a partial record.
		tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*.tmp")
		if err != nil {
			return fmt.Errorf("creating temporary session file: %w", err)
		}
		defer os.Remove(tmp.Name())

		if err := tmp.Chmod(filePerm); err != nil {
			tmp.Close()
			return fmt.Errorf("setting session file permissions: %w", err)
		}
		if _, err := tmp.Write(value); err != nil {
			tmp.Close()
			return fmt.Errorf("writing session file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("closing session file: %w", err)
		}

		if err := os.Rename(tmp.Name(), path); err != nil {
			return fmt.Errorf("replacing session file: %w", err)
		}

		return nil
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	return s.locked(ctx, path, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing session file: %w", err)
		}

		return nil
	})
}

func (s *Store) locked(ctx context.Context, path string, fn func() error) error {
	fileLock := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("acquiring session file lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquiring session file lock: timeout after %v", lockTimeout)
	}
	defer fileLock.Unlock()

	return fn()
}

// path maps a record key onto a file inside the store directory. Keys that
// would escape the directory are rejected.
func (s *Store) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid session key %q", key)
	}

	return filepath.Join(s.dir, key+".json"), nil
}
