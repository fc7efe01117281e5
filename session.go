package instactl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SessionStore persists the opaque session blob produced by the Client.
// Load returns ErrNoSession when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
	Delete(ctx context.Context) error
	// Location names where the blob lives, for logs and status output.
	Location() string
}

// OpenSessionStore picks the backend from cfg.SessionStore: empty or "file"
// keeps the blob in cfg.SessionFile, a redis:// URL keeps it in redis under a
// key derived from cfg.SessionFile.
func OpenSessionStore(cfg Config) (SessionStore, error) {
	switch store := strings.TrimSpace(cfg.SessionStore); {
	case store == "", store == "file":
		return NewFileSessionStore(cfg.SessionFile), nil
	case strings.HasPrefix(store, "redis://"), strings.HasPrefix(store, "rediss://"):
		return NewRedisSessionStore(store, cfg.SessionFile)
	default:
		return nil, fmt.Errorf("unsupported session_store %q", store)
	}
}

// FileSessionStore keeps the session in a single file.
type FileSessionStore struct {
	path string
}

// NewFileSessionStore keeps the session at path.
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

func (s *FileSessionStore) Location() string { return s.path }

// Load returns ErrNoSession for a missing or empty file.
func (s *FileSessionStore) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, ErrNoSession
	}
	return data, nil
}

// Save replaces the file atomically with mode 0600.
func (s *FileSessionStore) Save(ctx context.Context, blob []byte) error {
	if err := writeFileAtomic(s.path, blob, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Delete removes the file; a missing file is not an error.
func (s *FileSessionStore) Delete(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", s.path, err)
	}
	return nil
}

// writeFileAtomic replaces path through a temp file in the same directory so
// readers never see a half-written file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
