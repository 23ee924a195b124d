package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore writes objects under a local directory, mirroring the key layout as paths.
// Used for local runs without object storage.
type FSStore struct {
	dir string
}

// NewFSStore returns an FSStore rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("fs: directory is required")
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fs: put %s: %w", key, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("fs: put %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("fs: put %s: %w", key, err)
	}
	return nil
}
