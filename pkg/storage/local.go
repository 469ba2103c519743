package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore keeps objects as files under a root directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("local store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Root returns the directory objects are kept under.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Put creates the file exclusively; an existing file yields ErrExist.
func (s *LocalStore) Put(_ context.Context, key string, r io.Reader) error {
	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // key is built by the stager
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%s: %w", key, ErrExist)
		}
		return fmt.Errorf("failed to create %s: %w", key, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(target)
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	return nil
}

// Get opens the file for key.
func (s *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
		}
		return nil, err
	}
	return f, nil
}

// List walks the directory holding prefix and filters by key prefix.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	dir := s.root
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = s.path(prefix[:i])
	}

	var keys []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op.
func (s *LocalStore) Close() error {
	return nil
}
