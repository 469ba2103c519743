// Package storage provides create-only object stores for pipeline snapshots.
//
// A key, once written, is never overwritten: Put on an existing key fails with
// ErrExist. Keys use forward slashes regardless of backend.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/ajitpratap0/scholar/pkg/config"
	scholarerrors "github.com/ajitpratap0/scholar/pkg/errors"
)

var (
	// ErrExist is returned by Put when the key is already present.
	ErrExist = errors.New("storage: object already exists")
	// ErrNotExist is returned by Get when the key is absent.
	ErrNotExist = errors.New("storage: object does not exist")
)

// Store is a create-only object store.
type Store interface {
	// Put writes a new object. It never replaces an existing one.
	Put(ctx context.Context, key string, r io.Reader) error
	// Get opens an object for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Close releases backend clients.
	Close() error
}

// Open returns the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "local", "":
		store, err := NewLocalStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		store, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "gcs":
		store, err := NewGCSStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, scholarerrors.Newf(scholarerrors.ErrorTypeConfig, "unknown storage backend %q", cfg.Backend)
	}
}

// joinKey places key under prefix.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return path.Join(strings.Trim(prefix, "/"), key)
}

// stripKey removes prefix from a backend object name.
func stripKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimPrefix(strings.TrimPrefix(name, strings.Trim(prefix, "/")), "/")
}
