package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/scholar/pkg/config"
)

// GCSStore keeps objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSStore builds a client, using cfg.Credentials when set.
func NewGCSStore(ctx context.Context, cfg config.StorageConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		prefix: cfg.Prefix,
	}, nil
}

// Put writes with a DoesNotExist precondition.
func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader) error {
	obj := s.bucket.Object(joinKey(s.prefix, key)).If(storage.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/vnd.apache.parquet"

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		var apiErr *googleapi.Error
		if stderrors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return fmt.Errorf("%s: %w", key, ErrExist)
		}
		return fmt.Errorf("failed to close writer for %s: %w", key, err)
	}
	return nil
}

// Get opens a reader on the object.
func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.bucket.Object(joinKey(s.prefix, key)).NewReader(ctx)
	if err != nil {
		if stderrors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
		}
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return reader, nil
}

// List iterates objects under prefix.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: joinKey(s.prefix, prefix)})

	var keys []string
	for {
		attrs, err := it.Next()
		if stderrors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		keys = append(keys, stripKey(s.prefix, attrs.Name))
	}

	sort.Strings(keys)
	return keys, nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
