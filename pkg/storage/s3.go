package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/ajitpratap0/scholar/pkg/config"
)

// s3PartSize keeps snapshots in a single PutObject, where If-None-Match is
// honored by every S3 implementation.
const s3PartSize = 512 * 1024 * 1024

// S3Store keeps objects in an S3 bucket.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store builds a client from the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Store{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = s3PartSize
			u.Concurrency = 1
		}),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Put uploads with If-None-Match so an existing key is never replaced.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(joinKey(s.prefix, key)),
		Body:        r,
		IfNoneMatch: aws.String("*"),
		ContentType: aws.String("application/vnd.apache.parquet"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if stderrors.As(err, &apiErr) && (apiErr.ErrorCode() == "PreconditionFailed" || apiErr.ErrorCode() == "ConditionalRequestConflict") {
			return fmt.Errorf("%s: %w", key, ErrExist)
		}
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Get streams the object body.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(joinKey(s.prefix, key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if stderrors.As(err, &noKey) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotExist)
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return out.Body, nil
}

// List pages through ListObjectsV2.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(joinKey(s.prefix, prefix)),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, stripKey(s.prefix, aws.ToString(obj.Key)))
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op; the SDK client holds no resources needing release.
func (s *S3Store) Close() error {
	return nil
}
