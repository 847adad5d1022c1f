package documents

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"enrollgate/internal/completeness"
	"enrollgate/internal/platform/config"
	"enrollgate/pkg/platform/sentinel"
)

// MinioStore keeps payloads in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinio creates a client for cfg. It does not contact the server.
func NewMinio(cfg config.MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classify("check bucket", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return classify("create bucket", err)
	}
	return nil
}

// Put uploads the payload and returns its object name as the reference.
func (s *MinioStore) Put(ctx context.Context, u Upload) (completeness.Reference, error) {
	name := objectName(u)
	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, name, u.Body, u.Size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"doc-kind": string(u.Kind),
		},
	})
	if err != nil {
		return "", classify("upload document", err)
	}
	return completeness.Reference(name), nil
}

// Health checks that the bucket is reachable.
func (s *MinioStore) Health(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classify("check bucket", err)
	}
	if !ok {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func classify(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	if resp := minio.ToErrorResponse(err); resp.StatusCode >= 500 {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
