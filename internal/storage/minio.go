package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ahmad-alkadri/depot-upload/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore stores objects through the MinIO client. It talks to MinIO
// itself as well as any S3-compatible endpoint, including the GCS
// interoperability API.
type MinioStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinioStore creates a new MinIO-backed store
func NewMinioStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return newMinioStore(ctx, client, cfg.Bucket, cfg.CreateBucket, logger)
}

func newMinioStore(ctx context.Context, client *minio.Client, bucket string, create bool, logger *slog.Logger) (*MinioStore, error) {
	store := &MinioStore{
		client: client,
		bucket: bucket,
		logger: logger,
	}
	if err := store.ensureBucket(ctx, create); err != nil {
		return nil, err
	}
	return store, nil
}

// ensureBucket fails when the bucket is missing, unless create is set.
func (m *MinioStore) ensureBucket(ctx context.Context, create bool) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return newObjectError("bucket", m.bucket, "", fmt.Errorf("error checking if bucket exists: %w", err))
	}
	if exists {
		return nil
	}
	if !create {
		return newObjectError("bucket", m.bucket, "", fmt.Errorf("bucket does not exist"))
	}

	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return newObjectError("bucket", m.bucket, "", fmt.Errorf("error creating bucket: %w", err))
	}
	m.logger.Info("created bucket", "bucket", m.bucket)
	return nil
}

// Store uploads content under key with the given content type.
func (m *MinioStore) Store(ctx context.Context, key string, content io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := m.client.PutObject(ctx, m.bucket, key, content, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return newObjectError("store", m.bucket, key, err)
	}

	m.logger.Debug("stored object", "bucket", m.bucket, "key", key, "size", info.Size, "etag", info.ETag)
	return nil
}

// Fetch retrieves the object stored under key.
func (m *MinioStore) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, newObjectError("fetch", m.bucket, key, err)
	}

	// GetObject is lazy; Stat surfaces missing keys and permission errors.
	if _, err := object.Stat(); err != nil {
		object.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, newObjectError("fetch", m.bucket, key, ErrNotFound)
		}
		return nil, newObjectError("fetch", m.bucket, key, err)
	}
	return object, nil
}
