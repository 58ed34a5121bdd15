package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ahmad-alkadri/depot-upload/internal/config"
)

// GCSStore stores objects in a Google Cloud Storage bucket.
type GCSStore struct {
	bucket *gcs.BucketHandle
	name   string
	logger *slog.Logger
}

// NewGCSStore creates a GCS client from the credentials file, or from
// application default credentials when none is configured, and verifies the
// bucket exists. Buckets are never created: that needs a project the
// service is not configured with.
//
// cfg.GCSEndpoint points the client at an emulator such as fake-gcs-server;
// without a credentials file the emulator is called unauthenticated.
func NewGCSStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}
	if cfg.GCSEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.GCSEndpoint))
		if cfg.GCSCredentialsFile == "" {
			opts = append(opts, option.WithoutAuthentication())
		}
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCS client: %w", err)
	}

	bucket := client.Bucket(cfg.Bucket)
	if _, err := bucket.Attrs(ctx); err != nil {
		client.Close()
		if errors.Is(err, gcs.ErrBucketNotExist) {
			return nil, newObjectError("bucket", cfg.Bucket, "", fmt.Errorf("bucket does not exist"))
		}
		return nil, newObjectError("bucket", cfg.Bucket, "", err)
	}

	return &GCSStore{bucket: bucket, name: cfg.Bucket, logger: logger}, nil
}

// Store streams content into the object named key. A failed copy cancels
// the upload so no truncated object is committed.
func (g *GCSStore) Store(ctx context.Context, key string, content io.Reader, size int64, contentType string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.bucket.Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}

	if _, err := io.Copy(w, content); err != nil {
		cancel()
		_ = w.Close()
		return newObjectError("store", g.name, key, err)
	}
	if err := w.Close(); err != nil {
		return newObjectError("store", g.name, key, err)
	}

	g.logger.Debug("stored object", "bucket", g.name, "key", key, "size", size)
	return nil
}

// Fetch opens the object named key.
func (g *GCSStore) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, newObjectError("fetch", g.name, key, ErrNotFound)
		}
		return nil, newObjectError("fetch", g.name, key, err)
	}
	return r, nil
}
