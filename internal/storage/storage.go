// Package storage provides the object store clients that persist uploaded
// files into a single bucket.
//
// Every backend implements ObjectStore. Clients are built once at startup by
// New and shared read-only across requests.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ahmad-alkadri/depot-upload/internal/config"
)

// ErrNotFound is returned (wrapped in *Error) when a key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore stores and retrieves named objects in one bucket.
type ObjectStore interface {
	// Store uploads content under key, replacing any existing object. It
	// returns only after the remote service acknowledged the write.
	Store(ctx context.Context, key string, content io.Reader, size int64, contentType string) error

	// Fetch opens the object stored under key. The caller closes the reader.
	Fetch(ctx context.Context, key string) (io.ReadCloser, error)
}

// Error describes a failed storage operation.
type Error struct {
	// Op is the operation that failed ("store", "fetch", "bucket").
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("storage.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newObjectError(op, bucket, key string, err error) *Error {
	return &Error{Op: op, Bucket: bucket, Key: key, Err: err}
}

// New builds the object store selected by cfg.StorageBackend. Remote
// backends verify (or create, with cfg.CreateBucket) the bucket before
// returning, so a misconfigured store fails at startup.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ObjectStore, error) {
	var (
		store ObjectStore
		err   error
	)
	switch cfg.StorageBackend {
	case config.BackendMinio:
		store, err = NewMinioStore(ctx, cfg, logger)
	case config.BackendS3:
		store, err = NewS3Store(ctx, cfg, logger)
	case config.BackendGCS:
		store, err = NewGCSStore(ctx, cfg, logger)
	case config.BackendMemory:
		logger.Warn("using in-memory storage; uploads are lost on restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
