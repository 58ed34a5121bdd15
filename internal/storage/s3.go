package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ahmad-alkadri/depot-upload/internal/config"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store stores objects in AWS S3 using the default credential chain.
type S3Store struct {
	client S3API
	bucket string
	logger *slog.Logger
}

// NewS3Store loads the AWS configuration and verifies the bucket.
//
// When cfg.S3Endpoint is set the client uses it with path-style addressing,
// which is what LocalStack and most S3-compatible services expect.
func NewS3Store(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	store := NewS3StoreWithClient(client, cfg.Bucket, logger)
	if err := store.ensureBucket(ctx, cfg.CreateBucket, cfg.AWSRegion); err != nil {
		return nil, err
	}
	return store, nil
}

// NewS3StoreWithClient wraps an existing client without touching the bucket.
func NewS3StoreWithClient(client S3API, bucket string, logger *slog.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, logger: logger}
}

func (s *S3Store) ensureBucket(ctx context.Context, create bool, region string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	if !errors.As(err, &notFound) || !create {
		return newObjectError("bucket", s.bucket, "", fmt.Errorf("bucket is not accessible: %w", err))
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return newObjectError("bucket", s.bucket, "", fmt.Errorf("error creating bucket: %w", err))
	}
	s.logger.Info("created bucket", "bucket", s.bucket)
	return nil
}

// Store uploads content under key. Non-seekable readers are buffered because
// the SDK needs to rewind the body when signing and retrying.
func (s *S3Store) Store(ctx context.Context, key string, content io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body, ok := content.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(content)
		if err != nil {
			return newObjectError("store", s.bucket, key, err)
		}
		body = bytes.NewReader(data)
		size = int64(len(data))
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return newObjectError("store", s.bucket, key, err)
	}

	s.logger.Debug("stored object", "bucket", s.bucket, "key", key, "size", size)
	return nil
}

// Fetch retrieves the object stored under key.
func (s *S3Store) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, newObjectError("fetch", s.bucket, key, ErrNotFound)
		}
		return nil, newObjectError("fetch", s.bucket, key, err)
	}
	return out.Body, nil
}
