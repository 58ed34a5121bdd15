package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmad-alkadri/depot-upload/internal/logging"
)

type fakeS3 struct {
	mu            sync.Mutex
	bucketExists  bool
	headErr       error
	putErr        error
	objects       map[string][]byte
	contentTypes  map[string]string
	createdBucket *s3.CreateBucketInput
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		bucketExists: true,
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if !f.bucketExists {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createdBucket = in
	f.bucketExists = true
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.contentTypes[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store_StoreAndFetch(t *testing.T) {
	fake := newFakeS3()
	store := NewS3StoreWithClient(fake, "uploads", logging.Discard())
	ctx := context.Background()

	// io.MultiReader is not seekable, so the store buffers it.
	content := io.MultiReader(strings.NewReader("hello "), strings.NewReader("world"))
	require.NoError(t, store.Store(ctx, "greeting.txt", content, 11, "text/plain"))
	assert.Equal(t, "text/plain", fake.contentTypes["greeting.txt"])

	rc, err := store.Fetch(ctx, "greeting.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestS3Store_DefaultContentType(t *testing.T) {
	fake := newFakeS3()
	store := NewS3StoreWithClient(fake, "uploads", logging.Discard())

	require.NoError(t, store.Store(context.Background(), "blob.json", strings.NewReader("{}"), 2, ""))
	assert.Equal(t, "application/octet-stream", fake.contentTypes["blob.json"])
}

func TestS3Store_FetchMissing(t *testing.T) {
	store := NewS3StoreWithClient(newFakeS3(), "uploads", logging.Discard())

	_, err := store.Fetch(context.Background(), "absent.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3Store_StoreFailure(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("AccessDenied")
	store := NewS3StoreWithClient(fake, "uploads", logging.Discard())

	err := store.Store(context.Background(), "a.txt", strings.NewReader("x"), 1, "text/plain")

	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "store", storeErr.Op)
	assert.Equal(t, "uploads", storeErr.Bucket)
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestS3Store_EnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("existing bucket", func(t *testing.T) {
		fake := newFakeS3()
		store := NewS3StoreWithClient(fake, "uploads", logging.Discard())
		assert.NoError(t, store.ensureBucket(ctx, false, "us-east-1"))
		assert.Nil(t, fake.createdBucket)
	})

	t.Run("missing bucket fails without create", func(t *testing.T) {
		fake := newFakeS3()
		fake.bucketExists = false
		store := NewS3StoreWithClient(fake, "uploads", logging.Discard())
		assert.Error(t, store.ensureBucket(ctx, false, "us-east-1"))
	})

	t.Run("missing bucket is created with location constraint", func(t *testing.T) {
		fake := newFakeS3()
		fake.bucketExists = false
		store := NewS3StoreWithClient(fake, "uploads", logging.Discard())

		require.NoError(t, store.ensureBucket(ctx, true, "eu-west-1"))
		require.NotNil(t, fake.createdBucket)
		require.NotNil(t, fake.createdBucket.CreateBucketConfiguration)
		assert.Equal(t, types.BucketLocationConstraint("eu-west-1"),
			fake.createdBucket.CreateBucketConfiguration.LocationConstraint)
	})

	t.Run("permission errors are not treated as missing", func(t *testing.T) {
		fake := newFakeS3()
		fake.headErr = errors.New("Forbidden")
		store := NewS3StoreWithClient(fake, "uploads", logging.Discard())

		assert.Error(t, store.ensureBucket(ctx, true, "us-east-1"))
		assert.Nil(t, fake.createdBucket)
	})
}
