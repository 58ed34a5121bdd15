package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmad-alkadri/depot-upload/internal/config"
	"github.com/ahmad-alkadri/depot-upload/internal/storage"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "depot dev\n"))
	assert.Contains(t, out, "commit:")

	out, err = execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestServeCmd_InvalidConfig(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	t.Setenv("BUCKET_NAME", "")

	_, err := execute(t, "serve", "--backend", "memory")
	var cfgErr *config.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "SECRET_KEY is required")
	assert.NotContains(t, err.Error(), "BUCKET_NAME")
}

func TestFetchCmd_RejectsUnsanitizedKey(t *testing.T) {
	_, err := execute(t, "fetch", "../etc/passwd.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid object key")
}

func TestFetchCmd_MissingObject(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")

	_, err := execute(t, "fetch", "report.pdf")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFetchObject(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Store(ctx, "notes.txt", strings.NewReader("hello"), 5, "text/plain"))
	open := func(context.Context) (storage.ObjectStore, error) { return store, nil }

	t.Run("stdout", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, fetchObject(ctx, open, "notes.txt", "", &out, time.Second))
		assert.Equal(t, "hello", out.String())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, fetchObject(ctx, open, "notes.txt", path, nil, time.Second))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	t.Run("store init error", func(t *testing.T) {
		failing := func(context.Context) (storage.ObjectStore, error) { return nil, errors.New("no route to host") }
		err := fetchObject(ctx, failing, "notes.txt", "", &bytes.Buffer{}, time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize storage")
	})
}

// stallingStore blocks Fetch until ctx is done, or returns a reader that is
// slower than any open deadline.
type stallingStore struct {
	stallOpen bool
	readDelay time.Duration
}

func (s *stallingStore) Store(context.Context, string, io.Reader, int64, string) error {
	return nil
}

func (s *stallingStore) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.stallOpen {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return io.NopCloser(&slowReader{ctx: ctx, delay: s.readDelay, data: []byte("hello")}), nil
}

type slowReader struct {
	ctx   context.Context
	delay time.Duration
	data  []byte
	done  bool
}

func (r *slowReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	time.Sleep(r.delay)
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	r.done = true
	return copy(p, r.data), nil
}

func TestFetchObject_OpenTimeout(t *testing.T) {
	open := func(context.Context) (storage.ObjectStore, error) {
		return &stallingStore{stallOpen: true}, nil
	}

	err := fetchObject(context.Background(), open, "notes.txt", "", &bytes.Buffer{}, 20*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out opening notes.txt")
}

func TestFetchObject_SlowDownloadOutlivesOpenTimeout(t *testing.T) {
	open := func(context.Context) (storage.ObjectStore, error) {
		return &stallingStore{readDelay: 100 * time.Millisecond}, nil
	}

	var out bytes.Buffer
	require.NoError(t, fetchObject(context.Background(), open, "notes.txt", "", &out, 20*time.Millisecond))
	assert.Equal(t, "hello", out.String())
}

func TestWriteObject_RemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	body := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errors.New("connection reset")))

	err := writeObject(body, path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "partial download should be removed")
}

func TestLoadDotEnvFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORAGE_BACKEND=memory\n"), 0o600))
	t.Setenv("STORAGE_BACKEND", "")
	os.Unsetenv("STORAGE_BACKEND")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--env-file", path, "fetch", "report.pdf"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
