//go:build integration
// +build integration

package server

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"

	"github.com/ahmad-alkadri/depot-upload/internal/config"
	"github.com/ahmad-alkadri/depot-upload/internal/logging"
	"github.com/ahmad-alkadri/depot-upload/internal/storage"
)

// Run with: go test -tags=integration ./internal/server/...

func TestServer_MinioIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcminio.Run(ctx, "minio/minio:RELEASE.2024-01-16T16-07-38Z",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, container)

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.StorageBackend = config.BackendMinio
	cfg.Bucket = "depot-server-integration"
	cfg.CreateBucket = true
	cfg.MinioEndpoint = endpoint
	cfg.MinioAccessKey = container.Username
	cfg.MinioSecretKey = container.Password
	cfg.RateLimitUploadPerMinute = 100

	store, err := storage.New(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	s, err := New(cfg, store, logging.Discard())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	serveCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = s.Serve(serveCtx, ln) }()
	baseURL := "http://" + ln.Addr().String()

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	post := func(t *testing.T, filename string, content []byte) *http.Response {
		t.Helper()
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		w, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		resp, err := client.Post(baseURL+"/", mw.FormDataContentType(), &body)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp
	}

	t.Run("upload lands in bucket", func(t *testing.T) {
		content := []byte("%PDF-1.7 integration")
		resp := post(t, "report.pdf", content)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

		rc, err := store.Fetch(ctx, "report.pdf")
		require.NoError(t, err)
		defer rc.Close()
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("rejected upload is not stored", func(t *testing.T) {
		resp := post(t, "malware.exe", []byte("MZ"))
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

		_, err := store.Fetch(ctx, "malware.exe")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("concurrent uploads", func(t *testing.T) {
		var wg sync.WaitGroup
		names := []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"}
		for _, name := range names {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				post(t, name, []byte("payload "+name))
			}(name)
		}
		wg.Wait()

		for _, name := range names {
			rc, err := store.Fetch(ctx, name)
			require.NoError(t, err, name)
			_ = rc.Close()
		}
	})
}
