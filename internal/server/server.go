// Package server assembles the router and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ahmad-alkadri/depot-upload/internal/config"
	"github.com/ahmad-alkadri/depot-upload/internal/handlers"
	"github.com/ahmad-alkadri/depot-upload/internal/metrics"
	"github.com/ahmad-alkadri/depot-upload/internal/middleware"
	"github.com/ahmad-alkadri/depot-upload/internal/services"
	"github.com/ahmad-alkadri/depot-upload/internal/storage"
)

const (
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 5 * time.Minute
	idleTimeout       = 120 * time.Second
)

// Server is the upload web server. All shared state (store client, limiter
// counters, metrics registry) is created here once and injected.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	router  chi.Router
	metrics *metrics.Metrics
}

// New wires the upload service, handlers and middleware around store.
func New(cfg *config.Config, store storage.ObjectStore, logger *slog.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	var (
		recorder services.Recorder
		observer middleware.Observer
	)
	if cfg.MetricsEnabled {
		s.metrics = metrics.New(metrics.WithRuntimeCollectors(true))
		recorder = s.metrics
		observer = s.metrics
	}

	service := services.NewUploadService(store, services.NewContentTypeDetector(), cfg.StoreTimeout, logger, recorder)
	uploads, err := handlers.NewUploadHandler(
		service,
		handlers.NewSessionStore(cfg.SecretKey, cfg.ForceHTTPS),
		cfg.MaxUploadBytes,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload handler: %w", err)
	}

	secureHeaders, err := middleware.SecurityHeaders(middleware.SecurityOptions{
		Policy:     cfg.SecurityPolicy,
		CDNOrigin:  cfg.CDNOrigin,
		ForceHTTPS: cfg.ForceHTTPS,
	})
	if err != nil {
		return nil, err
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Daily:           cfg.RateLimitDaily,
		Hourly:          cfg.RateLimitHourly,
		UploadPerMinute: cfg.RateLimitUploadPerMinute,
	}, logger, observer)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestLogger(logger, observer))
	r.Use(chimw.Recoverer)
	r.Use(secureHeaders)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Global())
		r.Use(limiter.Upload())
		r.Get("/", uploads.Index)
		r.Post("/", uploads.Upload)
	})

	// Scrapes are exempt from the client budgets.
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router = r
	return s, nil
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on cfg.ServerAddr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ServerAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      s.cfg.StoreTimeout + readTimeout,
		IdleTimeout:       idleTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String(), "backend", s.cfg.StorageBackend)
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
