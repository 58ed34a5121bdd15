package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds the per-client request budgets.
type RateLimitConfig struct {
	Daily           int
	Hourly          int
	UploadPerMinute int
}

// RateLimiter owns the per-client counters. Counters live for the life of
// the process and are shared by all requests; build one per server.
type RateLimiter struct {
	daily  func(http.Handler) http.Handler
	hourly func(http.Handler) http.Handler
	upload func(http.Handler) http.Handler
}

// NewRateLimiter creates the global (daily, hourly) and upload-route limits,
// keyed by client IP. observer may be nil.
func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger, observer Observer) *RateLimiter {
	observer = observerOrNoop(observer)

	limit := func(name string, requests int, window time.Duration) func(http.Handler) http.Handler {
		return httprate.Limit(requests, window,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				observer.ObserveRateLimited(name)
				logger.Warn("rate limit exceeded", "limit", name, "remote", r.RemoteAddr, "path", r.URL.Path)
				http.Error(w, "Too many requests, please try again later.", http.StatusTooManyRequests)
			}),
		)
	}

	return &RateLimiter{
		daily:  limit("daily", cfg.Daily, 24*time.Hour),
		hourly: limit("hourly", cfg.Hourly, time.Hour),
		upload: limit("upload", cfg.UploadPerMinute, time.Minute),
	}
}

// Global applies the daily and hourly budgets.
func (l *RateLimiter) Global() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return l.daily(l.hourly(next))
	}
}

// Upload applies the per-minute budget of the upload route.
func (l *RateLimiter) Upload() func(http.Handler) http.Handler {
	return l.upload
}
