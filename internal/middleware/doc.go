// Package middleware implements the request front door: access logging,
// security headers and per-client rate limits.
//
// Each middleware is built once at startup from explicit configuration and
// handed to the router; nothing here keeps package-level state.
//
//	limiter := middleware.NewRateLimiter(limits, logger, observer)
//	r.Use(middleware.RequestLogger(logger, observer))
//	r.Use(middleware.SecurityHeaders(securityOpts))
//	r.Use(limiter.Global())
//	r.With(limiter.Upload()).Post("/", handler.Upload)
package middleware

import "time"

// Observer receives request-level measurements. *metrics.Metrics
// implements it.
type Observer interface {
	ObserveRequest(method string, status int, duration time.Duration)
	ObserveRateLimited(limit string)
}

type noopObserver struct{}

func (noopObserver) ObserveRequest(string, int, time.Duration) {}
func (noopObserver) ObserveRateLimited(string)                 {}

func observerOrNoop(o Observer) Observer {
	if o == nil {
		return noopObserver{}
	}
	return o
}
