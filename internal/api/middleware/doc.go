// Package middleware provides the HTTP middleware placed in front of the
// cloud endpoint.
//
//   - CORS: cross-origin access for the browser file widget
//   - RateLimit: per-IP token buckets kept in a bounded, expiring cache
//   - GlobalRateLimit: one token bucket shared by all clients
//
// Rejected requests receive the same {"message", "status": false} envelope
// as operation failures.
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
