// Package middleware provides the gin middleware stack of the admin API.
//
//   - CORS: cross-origin reads without credentials
//   - RateLimit: per-IP token buckets, idle clients are swept
//   - RequestID: X-Request-ID propagation using ULID-based IDs
//   - AccessLog: one zap line per request
//
// Example Usage:
//
//	router.Use(middleware.RequestID())
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
