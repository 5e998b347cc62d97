// Package middleware provides the HTTP middleware mounted in front of the
// WebDriver routes.
//
//   - CORS: cross-origin access for browser-hosted clients (gin-contrib/cors)
//   - RateLimit: per-IP token buckets with idle client eviction
//   - GlobalRateLimit: one token bucket for the whole server
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
