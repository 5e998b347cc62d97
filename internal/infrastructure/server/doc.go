// Package server assembles the driver server: configuration, logging,
// metrics, tracing, the session registry and the gin router.
//
// Middleware order is recovery, tracing, metrics, CORS, then rate limiting.
// Serve blocks until its context is done and then shuts down gracefully:
// the HTTP listener stops first, every live session is stopped, and the
// shutdown registry sweeps whatever is left.
package server
