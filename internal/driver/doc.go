// Package driver is the client side of the native automation endpoint that
// the instrumentation process exposes on the server's port.
//
// Requests go through resty over a retryablehttp transport, a token bucket
// limiter and a circuit breaker. A tripped breaker fails fast with
// ErrUnavailable.
package driver
