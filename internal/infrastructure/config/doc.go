// Package config loads server configuration from the environment.
//
// Every field has an envconfig tag and a default, so the server starts with
// no environment at all. Command-line flags in cmd/server override the
// loaded values.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
package config
