// Package main is the entry point for the iOS driver server.
//
// The server accepts WebDriver session requests, matches them against the
// application catalog and the simulator SDKs installed on the host, and
// drives one instruments process per session.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server -port 4444 -catalog 'apps/**/*.yaml'
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
//	# Skip the xcodebuild probe
//	./server -sdks 8.4,9.1
//
// Signals:
//   - SIGINT, SIGTERM: every instruments process is killed, then the HTTP
//     server drains and sessions are released
package main
