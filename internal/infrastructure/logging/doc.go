// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components accept a *Logger and fall back to a no-op logger when given
// nil, so collaborators can be built in tests without any logging setup.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	logger.ForSession(id).Info("Session created")
//	logger.Error("Instruments did not exit", zap.Error(err))
package logging
