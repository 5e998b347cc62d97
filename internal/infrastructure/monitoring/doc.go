/*
Package monitoring provides Prometheus metrics for the automation server.

# Overview

Metrics cover the HTTP surface (latency, throughput, size), the session
lifecycle (created, rejected by reason, started without a native driver,
live count) and timed session operations.

# Usage

	// Metrics on an isolated registry
	metrics := monitoring.NewRegistryMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Session lifecycle events
	deps.Metrics = metrics

	// Time operations
	timer := monitoring.NewTimer(metrics, "session.create")
	s, err := mgr.Create(ctx, caps)
	timer.Stop(err)

# Metrics Endpoint

	handler := promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{})
	router.GET("/metrics", gin.WrapH(handler))
*/
package monitoring
