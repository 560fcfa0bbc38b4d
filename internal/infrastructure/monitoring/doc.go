/*
Package monitoring provides metrics collection for the bridge and the
serial multiplexer.

# Overview

This package implements Prometheus-based metrics for the shared-memory ring
(bytes and messages per direction, fill level, notification outcomes, send
rejections, handshake latency, link state), the serial multiplexer (frames,
reconnects, desyncs) and the status HTTP server.

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(monitoring.Handler(reg)))

	// Time operations
	timer := monitoring.NewTimer(metrics, "kbuf_allocate")
	// ... perform operation ...
	timer.Stop("success")
*/
package monitoring
