/*
Package monitoring provides Prometheus metrics for the file service.

# Overview

Each Metrics value owns a private registry carrying the Go and process
collectors plus the service's own series:

- HTTP request metrics (latency, throughput, size) keyed by route template
- Operation metrics (calls, duration, errors by kind)
- Archive engine throughput (entries and bytes, build vs extract)
- Cached principal count and uptime

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "archive")
	// ... perform operation ...
	timer.Stop("success")
*/
package monitoring
