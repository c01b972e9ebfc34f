/*
Package monitoring provides metrics collection for the guest host.

# Overview

Prometheus metrics for permission decisions, guest evaluation, promise
settlement through the bridge, host calls made by guests, and the admin API.
Each Metrics value owns its registry so several hosts (and tests) can coexist
in one process. All recording methods accept a nil receiver.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))

	metrics.RecordPermission("read", false)

	metrics.RecordHostCall("host.fs.readTextFile", "ok")

# Metrics Endpoint

	handler := promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})
	router.GET("/metrics", gin.WrapH(handler))
*/
package monitoring
