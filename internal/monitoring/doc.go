/*
Package monitoring collects Prometheus metrics for sandbox runtimes.

# Overview

Metrics track the lifecycle of runtimes and contexts, every boundary
crossing (eval, set_global, get_global, call) with its outcome and latency,
and the installation handshake.

# Usage

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	cfg := sandbox.DefaultConfig()
	cfg.Metrics = metrics

	// Or share the process collector registered on the default registry
	cfg.Metrics = monitoring.Default()

A nil *Metrics is valid and records nothing.
*/
package monitoring
