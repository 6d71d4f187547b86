// Package server exposes a small read-only HTTP surface for a process that
// hosts the sandbox:
//   - GET /health reports installation state; 503 while the bridge is down
//   - GET /metrics serves the Prometheus registry
//   - GET /stats summarises evaluation totals as JSON
//
// Requests pass through recovery, CORS and a global rate limit.
//
// Example Usage:
//
//	srv := server.New(server.DefaultConfig(), bridge.Default(),
//	    server.WithMetrics(monitoring.Default(), prometheus.DefaultGatherer))
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(context.Background())
package server
