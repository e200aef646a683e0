// Package api hosts the health/status HTTP server. Notable routes:
//   - GET /health for liveness probes.
//   - GET /status for the most recent cycle report.
//   - GET / for service information.
//   - GET /metrics for Prometheus scraping.
package api
