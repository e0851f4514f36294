// Package api hosts the HTTP server, middleware, and REST handlers for
// contact discovery. Notable routes:
//   - GET /healthz and /readyz for Kubernetes health checks.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/extract to search one website for contact addresses.
//   - POST /v1/lookup and GET /v1/models for the AI leadership lookup.
package api
