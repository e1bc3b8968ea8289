// Package api hosts the HTTP server, middleware, and handlers for the indexer.
// Routes:
//   - GET /api/startIndexing starts an indexing job in the background.
//   - GET /api/statistics reports per-site status and page counts.
//   - GET /healthz and /readyz for Kubernetes liveness and readiness checks.
//   - GET /metrics for Prometheus scraping.
package api
