// Package api hosts the HTTP server operators scrape while a batch runs.
// Routes:
//   - GET /healthz and /readyz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /progress for a JSON snapshot of the current run.
//   - GET /progress/last for the most recently completed target.
package api
