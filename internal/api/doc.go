// Package api hosts the operator HTTP surface of the crawler. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/last for the stats of the most recent finished run.
//   - GET /v1/schedule for the trigger state and next run time.
//   - POST /v1/runs to start a crawl now; refused with 409 while one runs.
package api
