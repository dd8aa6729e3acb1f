// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/captures and /v1/captures/bulk to submit capture jobs, then
//     GET /v1/captures/{job_id} to poll them or POST
//     /v1/captures/{job_id}/cancel to stop them.
//   - /v1/domains for the bulk domain list, /v1/logs for the audit tail,
//     /v1/screenshots and /v1/gallery for browsing stored images, which are
//     served under /screenshots/.
package api
