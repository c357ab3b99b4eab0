// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - POST /api/xhs/crawler runs one crawl job synchronously.
//   - POST /api/xhs/check_login and /api/xhs/login manage account sessions.
//   - GET /api/xhs/status, /api/xhs/accounts and /api/xhs/jobs/{job_id} for inspection.
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//
// Platform routes answer HTTP 200 with a {code, msg, data} envelope; code 0 is success.
package api
