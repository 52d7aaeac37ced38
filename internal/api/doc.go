// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for probes, GET /metrics for Prometheus.
//   - GET|POST /api/crawler/v2/crawl runs a synchronous crawl.
//   - /api/crawler/v2/tasks submits and inspects asynchronous crawls.
//   - /api/crawler/v2/metrics and /health expose in-process crawl statistics.
//   - /api/crawler/v2/runs reads persisted run history through the
//     store.RunRepository interface when one is configured.
package api
