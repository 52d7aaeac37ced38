// Package main hosts the litcrawler entrypoint.
//
// Architecture overview:
//   - CLI: cmd wires cobra subcommands (serve, crawl, status). A persistent pre-run hook loads an optional .env via
//     godotenv, reads config through Viper, builds the zap logger and assembles the application in internal/server.
//   - Sources: internal/source adapters (arXiv Atom, PubMed E-utilities, bioRxiv details API) fetch through the
//     Colly-based fetcher, honour per-host token buckets from internal/policy/ratelimit and retry with exponential
//     backoff. Raw responses are optionally archived to the configured BlobStore (memory/local/GCS).
//   - Pipeline: internal/orchestrator fans a keyword out to the requested sources, either one at a time with an
//     inter-source delay or in parallel on a bounded errgroup. Records are normalized, deduplicated by exact key and
//     title similarity, optionally classified, then persisted to the RecordStore (memory/Postgres/MySQL/Mongo).
//   - Async tasks: POST /api/crawler/v2/tasks enqueues onto a bounded in-memory queue drained by a fixed worker pool.
//     Completed crawls publish a compact notification to Pub/Sub when a topic is configured.
//   - Observability: zap logs carry request and task IDs; Prometheus counters/histograms track API traffic, crawl runs
//     and per-source fetches; progress events are batched by a Hub and fanned out to log, Prometheus and Postgres
//     run-history sinks. OpenTelemetry spans wrap each crawl and its fetch, dedup and persist stages when
//     tracing is enabled.
//
// Operational notes:
//   - Shutdown: SIGINT/SIGTERM stops the HTTP server, closes the task queue and waits for workers to drain within
//     server.shutdown_timeout_seconds.
//   - Rate limiting: sources share a global limiter (crawler.rate_per_second, crawler.rate_burst); PubMed is held to
//     three requests per second.
//
// Quick checklist:
//   - Configure env vars: CRAWLER_SERVER_PORT, CRAWLER_CRAWLER_SOURCES, CRAWLER_CRAWLER_MAX_PER_SOURCE,
//     CRAWLER_STORAGE_BACKEND with its DSN/URI, CRAWLER_ARCHIVE_BACKEND, and CRAWLER_PUBSUB_* when notifications
//     are wanted.
//   - One-shot crawl: go run ./cmd/litcrawler crawl "crispr" --source arxiv,pubmed -o yaml
//   - Service: go run ./cmd/litcrawler serve --config config.yaml
package main
