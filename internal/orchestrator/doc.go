// Package orchestrator coordinates one keyword crawl end to end: it resolves
// the source set, fans the request out to adapters sequentially or over a
// bounded shared pool, then normalizes, deduplicates, optionally classifies
// and persists the merged batch before reporting the outcome.
//
// Crawl never returns an error. Adapter failures, per-record persistence
// failures and panics are contained and encoded in the CrawlResult.
package orchestrator
