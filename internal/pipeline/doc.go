// Package pipeline implements the per-crawl record transforms: normalization,
// in-batch and persisted deduplication, and title similarity scoring.
package pipeline
