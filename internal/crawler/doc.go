// Package crawler defines the domain types and collaborator interfaces shared by
// the literature crawl pipeline: source adapters, the record store, the metrics
// sink, and the optional classifier.
package crawler
