// Package source holds the literature source adapters (arXiv, PubMed, bioRxiv and
// a mock generator) plus the HTTP plumbing they share: rate limiting, retries,
// status checks and optional raw response archiving.
package source
