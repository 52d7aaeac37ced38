// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that the orchestrator uses to report crawl stages. It batches
// events on a background goroutine and fans them out to pluggable sinks such as
// Prometheus metrics, structured logs or the run history store.
package progress
