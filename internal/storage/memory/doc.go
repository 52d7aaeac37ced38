// Package memory provides process-local stores for development, tests and
// single-instance deployments. Everything is lost on restart.
package memory
