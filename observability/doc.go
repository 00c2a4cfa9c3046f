// Package observability provides OpenTelemetry metrics for batchgen.
// MetricsExtension implements lifecycle hooks to count job and batch
// outcomes; RetryMetrics is a retry.Observer that records attempts,
// backoff delays and exhausted loops.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
