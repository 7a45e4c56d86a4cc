// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for the pinboard service.
//
// Logging is plain log/slog with a redacting ReplaceAttr so bot tokens and
// database credentials never reach the log sink. Metrics are registered
// against a caller supplied prometheus.Registerer so tests can use an
// isolated registry. Tracing falls back to a no-op tracer when no collector
// endpoint is configured.
package observability
