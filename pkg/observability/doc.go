// Package observability provides the operational plumbing shared by the
// access engine and its daemon: structured logging, Prometheus metrics,
// OpenTelemetry tracing, health probes and graceful shutdown.
//
// # Logging
//
// Logger wraps stdlib slog with a JSON handler and the chained field API
// the rest of the codebase uses:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("user_id", id).Info("permissions resolved")
//
// # Metrics
//
// NewMetrics registers the engine's Prometheus collectors (resolution
// counters and durations, admin overrides, cache hit ratio, reconciliation
// batches, revocation queue depth) on a private registry exposed via
// Handler().
//
// # Tracing
//
// InitOTel wires OTLP gRPC exporters for traces and metrics when enabled;
// the resolver and reconciler open spans through the global tracer.
package observability
