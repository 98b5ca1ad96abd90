// Package logging provides structured logging for ragserve.
//
// Logger wraps zap with context-aware methods that attach correlation
// fields (trace_id, span_id, request.id) taken from the context:
//
//	logger.Info(ctx, "documents ingested", zap.Int("count", n))
//
// Output goes to stdout (json or console) and, when an OpenTelemetry
// LoggerProvider is supplied, through the otelzap bridge. Entries below
// Error may be sampled; Error and above never are.
package logging
