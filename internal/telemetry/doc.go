// Package telemetry wires the OpenTelemetry SDK for ragserve.
//
// New builds tracer and meter providers that export over OTLP (gRPC or
// HTTP/protobuf) and installs them as the global providers, so packages
// that hold an otel.Tracer or use otel.GetMeterProvider pick them up. A
// configuration with nothing enabled returns an instance that hands out the
// global no-op providers.
//
// Exporter failures never stop the daemon. New records them and reports the
// instance as degraded:
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	for _, reason := range tel.DegradedReasons() {
//	    logger.Warn(ctx, "telemetry degraded", zap.String("reason", reason))
//	}
//
// Tests use NewTestTelemetry, which records spans in memory and reads
// metrics on demand.
package telemetry
