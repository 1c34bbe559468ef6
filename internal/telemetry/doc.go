// Package telemetry wires OpenTelemetry tracing and metrics for embedpipe.
//
// Traces and metrics are exported over OTLP (gRPC by default, or
// http/protobuf) to a collector. The embeddings package records its spans
// and instruments through whatever providers are installed here; with
// telemetry disabled the global no-op providers apply.
//
//	tel, err := telemetry.New(ctx, telemetry.ConfigFromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Settings:
//
//	"telemetry": {
//	  "enabled": true,
//	  "endpoint": "localhost:4317",
//	  "protocol": "grpc",
//	  "sample_rate": 0.25
//	}
//
// Tests use NewTestTelemetry, which records spans in memory and collects
// metrics through a ManualReader.
package telemetry
