package internal

import (
	"context"
	"sync"
)

// telemetry.go
// Lightweight telemetry hook layer used by the schema model service.
// Callers may register a real metrics emitter (or a test stub) via RegisterTelemetryEmitter.
// By default the emitter is a no-op.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {
		// noop by default
	}
)

// RegisterTelemetryEmitter registers a custom emitter function.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, name, labels, value)
}

// EmitConversionLatency records the duration (milliseconds) of one conversion.
// name: "schema_conversion_latency_ms" with label {"direction": "json_to_xsd"|"xsd_to_json"|"json_to_metadata"}
func EmitConversionLatency(ctx context.Context, direction string, ms int64) {
	emit(ctx, "schema_conversion_latency_ms", map[string]string{"direction": direction}, ms)
}

// EmitConversionFailure counts failed conversions by surfaced error code.
// name: "schema_conversion_failures" with labels {"direction", "code"}
func EmitConversionFailure(ctx context.Context, direction, code string) {
	emit(ctx, "schema_conversion_failures", map[string]string{"direction": direction, "code": code}, int64(1))
}

// EmitArtifactsWritten records how many artifacts one save persisted.
// name: "schema_artifacts_written" with label {"operation": "<service operation>"}
func EmitArtifactsWritten(ctx context.Context, operation string, count int) {
	emit(ctx, "schema_artifacts_written", map[string]string{"operation": operation}, int64(count))
}
