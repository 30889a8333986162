package schema

import "context"

// Introspection outcomes reported to a Recorder.
const (
	SourcePrimary     = "primary"
	SourceSecondary   = "secondary"
	SourceUnavailable = "unavailable"
)

// Recorder receives persistence-layer measurements. The telemetry package
// provides an OpenTelemetry implementation.
type Recorder interface {
	Introspected(ctx context.Context, table, source string)
	StatementRejected(ctx context.Context, table string, kind ErrorKind)
	FallbackTier(ctx context.Context, table, tier string)
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

func (NopRecorder) Introspected(context.Context, string, string)          {}
func (NopRecorder) StatementRejected(context.Context, string, ErrorKind) {}
func (NopRecorder) FallbackTier(context.Context, string, string)          {}
