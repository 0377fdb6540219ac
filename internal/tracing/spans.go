package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrScopeName    = "scope.name"
	AttrScopeSize    = "scope.size"
	AttrComponentKey = "component.key"
	AttrPeers        = "scope.peers"
	AttrOutcome      = "scope.outcome"

	AttrRunID      = "run.id"
	AttrManifest   = "run.manifest"
	AttrStepIndex  = "run.step.index"
	AttrStepAction = "run.step.action"

	AttrErrorMessage = "error.message"
	AttrErrorType    = "error.type"
)

// Span names.
const (
	SpanScopeRegister   = "scope.register"
	SpanScopeUnregister = "scope.unregister"
	SpanScopeClear      = "scope.clear"
	SpanManifestRun     = "manifest.run"
	SpanManifestStep    = "manifest.step"
)

// RecordOutcome sets the span status from err and tags it with outcome.
func RecordOutcome(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String(AttrOutcome, outcome))
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
