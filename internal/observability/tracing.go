package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"git.home.luguber.info/inful/projectbuilder/internal/telemetry"
)

// tracer resolves the global provider on every call so a provider installed
// after package init is honoured.
func tracer() trace.Tracer {
	return otel.Tracer(telemetry.TracerName)
}

// StartBuildSpan starts the root span of a build run.
func StartBuildSpan(ctx context.Context, projectID, buildID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "build.run", trace.WithAttributes(
		attribute.String("project.id", projectID),
		attribute.String("build.id", buildID),
	))
}

// StartStageSpan starts a child span for one stage and tags the log context.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	ctx = WithStage(ctx, stage)
	lc := extractLogContext(ctx)
	return tracer().Start(ctx, "stage."+stage, trace.WithAttributes(
		attribute.String("build.id", lc.BuildID),
		attribute.String("stage.name", stage),
	))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
