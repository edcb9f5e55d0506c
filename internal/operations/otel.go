package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edges-ai/vquant/internal/infrastructure"
)

const (
	tracerName = "vquant.operations"
)

// OperationTracer traces pipeline execution and records the operation
// business metrics.
type OperationTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.BusinessMetrics
}

// NewOperationTracer builds a tracer from the initialized OTel providers.
// metrics may be nil, which disables metric recording. With tracing
// disabled the global no-op provider keeps span calls safe.
func NewOperationTracer(providers *infrastructure.OTelProviders, metrics *infrastructure.BusinessMetrics) (*OperationTracer, error) {
	if providers == nil {
		return nil, fmt.Errorf("otel providers not initialized")
	}
	var tracer trace.Tracer
	if providers.TracerProvider != nil {
		tracer = providers.TracerProvider.Tracer(tracerName)
	} else {
		tracer = otel.Tracer(tracerName)
	}
	return &OperationTracer{
		tracer:  tracer,
		metrics: metrics,
	}, nil
}

// TraceOperation opens the root span for one operation run.
func (t *OperationTracer) TraceOperation(ctx context.Context, operationID string, req OperationRequest) (context.Context, trace.Span) {
	step := req.Step
	if step == "" {
		step = StepFullPipeline
	}
	return t.tracer.Start(ctx, "operation.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("operation.step", step),
		),
	)
}

// TraceStep opens a child span for one step execution attempt.
func (t *OperationTracer) TraceStep(ctx context.Context, operationID, stepID string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "operation.step."+stepID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("step.id", stepID),
			attribute.Int("step.attempt", attempt),
		),
	)
}

// RecordOperationCompletion closes out the operation span and records the
// execution metrics.
func (t *OperationTracer) RecordOperationCompletion(ctx context.Context, span trace.Span, operationID string, duration time.Duration, err error) {
	success := err == nil
	if span != nil {
		span.SetAttributes(
			attribute.Float64("operation.duration_seconds", duration.Seconds()),
			attribute.Bool("operation.success", success),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	infrastructure.RecordOperationMetrics(ctx, t.metrics, operationID, StepFullPipeline, duration, success, err)
}

// RecordStepCompletion closes out a step span and records the step metrics.
func (t *OperationTracer) RecordStepCompletion(ctx context.Context, span trace.Span, operationID, stepID string, duration time.Duration, err error) {
	success := err == nil
	if span != nil {
		span.SetAttributes(
			attribute.Float64("step.duration_seconds", duration.Seconds()),
			attribute.Bool("step.success", success),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	infrastructure.RecordOperationStepMetrics(ctx, t.metrics, operationID, stepID, duration, success)
}

// RecordActiveChange adjusts the active-operation gauge.
func (t *OperationTracer) RecordActiveChange(ctx context.Context, delta int64) {
	infrastructure.RecordActiveOperationChange(ctx, t.metrics, delta)
}

// RecordCancellation records an operation cancellation.
func (t *OperationTracer) RecordCancellation(ctx context.Context, operationID, reason string) {
	infrastructure.RecordOperationCancellation(ctx, t.metrics, operationID, reason)
}

// RecordStepProgress adds a progress event to the active span.
func (t *OperationTracer) RecordStepProgress(ctx context.Context, operationID, stepID string, progress int, message string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent("step.progress", trace.WithAttributes(
		attribute.String("operation.id", operationID),
		attribute.String("step.id", stepID),
		attribute.Int("step.progress", progress),
		attribute.String("step.message", message),
	))
}
