package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ride-core"

// StartPlanSpan starts a span covering one plan execution.
func StartPlanSpan(ctx context.Context, planID, taskType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "plan.execute",
		trace.WithAttributes(
			attribute.String("plan.id", planID),
			attribute.String("plan.task_type", taskType),
		),
	)
}

// StartStepSpan starts a span for a single step within a plan.
func StartStepSpan(ctx context.Context, planID, stepID, capability string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "plan.step",
		trace.WithAttributes(
			attribute.String("plan.id", planID),
			attribute.String("step.id", stepID),
			attribute.String("step.capability", capability),
		),
	)
}
