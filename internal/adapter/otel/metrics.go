package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Aristman/ride-core/internal/domain/plan"
)

const meterName = "ride-core"

// Metrics holds all plan execution metric instruments.
type Metrics struct {
	PlansStarted  metric.Int64Counter
	PlansFinished metric.Int64Counter
	StepsFinished metric.Int64Counter
	PlanDuration  metric.Float64Histogram
	StepDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.PlansStarted, err = meter.Int64Counter("ride.plans.started",
		metric.WithDescription("Number of plan executions started"))
	if err != nil {
		return nil, err
	}

	m.PlansFinished, err = meter.Int64Counter("ride.plans.finished",
		metric.WithDescription("Number of plan executions finished, by final state"))
	if err != nil {
		return nil, err
	}

	m.StepsFinished, err = meter.Int64Counter("ride.steps.finished",
		metric.WithDescription("Number of steps finished, by capability and outcome"))
	if err != nil {
		return nil, err
	}

	m.PlanDuration, err = meter.Float64Histogram("ride.plan.duration_seconds",
		metric.WithDescription("Plan execution duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.StepDuration, err = meter.Float64Histogram("ride.step.duration_seconds",
		metric.WithDescription("Step execution duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// PlanStarted records the start of a plan execution.
func (m *Metrics) PlanStarted(ctx context.Context) {
	m.PlansStarted.Add(ctx, 1)
}

// PlanFinished records a finished plan execution with its final state.
func (m *Metrics) PlanFinished(ctx context.Context, state plan.State, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("state", string(state)))
	m.PlansFinished.Add(ctx, 1, attrs)
	m.PlanDuration.Record(ctx, d.Seconds(), attrs)
}

// StepFinished records a finished step with its capability and outcome.
func (m *Metrics) StepFinished(ctx context.Context, capability plan.Capability, success bool, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("capability", string(capability)),
		attribute.Bool("success", success),
	)
	m.StepsFinished.Add(ctx, 1, attrs)
	m.StepDuration.Record(ctx, d.Seconds(), attrs)
}
