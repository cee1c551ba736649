package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/watchdogstudios/cassandra-core/internal/application/orchestration"
)

var _ orchestration.Metrics = (*OrchestrationMetrics)(nil)

// OrchestrationMetrics records scheduler and workflow-runtime counts and
// durations for internal/application/orchestration.Engine.
type OrchestrationMetrics struct {
	tasksScheduled     metric.Int64Counter
	tasksLeased        metric.Int64Counter
	tasksCompleted     metric.Int64Counter
	tasksFailed        metric.Int64Counter
	taskDuration       metric.Float64Histogram
	workflowsScheduled metric.Int64Counter
	inflightLeases     metric.Int64UpDownCounter
}

func newOrchestrationMetrics(mp metric.MeterProvider) (*OrchestrationMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(OrchestrationMetrics)
	var err error

	if m.tasksScheduled, err = meter.Int64Counter(
		"orchestration_tasks_scheduled_total",
		metric.WithDescription("Total number of tasks scheduled"),
	); err != nil {
		return nil, err
	}
	if m.tasksLeased, err = meter.Int64Counter(
		"orchestration_tasks_leased_total",
		metric.WithDescription("Total number of tasks leased to a worker"),
	); err != nil {
		return nil, err
	}
	if m.tasksCompleted, err = meter.Int64Counter(
		"orchestration_tasks_completed_total",
		metric.WithDescription("Total number of tasks completed"),
	); err != nil {
		return nil, err
	}
	if m.tasksFailed, err = meter.Int64Counter(
		"orchestration_tasks_failed_total",
		metric.WithDescription("Total number of tasks that ended in failure (retried or terminal)"),
	); err != nil {
		return nil, err
	}
	if m.taskDuration, err = meter.Float64Histogram(
		"orchestration_task_duration_seconds",
		metric.WithDescription("Duration from lease start to completion for a task"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.workflowsScheduled, err = meter.Int64Counter(
		"orchestration_workflows_scheduled_total",
		metric.WithDescription("Total number of workflow runs scheduled"),
	); err != nil {
		return nil, err
	}
	if m.inflightLeases, err = meter.Int64UpDownCounter(
		"orchestration_inflight_leases",
		metric.WithDescription("Number of tasks currently holding an active lease"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *OrchestrationMetrics) IncTaskScheduled(ctx context.Context, kind string) {
	m.tasksScheduled.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *OrchestrationMetrics) IncTaskLeased(ctx context.Context, kind string) {
	m.tasksLeased.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *OrchestrationMetrics) IncTaskCompleted(ctx context.Context, kind string) {
	m.tasksCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *OrchestrationMetrics) IncTaskFailed(ctx context.Context, kind string, retried bool) {
	m.tasksFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("retried", retried),
	))
}

func (m *OrchestrationMetrics) ObserveTaskDuration(ctx context.Context, kind string, d time.Duration) {
	m.taskDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *OrchestrationMetrics) IncWorkflowScheduled(ctx context.Context) {
	m.workflowsScheduled.Add(ctx, 1)
}

func (m *OrchestrationMetrics) SetInflightLeases(ctx context.Context, delta int) {
	m.inflightLeases.Add(ctx, int64(delta))
}
