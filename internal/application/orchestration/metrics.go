package orchestration

import (
	"context"
	"time"
)

// Metrics receives counts and durations for the scheduler and workflow
// runtime, so an embedding process can export them without Engine
// depending on any particular metrics backend.
type Metrics interface {
	IncTaskScheduled(ctx context.Context, kind string)
	IncTaskLeased(ctx context.Context, kind string)
	IncTaskCompleted(ctx context.Context, kind string)
	IncTaskFailed(ctx context.Context, kind string, retried bool)
	ObserveTaskDuration(ctx context.Context, kind string, d time.Duration)
	IncWorkflowScheduled(ctx context.Context)
	SetInflightLeases(ctx context.Context, delta int)
}

type noopMetrics struct{}

func (noopMetrics) IncTaskScheduled(context.Context, string)                   {}
func (noopMetrics) IncTaskLeased(context.Context, string)                      {}
func (noopMetrics) IncTaskCompleted(context.Context, string)                   {}
func (noopMetrics) IncTaskFailed(context.Context, string, bool)                {}
func (noopMetrics) ObserveTaskDuration(context.Context, string, time.Duration) {}
func (noopMetrics) IncWorkflowScheduled(context.Context)                       {}
func (noopMetrics) SetInflightLeases(context.Context, int)                     {}
