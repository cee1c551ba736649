// Package workflow models an immutable template of steps and their
// task-kind dependencies, and a single execution instance (WorkflowRun)
// progressing through that template until terminal.
package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/task"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

// Step is one node of a workflow's dependency graph: it produces a Task of
// TaskKind once every dependency is satisfied.
type Step struct {
	ID           uuid.UUID
	Name         string
	TaskKind     string
	Dependencies []task.Dependency
}

// Workflow is an immutable template of steps. Created by an operator; never
// mutated after construction.
type Workflow struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Steps     []Step
	CreatedAt time.Time
}

// New validates a workflow template and assigns it a fresh id.
func New(tenantID uuid.UUID, name string, steps []Step, now time.Time) (*Workflow, error) {
	if name == "" {
		return nil, platform.InvalidInput("workflow name must not be empty")
	}
	if len(steps) == 0 {
		return nil, platform.InvalidInput("workflow must have at least one step")
	}
	seen := make(map[uuid.UUID]struct{}, len(steps))
	for i := range steps {
		if steps[i].ID == uuid.Nil {
			steps[i].ID = uuid.New()
		}
		if _, dup := seen[steps[i].ID]; dup {
			return nil, platform.InvalidInput("workflow step ids must be unique")
		}
		seen[steps[i].ID] = struct{}{}
	}
	return &Workflow{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		Steps:     steps,
		CreatedAt: now.UTC(),
	}, nil
}

// RunStatus is the WorkflowRun lifecycle state.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is one execution instance of a Workflow.
type Run struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	WorkflowID  uuid.UUID
	Status      RunStatus
	CurrentStep *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Context     map[string]any

	// WaitingSteps are step ids not yet dispatched.
	WaitingSteps map[uuid.UUID]struct{}
	// InflightSteps are dispatched but not yet resolved.
	InflightSteps map[uuid.UUID]struct{}
	// CompletedKinds and FailedKinds are monotonically growing sets of
	// task_kind outcomes observed so far in this run, tracked per kind
	// (not per step id) per the dependency-satisfaction rule.
	CompletedKinds map[string]struct{}
	FailedKinds    map[string]struct{}
}

// Finished reports whether the run has no waiting or inflight steps left.
func (r *Run) Finished() bool { return len(r.WaitingSteps) == 0 && len(r.InflightSteps) == 0 }

// DependencySatisfied reports whether dep is satisfied given the run's
// accumulated completed/failed kind sets. Pending/InProgress dependencies
// are always satisfied (they only gate ordering, never success).
func (r *Run) DependencySatisfied(dep task.Dependency) bool {
	switch dep.RequiredStatus {
	case task.StatusCompleted:
		_, ok := r.CompletedKinds[dep.TaskKind]
		return ok
	case task.StatusFailed:
		_, ok := r.FailedKinds[dep.TaskKind]
		return ok
	default:
		return true
	}
}
