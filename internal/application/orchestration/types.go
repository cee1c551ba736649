package orchestration

import (
	"time"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/task"
)

// Strategy selects which pending task lease_next_task dispatches next.
type Strategy string

const (
	// FIFO dispatches the earliest-scheduled pending task.
	FIFO Strategy = "fifo"
	// Priority dispatches the lowest TaskPolicy.Priority, ties broken FIFO.
	Priority Strategy = "priority"
	// FairnessByKind avoids repeating the immediately-previous dispatched
	// kind when any other kind is available.
	FairnessByKind Strategy = "fairness_by_kind"
)

// leaseState is the engine's bookkeeping record for a task's current lease.
type leaseState struct {
	version        uint64
	token          uuid.UUID
	workerID       uuid.UUID
	leasedAt       time.Time
	leaseExpiresAt time.Time
}

func (ls leaseState) toLease(t task.Task) task.Lease {
	return task.Lease{
		Task:           t,
		WorkerID:       ls.workerID,
		LeasedAt:       ls.leasedAt,
		LeaseExpiresAt: ls.leaseExpiresAt,
		LeaseVersion:   ls.version,
		LeaseToken:     ls.token,
	}
}

// workflowContext is extracted from a task's payload when that task was
// dispatched as part of a workflow run.
type workflowContext struct {
	workflowID uuid.UUID
	runID      uuid.UUID
	stepID     uuid.UUID
}

func extractWorkflowContext(t *task.Task) (workflowContext, bool) {
	if t.Payload == nil {
		return workflowContext{}, false
	}
	workflowIDStr, _ := t.Payload["workflow_id"].(string)
	runIDStr, _ := t.Payload["workflow_run_id"].(string)
	stepIDStr, _ := t.Payload["step_id"].(string)
	if workflowIDStr == "" || runIDStr == "" || stepIDStr == "" {
		return workflowContext{}, false
	}
	workflowID, err := uuid.Parse(workflowIDStr)
	if err != nil {
		return workflowContext{}, false
	}
	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		return workflowContext{}, false
	}
	stepID, err := uuid.Parse(stepIDStr)
	if err != nil {
		return workflowContext{}, false
	}
	return workflowContext{workflowID: workflowID, runID: runID, stepID: stepID}, true
}

func stepPayload(workflowID, runID, stepID uuid.UUID, input map[string]any) map[string]any {
	return map[string]any{
		"workflow_id":     workflowID.String(),
		"workflow_run_id": runID.String(),
		"step_id":         stepID.String(),
		"input":           input,
	}
}
