package orchestration

import (
	"time"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/workflow"
)

// runState is the engine's live bookkeeping for one WorkflowRun: the run
// itself plus a step lookup table, so pop/mark operations never need to
// re-fetch the owning Workflow template.
type runState struct {
	run        *workflow.Run
	stepLookup map[uuid.UUID]workflow.Step
}

func newRunState(run *workflow.Run, steps []workflow.Step) *runState {
	lookup := make(map[uuid.UUID]workflow.Step, len(steps))
	for _, step := range steps {
		lookup[step.ID] = step
	}
	return &runState{run: run, stepLookup: lookup}
}

// popReadySteps moves every waiting step whose dependencies are currently
// satisfied into inflight, and returns them in no particular order. Once a
// step is returned here it will never be returned again by this run.
func (rs *runState) popReadySteps() []workflow.Step {
	var ready []workflow.Step
	for id := range rs.run.WaitingSteps {
		step, ok := rs.stepLookup[id]
		if !ok {
			continue
		}
		if rs.dependenciesSatisfied(step) {
			ready = append(ready, step)
		}
	}
	for _, step := range ready {
		delete(rs.run.WaitingSteps, step.ID)
		rs.run.InflightSteps[step.ID] = struct{}{}
	}
	return ready
}

func (rs *runState) dependenciesSatisfied(step workflow.Step) bool {
	for _, dep := range step.Dependencies {
		if !rs.run.DependencySatisfied(dep) {
			return false
		}
	}
	return true
}

// markStepOutcome records success/failure of stepID's task_kind, advances
// current_step/updated_at, and finalizes the run when nothing is left
// waiting or inflight.
func (rs *runState) markStepOutcome(stepID uuid.UUID, success bool, now time.Time) {
	if step, ok := rs.stepLookup[stepID]; ok {
		if success {
			rs.run.CompletedKinds[step.TaskKind] = struct{}{}
		} else {
			rs.run.FailedKinds[step.TaskKind] = struct{}{}
		}
	}
	delete(rs.run.InflightSteps, stepID)
	id := stepID
	rs.run.CurrentStep = &id
	rs.run.UpdatedAt = now

	if rs.run.Finished() {
		rs.run.CompletedAt = &now
		if len(rs.run.FailedKinds) == 0 {
			rs.run.Status = workflow.RunCompleted
		} else {
			rs.run.Status = workflow.RunFailed
		}
	}
}

func (rs *runState) isTerminal() bool {
	switch rs.run.Status {
	case workflow.RunCompleted, workflow.RunFailed, workflow.RunCancelled:
		return true
	default:
		return false
	}
}
