package orchestration_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdogstudios/cassandra-core/internal/application/orchestration"
	"github.com/watchdogstudios/cassandra-core/internal/domain/task"
	"github.com/watchdogstudios/cassandra-core/internal/domain/workflow"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage/memory"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

func newTestEngine() (*orchestration.Engine, *memory.Stores) {
	stores := memory.New()
	return orchestration.New(stores.Tasks, stores.Workflows), stores
}

func TestScheduleAndLeaseTask(t *testing.T) {
	engine, _ := newTestEngine()
	tenantID := uuid.New()

	scheduled, err := engine.ScheduleTask(context.Background(), task.Request{TenantID: tenantID, Kind: "build"})
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, scheduled.Status)

	lease, err := engine.LeaseNextTask(context.Background(), tenantID, uuid.New(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, scheduled.ID, lease.Task.ID)
	assert.Equal(t, task.StatusInProgress, lease.Task.Status)
}

func TestLeaseNextTaskReturnsNilWhenEmpty(t *testing.T) {
	engine, _ := newTestEngine()
	lease, err := engine.LeaseNextTask(context.Background(), uuid.New(), uuid.New(), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, lease)
}

func TestCompleteTaskRemovesFromPending(t *testing.T) {
	engine, stores := newTestEngine()
	tenantID := uuid.New()

	scheduled, err := engine.ScheduleTask(context.Background(), task.Request{TenantID: tenantID, Kind: "build"})
	require.NoError(t, err)
	_, err = engine.LeaseNextTask(context.Background(), tenantID, uuid.New(), time.Minute)
	require.NoError(t, err)

	completed, err := engine.CompleteTask(context.Background(), scheduled.ID, map[string]any{"ok": true})
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, completed.Status)

	pending, err := stores.Tasks.ListPending(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFailTaskRetriesUnderMaxAttempts(t *testing.T) {
	engine, stores := newTestEngine()
	tenantID := uuid.New()
	engine.RegisterTaskPolicy("flaky", task.Policy{MaxRetries: 2, BackoffSeconds: 0})

	scheduled, err := engine.ScheduleTask(context.Background(), task.Request{TenantID: tenantID, Kind: "flaky"})
	require.NoError(t, err)
	_, err = engine.LeaseNextTask(context.Background(), tenantID, uuid.New(), time.Minute)
	require.NoError(t, err)

	failed, err := engine.FailTask(context.Background(), scheduled.ID, "boom", true)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, failed.Status)
	assert.Equal(t, 1, failed.Attempts)

	pending, err := stores.Tasks.ListPending(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestFailTaskTerminatesPastMaxRetries(t *testing.T) {
	engine, stores := newTestEngine()
	tenantID := uuid.New()
	engine.RegisterTaskPolicy("flaky", task.Policy{MaxRetries: 0, BackoffSeconds: 0})

	scheduled, err := engine.ScheduleTask(context.Background(), task.Request{TenantID: tenantID, Kind: "flaky"})
	require.NoError(t, err)
	_, err = engine.LeaseNextTask(context.Background(), tenantID, uuid.New(), time.Minute)
	require.NoError(t, err)

	failed, err := engine.FailTask(context.Background(), scheduled.ID, "boom", true)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, failed.Status)

	pending, err := stores.Tasks.ListPending(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRenewTaskLease(t *testing.T) {
	engine, _ := newTestEngine()
	tenantID := uuid.New()
	workerID := uuid.New()

	scheduled, err := engine.ScheduleTask(context.Background(), task.Request{TenantID: tenantID, Kind: "build"})
	require.NoError(t, err)
	lease, err := engine.LeaseNextTask(context.Background(), tenantID, workerID, time.Minute)
	require.NoError(t, err)

	renewed, err := engine.RenewTaskLease(context.Background(), scheduled.ID, workerID, lease.LeaseToken, 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, renewed.LeaseExpiresAt.After(lease.LeaseExpiresAt))
}

func TestRenewTaskLeaseRejectsWrongWorker(t *testing.T) {
	engine, _ := newTestEngine()
	tenantID := uuid.New()

	scheduled, err := engine.ScheduleTask(context.Background(), task.Request{TenantID: tenantID, Kind: "build"})
	require.NoError(t, err)
	lease, err := engine.LeaseNextTask(context.Background(), tenantID, uuid.New(), time.Minute)
	require.NoError(t, err)

	_, err = engine.RenewTaskLease(context.Background(), scheduled.ID, uuid.New(), lease.LeaseToken, time.Minute)
	require.Error(t, err)
	assert.True(t, platform.Is(err, platform.KindInvalidInput))
}

func TestRegisterAndScheduleWorkflow(t *testing.T) {
	engine, _ := newTestEngine()
	tenantID := uuid.New()

	stepA := workflow.Step{ID: uuid.New(), Name: "fetch", TaskKind: "fetch"}
	stepB := workflow.Step{
		ID:       uuid.New(),
		Name:     "build",
		TaskKind: "build",
		Dependencies: []task.Dependency{
			{TaskKind: "fetch", RequiredStatus: task.StatusCompleted},
		},
	}

	wf, err := engine.RegisterWorkflow(context.Background(), tenantID, "pipeline", []workflow.Step{stepA, stepB})
	require.NoError(t, err)

	scheduled, err := engine.ScheduleWorkflow(context.Background(), wf.ID, tenantID, nil)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, "fetch", scheduled[0].Kind)
}

func TestScheduleWorkflowRejectsWrongTenant(t *testing.T) {
	engine, _ := newTestEngine()
	tenantID := uuid.New()
	step := workflow.Step{ID: uuid.New(), Name: "fetch", TaskKind: "fetch"}

	wf, err := engine.RegisterWorkflow(context.Background(), tenantID, "pipeline", []workflow.Step{step})
	require.NoError(t, err)

	_, err = engine.ScheduleWorkflow(context.Background(), wf.ID, uuid.New(), nil)
	require.Error(t, err)
	assert.True(t, platform.Is(err, platform.KindForbidden))
}

func TestWorkflowAdvancesOnStepCompletion(t *testing.T) {
	engine, _ := newTestEngine()
	tenantID := uuid.New()

	fetchStep := workflow.Step{ID: uuid.New(), Name: "fetch", TaskKind: "fetch"}
	buildStep := workflow.Step{
		ID:       uuid.New(),
		Name:     "build",
		TaskKind: "build",
		Dependencies: []task.Dependency{
			{TaskKind: "fetch", RequiredStatus: task.StatusCompleted},
		},
	}

	wf, err := engine.RegisterWorkflow(context.Background(), tenantID, "pipeline", []workflow.Step{fetchStep, buildStep})
	require.NoError(t, err)
	scheduled, err := engine.ScheduleWorkflow(context.Background(), wf.ID, tenantID, nil)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)

	lease, err := engine.LeaseNextTask(context.Background(), tenantID, uuid.New(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)

	_, err = engine.CompleteTask(context.Background(), lease.Task.ID, nil)
	require.NoError(t, err)

	nextLease, err := engine.LeaseNextTask(context.Background(), tenantID, uuid.New(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, nextLease)
	assert.Equal(t, "build", nextLease.Task.Kind)
}
