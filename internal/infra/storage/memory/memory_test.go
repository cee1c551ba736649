package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdogstudios/cassandra-core/internal/domain/agent"
	"github.com/watchdogstudios/cassandra-core/internal/domain/apikey"
	"github.com/watchdogstudios/cassandra-core/internal/domain/project"
	"github.com/watchdogstudios/cassandra-core/internal/domain/task"
	"github.com/watchdogstudios/cassandra-core/internal/domain/tenant"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage/memory"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

func TestTenantStoreInsertGetList(t *testing.T) {
	stores := memory.New()
	tn, err := tenant.New("acme", tenant.Settings{}, time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, stores.Tenants.Insert(context.Background(), tn))
	assert.True(t, platform.Is(stores.Tenants.Insert(context.Background(), tn), platform.KindConflict))

	got, err := stores.Tenants.Get(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, tn.Name, got.Name)

	_, err = stores.Tenants.Get(context.Background(), uuid.New())
	assert.True(t, platform.Is(err, platform.KindNotFound))

	list, err := stores.Tenants.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestProjectStoreInsertRequiresExistingTenant(t *testing.T) {
	stores := memory.New()
	tenantID := uuid.New()
	p, err := project.New(tenantID, "core", time.Now().UTC())
	require.NoError(t, err)

	err = stores.Projects.Insert(context.Background(), p)
	assert.True(t, platform.Is(err, platform.KindNotFound))

	tn, err := tenant.New("acme", tenant.Settings{}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, stores.Tenants.Insert(context.Background(), tn))
	p.TenantID = tn.ID

	require.NoError(t, stores.Projects.Insert(context.Background(), p))
	got, err := stores.Projects.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "core", got.Name)
}

func TestAgentStoreInsertRejectsUnknownTenantOrProject(t *testing.T) {
	stores := memory.New()
	ag := &agent.Agent{ID: uuid.New(), TenantID: uuid.New(), ProjectID: uuid.New(), Hostname: "worker-1"}

	err := stores.Agents.Insert(context.Background(), ag)
	require.Error(t, err)
	assert.True(t, platform.Is(err, platform.KindNotFound))
}

func TestAgentStoreInsertAndUpdate(t *testing.T) {
	stores := memory.New()
	tn, err := tenant.New("acme", tenant.Settings{}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, stores.Tenants.Insert(context.Background(), tn))
	p, err := project.New(tn.ID, "core", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, stores.Projects.Insert(context.Background(), p))

	ag := &agent.Agent{ID: uuid.New(), TenantID: tn.ID, ProjectID: p.ID, Hostname: "worker-1", Status: agent.StatusRegistered}
	require.NoError(t, stores.Agents.Insert(context.Background(), ag))

	ag.Status = agent.StatusActive
	require.NoError(t, stores.Agents.Update(context.Background(), ag))

	got, err := stores.Agents.Get(context.Background(), ag.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusActive, got.Status)

	list, err := stores.Agents.List(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAPIKeyStoreLookupByPrefix(t *testing.T) {
	stores := memory.New()
	record := &apikey.Record{ID: uuid.New(), TenantID: uuid.New(), TokenPrefix: "abc123", TokenHash: "hash", CreatedAt: time.Now().UTC()}
	require.NoError(t, stores.APIKeys.Insert(context.Background(), record))

	byPrefix, err := stores.APIKeys.GetByPrefix(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, record.ID, byPrefix.ID)

	record.Revoked = true
	require.NoError(t, stores.APIKeys.Update(context.Background(), record))
	updated, err := stores.APIKeys.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.True(t, updated.Revoked)
}

func TestTaskStoreListPendingOrdersByScheduledAt(t *testing.T) {
	stores := memory.New()
	tenantID := uuid.New()
	now := time.Now().UTC()

	pending := &task.Task{ID: uuid.New(), TenantID: tenantID, Kind: "build", Status: task.StatusPending, ScheduledAt: now}
	other := &task.Task{ID: uuid.New(), TenantID: tenantID, Kind: "test", Status: task.StatusPending, ScheduledAt: now.Add(time.Second)}
	require.NoError(t, stores.Tasks.Enqueue(context.Background(), pending))
	require.NoError(t, stores.Tasks.Enqueue(context.Background(), other))

	list, err := stores.Tasks.ListPending(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, pending.ID, list[0].ID)
}

// TestTaskStoreUpdateRetainsAndRepushesConditionally exercises the
// invariant that Update drops any existing queue slot for a task and
// pushes a fresh one only when the task's new status is still Pending.
func TestTaskStoreUpdateRetainsAndRepushesConditionally(t *testing.T) {
	stores := memory.New()
	tenantID := uuid.New()
	now := time.Now().UTC()

	tk := &task.Task{ID: uuid.New(), TenantID: tenantID, Kind: "build", Status: task.StatusPending, ScheduledAt: now}
	require.NoError(t, stores.Tasks.Enqueue(context.Background(), tk))

	tk.Status = task.StatusInProgress
	require.NoError(t, stores.Tasks.Update(context.Background(), tk))

	list, err := stores.Tasks.ListPending(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Empty(t, list)

	tk.Status = task.StatusPending
	tk.ScheduledAt = now.Add(time.Minute)
	require.NoError(t, stores.Tasks.Update(context.Background(), tk))

	list, err = stores.Tasks.ListPending(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tk.ID, list[0].ID)

	tk.Status = task.StatusCompleted
	require.NoError(t, stores.Tasks.Update(context.Background(), tk))
	list, err = stores.Tasks.ListPending(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTaskStoreUpdateRejectsUnknownID(t *testing.T) {
	stores := memory.New()
	tk := &task.Task{ID: uuid.New(), Status: task.StatusPending}
	err := stores.Tasks.Update(context.Background(), tk)
	assert.True(t, platform.Is(err, platform.KindNotFound))
}
