package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdogstudios/cassandra-core/internal/domain/task"
	"github.com/watchdogstudios/cassandra-core/internal/domain/tenant"
	tenantpg "github.com/watchdogstudios/cassandra-core/internal/infra/storage/tenant/postgres"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage/testutil"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

func setupTaskTest(t *testing.T) (context.Context, *Store, *tenant.Tenant, func()) {
	t.Helper()
	pool, cleanup := testutil.SetupTestContainer(t)
	ctx := context.Background()

	tn, err := tenant.New("task-owner", tenant.Settings{}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, tenantpg.New(pool, testutil.NoOpTracer()).Insert(ctx, tn))

	return ctx, New(pool, testutil.NoOpTracer()), tn, cleanup
}

func newTask(tenantID uuid.UUID, kind string, scheduledAt time.Time) *task.Task {
	return &task.Task{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Kind:        kind,
		Payload:     map[string]any{"k": "v"},
		Status:      task.StatusPending,
		ScheduledAt: scheduledAt,
	}
}

func TestTaskStore_EnqueueAndGet(t *testing.T) {
	t.Parallel()

	ctx, store, tn, cleanup := setupTaskTest(t)
	defer cleanup()

	tk := newTask(tn.ID, "build", time.Now().UTC())
	require.NoError(t, store.Enqueue(ctx, tk))

	got, err := store.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.Equal(t, "v", got.Payload["k"])
}

func TestTaskStore_GetNotFound(t *testing.T) {
	t.Parallel()

	ctx, store, _, cleanup := setupTaskTest(t)
	defer cleanup()

	_, err := store.Get(ctx, uuid.New())
	assert.True(t, platform.Is(err, platform.KindNotFound))
}

func TestTaskStore_ListPendingExcludesNonPending(t *testing.T) {
	t.Parallel()

	ctx, store, tn, cleanup := setupTaskTest(t)
	defer cleanup()

	now := time.Now().UTC()
	pending := newTask(tn.ID, "build", now)
	inProgress := newTask(tn.ID, "test", now.Add(time.Second))
	require.NoError(t, store.Enqueue(ctx, pending))
	require.NoError(t, store.Enqueue(ctx, inProgress))

	inProgress.Status = task.StatusInProgress
	require.NoError(t, store.Update(ctx, inProgress))

	list, err := store.ListPending(ctx, tn.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)
}

func TestTaskStore_UpdateRoundTripsResultAndError(t *testing.T) {
	t.Parallel()

	ctx, store, tn, cleanup := setupTaskTest(t)
	defer cleanup()

	tk := newTask(tn.ID, "build", time.Now().UTC())
	require.NoError(t, store.Enqueue(ctx, tk))

	now := time.Now().UTC()
	tk.Status = task.StatusFailed
	tk.Attempts = 2
	tk.LastError = "boom"
	tk.CompletedAt = &now
	require.NoError(t, store.Update(ctx, tk))

	got, err := store.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "boom", got.LastError)
	require.NotNil(t, got.CompletedAt)
}
