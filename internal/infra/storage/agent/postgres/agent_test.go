package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdogstudios/cassandra-core/internal/domain/agent"
	"github.com/watchdogstudios/cassandra-core/internal/domain/project"
	"github.com/watchdogstudios/cassandra-core/internal/domain/tenant"
	agentproj "github.com/watchdogstudios/cassandra-core/internal/infra/storage/project/postgres"
	tenantpg "github.com/watchdogstudios/cassandra-core/internal/infra/storage/tenant/postgres"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage/testutil"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

func setupAgentTest(t *testing.T) (context.Context, *Store, *project.Project, func()) {
	t.Helper()
	pool, cleanup := testutil.SetupTestContainer(t)
	ctx := context.Background()

	tn, err := tenant.New("agent-owner", tenant.Settings{}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, tenantpg.New(pool, testutil.NoOpTracer()).Insert(ctx, tn))

	p, err := project.New(tn.ID, "core", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, agentproj.New(pool, testutil.NoOpTracer()).Insert(ctx, p))

	return ctx, New(pool, testutil.NoOpTracer()), p, cleanup
}

func TestAgentStore_InsertAndGet(t *testing.T) {
	t.Parallel()

	ctx, store, p, cleanup := setupAgentTest(t)
	defer cleanup()

	ag, err := agent.New(p.TenantID, p.ID, "worker-1", agent.Metadata{"os": "linux"}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, ag))

	got, err := store.Get(ctx, ag.ID)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", got.Hostname)
	assert.Equal(t, agent.StatusRegistered, got.Status)
	assert.Equal(t, "linux", got.Metadata["os"])
}

func TestAgentStore_Update(t *testing.T) {
	t.Parallel()

	ctx, store, p, cleanup := setupAgentTest(t)
	defer cleanup()

	ag, err := agent.New(p.TenantID, p.ID, "worker-2", nil, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, ag))

	now := time.Now().UTC()
	ag.Status = agent.StatusActive
	ag.LastSeen = &now
	require.NoError(t, store.Update(ctx, ag))

	got, err := store.Get(ctx, ag.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusActive, got.Status)
	require.NotNil(t, got.LastSeen)
}

func TestAgentStore_GetNotFound(t *testing.T) {
	t.Parallel()

	ctx, store, _, cleanup := setupAgentTest(t)
	defer cleanup()

	_, err := store.Get(ctx, uuid.New())
	assert.True(t, platform.Is(err, platform.KindNotFound))
}

func TestAgentStore_ListScopedToTenant(t *testing.T) {
	t.Parallel()

	ctx, store, p, cleanup := setupAgentTest(t)
	defer cleanup()

	for _, host := range []string{"worker-a", "worker-b"} {
		ag, err := agent.New(p.TenantID, p.ID, host, nil, time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, store.Insert(ctx, ag))
	}

	list, err := store.List(ctx, p.TenantID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
