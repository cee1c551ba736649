package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdogstudios/cassandra-core/internal/domain/project"
	"github.com/watchdogstudios/cassandra-core/internal/domain/tenant"
	tenantpg "github.com/watchdogstudios/cassandra-core/internal/infra/storage/tenant/postgres"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage/testutil"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

func setupProjectTest(t *testing.T) (context.Context, *Store, *tenant.Tenant, func()) {
	t.Helper()
	pool, cleanup := testutil.SetupTestContainer(t)
	ctx := context.Background()

	tenantStore := tenantpg.New(pool, testutil.NoOpTracer())
	tn, err := tenant.New("project-owner", tenant.Settings{}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, tenantStore.Insert(ctx, tn))

	return ctx, New(pool, testutil.NoOpTracer()), tn, cleanup
}

func TestProjectStore_InsertAndGet(t *testing.T) {
	t.Parallel()

	ctx, store, tn, cleanup := setupProjectTest(t)
	defer cleanup()

	p, err := project.New(tn.ID, "core", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, p))

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "core", got.Name)
	assert.Equal(t, tn.ID, got.TenantID)
}

func TestProjectStore_GetNotFound(t *testing.T) {
	t.Parallel()

	ctx, store, _, cleanup := setupProjectTest(t)
	defer cleanup()

	_, err := store.Get(ctx, uuid.New())
	assert.True(t, platform.Is(err, platform.KindNotFound))
}

func TestProjectStore_ListScopedToTenant(t *testing.T) {
	t.Parallel()

	ctx, store, tn, cleanup := setupProjectTest(t)
	defer cleanup()

	for _, name := range []string{"alpha", "beta"} {
		p, err := project.New(tn.ID, name, time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, store.Insert(ctx, p))
	}

	list, err := store.List(ctx, tn.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	other, err := store.List(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}
