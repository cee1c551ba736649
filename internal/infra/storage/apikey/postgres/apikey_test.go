package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdogstudios/cassandra-core/internal/domain/apikey"
	"github.com/watchdogstudios/cassandra-core/internal/domain/scope"
	"github.com/watchdogstudios/cassandra-core/internal/domain/tenant"
	tenantpg "github.com/watchdogstudios/cassandra-core/internal/infra/storage/tenant/postgres"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage/testutil"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

func setupAPIKeyTest(t *testing.T) (context.Context, *Store, *tenant.Tenant, func()) {
	t.Helper()
	pool, cleanup := testutil.SetupTestContainer(t)
	ctx := context.Background()

	tn, err := tenant.New("apikey-owner", tenant.Settings{}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, tenantpg.New(pool, testutil.NoOpTracer()).Insert(ctx, tn))

	return ctx, New(pool, testutil.NoOpTracer()), tn, cleanup
}

func newRecord(tenantID uuid.UUID, prefix string) *apikey.Record {
	return &apikey.Record{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Label:       "default",
		Scopes:      []scope.Scope{scope.Admin},
		TokenPrefix: prefix,
		TokenHash:   "hash-" + prefix,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestAPIKeyStore_InsertAndGet(t *testing.T) {
	t.Parallel()

	ctx, store, tn, cleanup := setupAPIKeyTest(t)
	defer cleanup()

	r := newRecord(tn.ID, "pfx001")
	require.NoError(t, store.Insert(ctx, r))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.TokenPrefix, got.TokenPrefix)
	assert.True(t, scope.Contains(got.Scopes, scope.Admin))
}

func TestAPIKeyStore_GetByPrefix(t *testing.T) {
	t.Parallel()

	ctx, store, tn, cleanup := setupAPIKeyTest(t)
	defer cleanup()

	r := newRecord(tn.ID, "pfx002")
	require.NoError(t, store.Insert(ctx, r))

	got, err := store.GetByPrefix(ctx, "pfx002")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	_, err = store.GetByPrefix(ctx, "missing")
	assert.True(t, platform.Is(err, platform.KindNotFound))
}

func TestAPIKeyStore_Update(t *testing.T) {
	t.Parallel()

	ctx, store, tn, cleanup := setupAPIKeyTest(t)
	defer cleanup()

	r := newRecord(tn.ID, "pfx003")
	require.NoError(t, store.Insert(ctx, r))

	r.Revoked = true
	now := time.Now().UTC()
	r.DeletedAt = &now
	require.NoError(t, store.Update(ctx, r))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	require.NotNil(t, got.DeletedAt)
}

func TestAPIKeyStore_ListScopedToTenant(t *testing.T) {
	t.Parallel()

	ctx, store, tn, cleanup := setupAPIKeyTest(t)
	defer cleanup()

	require.NoError(t, store.Insert(ctx, newRecord(tn.ID, "pfx004")))
	require.NoError(t, store.Insert(ctx, newRecord(tn.ID, "pfx005")))

	list, err := store.List(ctx, tn.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
