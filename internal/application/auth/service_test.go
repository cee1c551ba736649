package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdogstudios/cassandra-core/internal/application/auth"
	"github.com/watchdogstudios/cassandra-core/internal/domain/scope"
	"github.com/watchdogstudios/cassandra-core/internal/domain/tenant"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage/memory"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
	"github.com/watchdogstudios/cassandra-core/pkg/common/timeutil"
)

func newTestService(t *testing.T) (*auth.Service, *memory.Stores) {
	t.Helper()
	stores := memory.New()
	svc := auth.New(stores.Tenants, stores.APIKeys, []byte("test-secret"))
	return svc, stores
}

func seedTenant(t *testing.T, stores *memory.Stores) *tenant.Tenant {
	t.Helper()
	tn, err := tenant.New("acme", tenant.Settings{}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, stores.Tenants.Insert(context.Background(), tn))
	return tn
}

func TestIssueAPIKey(t *testing.T) {
	svc, stores := newTestService(t)
	tn := seedTenant(t, stores)

	issued, err := svc.IssueAPIKey(context.Background(), tn.ID, "default", []scope.Scope{scope.Admin})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Value)
	assert.Equal(t, tn.ID, issued.Record.TenantID)
	assert.Contains(t, issued.Value, issued.Record.TokenPrefix+".")
}

func TestIssueAPIKeyRejectsEmptyScopes(t *testing.T) {
	svc, stores := newTestService(t)
	tn := seedTenant(t, stores)

	_, err := svc.IssueAPIKey(context.Background(), tn.ID, "default", nil)
	require.Error(t, err)
	assert.True(t, platform.Is(err, platform.KindInvalidInput))
}

func TestAuthenticateAPIKeyRoundTrip(t *testing.T) {
	svc, stores := newTestService(t)
	tn := seedTenant(t, stores)

	issued, err := svc.IssueAPIKey(context.Background(), tn.ID, "default", []scope.Scope{scope.Admin})
	require.NoError(t, err)

	authCtx, err := svc.AuthenticateAPIKey(context.Background(), issued.Value)
	require.NoError(t, err)
	assert.Equal(t, tn.ID, authCtx.TenantID)
	assert.True(t, scope.Contains(authCtx.Scopes, scope.Admin))
}

func TestAuthenticateAPIKeyRejectsWrongSecret(t *testing.T) {
	svc, stores := newTestService(t)
	tn := seedTenant(t, stores)

	issued, err := svc.IssueAPIKey(context.Background(), tn.ID, "default", []scope.Scope{scope.Admin})
	require.NoError(t, err)

	tampered := issued.Record.TokenPrefix + ".wrong-secret-value"
	_, err = svc.AuthenticateAPIKey(context.Background(), tampered)
	require.Error(t, err)
	assert.True(t, platform.Is(err, platform.KindUnauthorized))
}

func TestAuthenticateAPIKeyRejectsRevoked(t *testing.T) {
	svc, stores := newTestService(t)
	tn := seedTenant(t, stores)

	issued, err := svc.IssueAPIKey(context.Background(), tn.ID, "default", []scope.Scope{scope.Admin})
	require.NoError(t, err)
	require.NoError(t, svc.RevokeAPIKey(context.Background(), issued.Record.ID))

	_, err = svc.AuthenticateAPIKey(context.Background(), issued.Value)
	require.Error(t, err)
	assert.True(t, platform.Is(err, platform.KindForbidden))
}

func TestRotateAPIKeyLinksOldAndNew(t *testing.T) {
	svc, stores := newTestService(t)
	tn := seedTenant(t, stores)

	issued, err := svc.IssueAPIKey(context.Background(), tn.ID, "default", []scope.Scope{scope.Admin})
	require.NoError(t, err)

	rotated, err := svc.RotateAPIKey(context.Background(), issued.Record.ID)
	require.NoError(t, err)
	assert.NotEqual(t, issued.Record.ID, rotated.Record.ID)
	assert.Equal(t, issued.Record.Label, rotated.Record.Label)

	old, err := stores.APIKeys.Get(context.Background(), issued.Record.ID)
	require.NoError(t, err)
	assert.True(t, old.Revoked)
	assert.NotNil(t, old.DeletedAt)
	require.NotNil(t, old.RotatedTo)
	assert.Equal(t, rotated.Record.ID, *old.RotatedTo)
}

func TestRotateAPIKeyRejectsInactive(t *testing.T) {
	svc, stores := newTestService(t)
	tn := seedTenant(t, stores)

	issued, err := svc.IssueAPIKey(context.Background(), tn.ID, "default", []scope.Scope{scope.Admin})
	require.NoError(t, err)
	require.NoError(t, svc.RevokeAPIKey(context.Background(), issued.Record.ID))

	_, err = svc.RotateAPIKey(context.Background(), issued.Record.ID)
	require.Error(t, err)
	assert.True(t, platform.Is(err, platform.KindInvalidInput))
}

func TestIssueTokenAndValidate(t *testing.T) {
	svc, stores := newTestService(t)
	tn := seedTenant(t, stores)

	issued, err := svc.IssueAPIKey(context.Background(), tn.ID, "default", []scope.Scope{scope.Admin})
	require.NoError(t, err)

	token, err := svc.IssueTokenForAPIKey(context.Background(), issued.Value, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, token.Value)
	assert.NotEmpty(t, token.RefreshValue)

	authCtx, err := svc.ValidateToken(context.Background(), token.Value)
	require.NoError(t, err)
	assert.Equal(t, tn.ID, authCtx.TenantID)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	clock := timeutil.NewMock(time.Now().UTC())
	stores := memory.New()
	svc := auth.New(stores.Tenants, stores.APIKeys, []byte("test-secret"),
		auth.WithClock(clock), auth.WithTTL(time.Minute))
	tn := seedTenant(t, stores)

	issued, err := svc.IssueAPIKey(context.Background(), tn.ID, "default", []scope.Scope{scope.Admin})
	require.NoError(t, err)
	token, err := svc.IssueTokenForAPIKey(context.Background(), issued.Value, nil)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = svc.ValidateToken(context.Background(), token.Value)
	require.Error(t, err)
	assert.True(t, platform.Is(err, platform.KindUnauthorized))
}

func TestRefreshAccessToken(t *testing.T) {
	svc, stores := newTestService(t)
	tn := seedTenant(t, stores)

	issued, err := svc.IssueAPIKey(context.Background(), tn.ID, "default", []scope.Scope{scope.Admin})
	require.NoError(t, err)
	token, err := svc.IssueTokenForAPIKey(context.Background(), issued.Value, nil)
	require.NoError(t, err)

	refreshed, err := svc.RefreshAccessToken(context.Background(), token.RefreshValue)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.Value)

	_, err = svc.ValidateToken(context.Background(), refreshed.Value)
	require.NoError(t, err)
}

func TestRefreshAccessTokenRejectsAccessToken(t *testing.T) {
	svc, stores := newTestService(t)
	tn := seedTenant(t, stores)

	issued, err := svc.IssueAPIKey(context.Background(), tn.ID, "default", []scope.Scope{scope.Admin})
	require.NoError(t, err)
	token, err := svc.IssueTokenForAPIKey(context.Background(), issued.Value, nil)
	require.NoError(t, err)

	_, err = svc.RefreshAccessToken(context.Background(), token.Value)
	require.Error(t, err)
	assert.True(t, platform.Is(err, platform.KindUnauthorized))
}

func TestListKeys(t *testing.T) {
	svc, stores := newTestService(t)
	tn := seedTenant(t, stores)

	_, err := svc.IssueAPIKey(context.Background(), tn.ID, "one", []scope.Scope{scope.Admin})
	require.NoError(t, err)
	_, err = svc.IssueAPIKey(context.Background(), tn.ID, "two", []scope.Scope{scope.TenantRead})
	require.NoError(t, err)

	keys, err := svc.ListKeys(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
