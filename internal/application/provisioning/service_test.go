package provisioning_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdogstudios/cassandra-core/internal/application/auth"
	"github.com/watchdogstudios/cassandra-core/internal/application/provisioning"
	"github.com/watchdogstudios/cassandra-core/internal/domain/agent"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage/memory"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
	"github.com/watchdogstudios/cassandra-core/pkg/common/timeutil"
)

func newTestService(t *testing.T) (*provisioning.Service, *memory.Stores) {
	t.Helper()
	stores := memory.New()
	authSvc := auth.New(stores.Tenants, stores.APIKeys, []byte("test-secret"))
	svc := provisioning.New(stores.Tenants, stores.Projects, stores.Agents, authSvc)
	return svc, stores
}

func TestCreateTenant(t *testing.T) {
	svc, _ := newTestService(t)
	tn, err := svc.CreateTenant(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", tn.Name)
}

func TestCreateTenantWithOptionsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	req := provisioning.CreateTenantRequest{Name: "acme", IdempotencyKey: "req-1"}

	first, err := svc.CreateTenantWithOptions(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.CreateTenantWithOptions(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Tenant.ID, second.Tenant.ID)
	assert.Equal(t, first.DefaultAPIKey.Value, second.DefaultAPIKey.Value)
}

func TestCreateProjectRequiresExistingTenant(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateProject(context.Background(), uuid.New(), "proj")
	require.Error(t, err)
	assert.True(t, platform.Is(err, platform.KindNotFound))
}

func TestCreateProjectAndRegisterAgent(t *testing.T) {
	svc, _ := newTestService(t)
	tn, err := svc.CreateTenant(context.Background(), "acme")
	require.NoError(t, err)

	proj, err := svc.CreateProject(context.Background(), tn.ID, "core")
	require.NoError(t, err)

	provisioned, err := svc.RegisterAgent(context.Background(), tn.ID, proj.ID, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusRegistered, provisioned.Agent.Status)
	assert.NotEmpty(t, provisioned.APIKey.Value)
	assert.NotEmpty(t, provisioned.BootstrapCommands)
}

func TestRegisterAgentRejectsMismatchedTenant(t *testing.T) {
	svc, _ := newTestService(t)
	tnA, err := svc.CreateTenant(context.Background(), "acme")
	require.NoError(t, err)
	tnB, err := svc.CreateTenant(context.Background(), "globex")
	require.NoError(t, err)
	proj, err := svc.CreateProject(context.Background(), tnA.ID, "core")
	require.NoError(t, err)

	_, err = svc.RegisterAgent(context.Background(), tnB.ID, proj.ID, "worker-1")
	require.Error(t, err)
	assert.True(t, platform.Is(err, platform.KindForbidden))
}

func TestRecordAgentHeartbeatActivates(t *testing.T) {
	svc, _ := newTestService(t)
	tn, err := svc.CreateTenant(context.Background(), "acme")
	require.NoError(t, err)
	proj, err := svc.CreateProject(context.Background(), tn.ID, "core")
	require.NoError(t, err)
	provisioned, err := svc.RegisterAgent(context.Background(), tn.ID, proj.ID, "worker-1")
	require.NoError(t, err)

	require.NoError(t, svc.RecordAgentHeartbeat(context.Background(), provisioned.Agent.ID, nil))

	agents, err := svc.ListAgents(context.Background(), tn.ID)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, agent.StatusActive, agents[0].Status)
	assert.NotNil(t, agents[0].LastSeen)
}

func TestSweepInactiveAgentsSuspendsStale(t *testing.T) {
	clock := timeutil.NewMock(time.Now().UTC())
	stores := memory.New()
	authSvc := auth.New(stores.Tenants, stores.APIKeys, []byte("test-secret"))
	svc := provisioning.New(stores.Tenants, stores.Projects, stores.Agents, authSvc,
		provisioning.WithClock(clock), provisioning.WithHeartbeatTimeout(time.Minute))

	tn, err := svc.CreateTenant(context.Background(), "acme")
	require.NoError(t, err)
	proj, err := svc.CreateProject(context.Background(), tn.ID, "core")
	require.NoError(t, err)
	provisioned, err := svc.RegisterAgent(context.Background(), tn.ID, proj.ID, "worker-1")
	require.NoError(t, err)
	require.NoError(t, svc.RecordAgentHeartbeat(context.Background(), provisioned.Agent.ID, nil))

	clock.Advance(2 * time.Minute)
	suspended, err := svc.SweepInactiveAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, suspended, 1)
	assert.Equal(t, agent.StatusSuspended, suspended[0].Status)
}

func TestIssueAgentToken(t *testing.T) {
	svc, _ := newTestService(t)
	tn, err := svc.CreateTenant(context.Background(), "acme")
	require.NoError(t, err)
	proj, err := svc.CreateProject(context.Background(), tn.ID, "core")
	require.NoError(t, err)
	provisioned, err := svc.RegisterAgent(context.Background(), tn.ID, proj.ID, "worker-1")
	require.NoError(t, err)

	token, err := svc.IssueAgentToken(context.Background(), provisioned.Agent.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, token.Value)
}
