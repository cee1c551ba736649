package provisioning

import (
	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/agent"
	"github.com/watchdogstudios/cassandra-core/internal/domain/apikey"
	"github.com/watchdogstudios/cassandra-core/internal/domain/project"
	"github.com/watchdogstudios/cassandra-core/internal/domain/scope"
	"github.com/watchdogstudios/cassandra-core/internal/domain/tenant"
)

// CreateTenantRequest is the full set of inputs CreateTenantWithOptions
// accepts; CreateTenant is a convenience wrapper defaulting everything but
// name. Validated with `validate` tags before anything is persisted.
type CreateTenantRequest struct {
	Name             string `validate:"required,min=1,max=255"`
	IdempotencyKey   string `validate:"omitempty,max=255"`
	Settings         tenant.Settings
	BootstrapScopes  []scope.Scope
	BootstrapScripts []string
}

// TenantBootstrap is the bundle returned by a tenant creation call: the
// tenant itself, the default API key minted for it (scoped to admin when
// BootstrapScopes is empty), and the bootstrap scripts a caller should run.
type TenantBootstrap struct {
	Tenant         *tenant.Tenant
	DefaultAPIKey  *apikey.Issued
	BootstrapScripts []string
}

// CreateProjectRequest is the full set of inputs CreateProjectWithOptions
// accepts. Validated with `validate` tags before anything is persisted.
type CreateProjectRequest struct {
	TenantID         uuid.UUID `validate:"required"`
	Name             string    `validate:"required,min=1,max=255"`
	IdempotencyKey   string    `validate:"omitempty,max=255"`
	BootstrapScripts []string
}

// ProjectBootstrap is the bundle returned by a project creation call.
type ProjectBootstrap struct {
	Project          *project.Project
	BootstrapScripts []string
}

// RegisterAgentRequest is the full set of inputs RegisterAgentWithOptions
// accepts. Validated with `validate` tags before anything is persisted.
type RegisterAgentRequest struct {
	TenantID          uuid.UUID `validate:"required"`
	ProjectID         uuid.UUID `validate:"required"`
	Hostname          string    `validate:"required,min=1,max=255"`
	Metadata          agent.Metadata
	BootstrapCommands []string
	CertificateBundle string
}

// ProvisionedAgent is the bundle returned by agent registration: the agent
// record, its freshly minted scoped API key, the bootstrap commands to run
// on the host, and (if requested) a certificate bundle.
type ProvisionedAgent struct {
	Agent             *agent.Agent
	APIKey            *apikey.Issued
	BootstrapCommands []string
	CertificateBundle string
}
