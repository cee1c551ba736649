// Package provisioning builds the tenant/project/agent identity graph,
// bootstraps new tenants and projects idempotently, and sweeps agents that
// have stopped heartbeating.
package provisioning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/watchdogstudios/cassandra-core/internal/application/auth"
	"github.com/watchdogstudios/cassandra-core/internal/domain/agent"
	"github.com/watchdogstudios/cassandra-core/internal/domain/apikey"
	"github.com/watchdogstudios/cassandra-core/internal/domain/authctx"
	"github.com/watchdogstudios/cassandra-core/internal/domain/project"
	"github.com/watchdogstudios/cassandra-core/internal/domain/scope"
	"github.com/watchdogstudios/cassandra-core/internal/domain/tenant"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
	"github.com/watchdogstudios/cassandra-core/pkg/common/logger"
	"github.com/watchdogstudios/cassandra-core/pkg/common/timeutil"
)

const defaultHeartbeatTimeout = 5 * time.Minute

// Service provisions tenants, projects, and agents, and issues their
// bootstrap credentials through the injected AuthService. It never calls
// into orchestration, and uses the AuthService only through its public
// methods; it reads and writes the tenant, project, and agent stores it
// was given directly. Idempotency-key results are kept in in-process maps
// only and are lost when the process restarts.
type Service struct {
	tenants  tenant.Store
	projects project.Store
	agents   agent.Store
	auth     *auth.Service

	heartbeatTimeout time.Duration

	idempotencyMu     sync.RWMutex
	tenantBootstraps  map[string]TenantBootstrap
	projectBootstraps map[string]ProjectBootstrap

	clock   timeutil.Provider
	log     *logger.Logger
	tracer  trace.Tracer
	metrics Metrics
}

// Option configures a Service at construction.
type Option func(*Service)

// WithHeartbeatTimeout overrides the default 5-minute staleness threshold
// used by SweepInactiveAgents.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(s *Service) { s.heartbeatTimeout = d }
}

// WithClock overrides the time source (tests inject timeutil.Mock).
func WithClock(clock timeutil.Provider) Option { return func(s *Service) { s.clock = clock } }

// WithLogger attaches a structured logger.
func WithLogger(log *logger.Logger) Option { return func(s *Service) { s.log = log } }

// WithTracer attaches an OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option { return func(s *Service) { s.tracer = tracer } }

// WithMetrics attaches a Metrics sink. Defaults to a no-op.
func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

// New constructs a Service. auth is injected rather than constructed here:
// Provisioning depends on Auth for key issuance, and Auth must never depend
// back on Provisioning.
func New(tenants tenant.Store, projects project.Store, agents agent.Store, authSvc *auth.Service, opts ...Option) *Service {
	s := &Service{
		tenants:           tenants,
		projects:          projects,
		agents:            agents,
		auth:              authSvc,
		heartbeatTimeout:  defaultHeartbeatTimeout,
		tenantBootstraps:  make(map[string]TenantBootstrap),
		projectBootstraps: make(map[string]ProjectBootstrap),
		clock:             timeutil.Default(),
		log:               logger.Noop(),
		tracer:            noop.NewTracerProvider().Tracer("provisioning"),
		metrics:           noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTenant creates a tenant with default bootstrap scopes ([]scope.Admin)
// and an auto-generated bootstrap script, and no idempotency key.
func (s *Service) CreateTenant(ctx context.Context, name string) (*tenant.Tenant, error) {
	bundle, err := s.CreateTenantWithOptions(ctx, CreateTenantRequest{Name: name})
	if err != nil {
		return nil, err
	}
	return bundle.Tenant, nil
}

// CreateTenantWithOptions creates a tenant, mints its default API key, and
// produces its bootstrap scripts. A repeat call carrying the same
// IdempotencyKey returns the identical bundle (same tenant id, same
// bootstrap scripts) without creating anything new.
func (s *Service) CreateTenantWithOptions(ctx context.Context, req CreateTenantRequest) (*TenantBootstrap, error) {
	logCtx := logger.NewLoggerContext(s.log.With("operation", "create_tenant", "tenant_name", req.Name))
	ctx, span := s.tracer.Start(ctx, "provisioning.CreateTenantWithOptions",
		trace.WithAttributes(attribute.String("name", req.Name)))
	defer span.End()

	if err := validateRequest(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if existing, ok := s.lookupTenantBootstrap(req.IdempotencyKey); ok {
			span.AddEvent("idempotent replay")
			return &existing, nil
		}
	}

	t, err := tenant.New(req.Name, req.Settings, s.clock.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid tenant")
		return nil, err
	}
	if err := s.tenants.Insert(ctx, t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist tenant")
		return nil, fmt.Errorf("persist tenant %s: %w", t.ID, err)
	}
	span.SetAttributes(attribute.String("tenant_id", t.ID.String()))
	logCtx.Add("tenant_id", t.ID)
	logCtx.Info(ctx, "tenant created")
	s.metrics.IncTenantCreated(ctx)

	scopes := req.BootstrapScopes
	if len(scopes) == 0 {
		scopes = []scope.Scope{scope.Admin}
	}
	defaultKey, err := s.auth.IssueAPIKey(ctx, t.ID, fmt.Sprintf("tenant:%s:default", t.ID), scopes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue default api key")
		return nil, fmt.Errorf("issue default api key for tenant %s: %w", t.ID, err)
	}
	span.AddEvent("default api key issued")

	scripts := req.BootstrapScripts
	if len(scripts) == 0 {
		scripts = []string{fmt.Sprintf("cassctl bootstrap --tenant %s", t.ID)}
	}

	bundle := TenantBootstrap{Tenant: t, DefaultAPIKey: defaultKey, BootstrapScripts: scripts}
	if req.IdempotencyKey != "" {
		s.idempotencyMu.Lock()
		s.tenantBootstraps[req.IdempotencyKey] = bundle
		s.idempotencyMu.Unlock()
	}
	span.SetStatus(codes.Ok, "tenant bootstrapped")
	return &bundle, nil
}

func (s *Service) lookupTenantBootstrap(key string) (TenantBootstrap, bool) {
	s.idempotencyMu.RLock()
	defer s.idempotencyMu.RUnlock()
	b, ok := s.tenantBootstraps[key]
	return b, ok
}

// CreateProject creates a project under tenantID with no idempotency key and
// an auto-generated bootstrap script.
func (s *Service) CreateProject(ctx context.Context, tenantID uuid.UUID, name string) (*project.Project, error) {
	bundle, err := s.CreateProjectWithOptions(ctx, CreateProjectRequest{TenantID: tenantID, Name: name})
	if err != nil {
		return nil, err
	}
	return bundle.Project, nil
}

// CreateProjectWithOptions creates a project under an existing tenant. A
// repeat call carrying the same IdempotencyKey returns the identical bundle.
func (s *Service) CreateProjectWithOptions(ctx context.Context, req CreateProjectRequest) (*ProjectBootstrap, error) {
	logCtx := logger.NewLoggerContext(s.log.With("operation", "create_project", "project_name", req.Name))
	ctx, span := s.tracer.Start(ctx, "provisioning.CreateProjectWithOptions",
		trace.WithAttributes(attribute.String("name", req.Name), attribute.String("tenant_id", req.TenantID.String())))
	defer span.End()

	if err := validateRequest(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	if _, err := s.tenants.Get(ctx, req.TenantID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tenant lookup")
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if existing, ok := s.lookupProjectBootstrap(req.IdempotencyKey); ok {
			span.AddEvent("idempotent replay")
			return &existing, nil
		}
	}

	p, err := project.New(req.TenantID, req.Name, s.clock.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid project")
		return nil, err
	}
	if err := s.projects.Insert(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist project")
		return nil, fmt.Errorf("persist project %s: %w", p.ID, err)
	}
	span.SetAttributes(attribute.String("project_id", p.ID.String()))
	logCtx.Add("project_id", p.ID)
	logCtx.Info(ctx, "project created")
	s.metrics.IncProjectCreated(ctx, req.TenantID.String())

	scripts := req.BootstrapScripts
	if len(scripts) == 0 {
		scripts = []string{fmt.Sprintf("cassctl project init --project %s", p.ID)}
	}

	bundle := ProjectBootstrap{Project: p, BootstrapScripts: scripts}
	if req.IdempotencyKey != "" {
		s.idempotencyMu.Lock()
		s.projectBootstraps[req.IdempotencyKey] = bundle
		s.idempotencyMu.Unlock()
	}
	span.SetStatus(codes.Ok, "project bootstrapped")
	return &bundle, nil
}

func (s *Service) lookupProjectBootstrap(key string) (ProjectBootstrap, bool) {
	s.idempotencyMu.RLock()
	defer s.idempotencyMu.RUnlock()
	b, ok := s.projectBootstraps[key]
	return b, ok
}

// RegisterAgent registers an agent with no extra metadata, commands, or
// certificate bundle.
func (s *Service) RegisterAgent(ctx context.Context, tenantID, projectID uuid.UUID, hostname string) (*ProvisionedAgent, error) {
	return s.RegisterAgentWithOptions(ctx, RegisterAgentRequest{
		TenantID:  tenantID,
		ProjectID: projectID,
		Hostname:  hostname,
	})
}

// RegisterAgentWithOptions enrolls an agent under (req.TenantID,
// req.ProjectID), mints it a scoped API key carrying the "agent" role's
// default scopes plus Custom("project:<projectID>"), and returns the bundle
// a caller hands to the enrolling host.
func (s *Service) RegisterAgentWithOptions(ctx context.Context, req RegisterAgentRequest) (*ProvisionedAgent, error) {
	logCtx := logger.NewLoggerContext(s.log.With("operation", "register_agent", "hostname", req.Hostname))
	ctx, span := s.tracer.Start(ctx, "provisioning.RegisterAgentWithOptions",
		trace.WithAttributes(
			attribute.String("tenant_id", req.TenantID.String()),
			attribute.String("project_id", req.ProjectID.String()),
			attribute.String("hostname", req.Hostname),
		))
	defer span.End()

	if err := validateRequest(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}

	p, err := s.projects.Get(ctx, req.ProjectID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "project lookup")
		return nil, err
	}
	if p.TenantID != req.TenantID {
		err := platform.Forbidden("project does not belong to tenant")
		span.RecordError(err)
		span.SetStatus(codes.Error, "tenant mismatch")
		return nil, err
	}
	if _, err := s.tenants.Get(ctx, req.TenantID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tenant lookup")
		return nil, err
	}

	a, err := agent.New(req.TenantID, req.ProjectID, req.Hostname, req.Metadata, s.clock.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid agent")
		return nil, err
	}
	commands := req.BootstrapCommands
	if len(commands) == 0 {
		commands = []string{fmt.Sprintf("cass-agent enroll --agent %s", a.ID)}
	}
	a.BootstrapCommands = commands
	a.CertificateBundle = req.CertificateBundle

	if err := s.agents.Insert(ctx, a); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist agent")
		return nil, fmt.Errorf("persist agent %s: %w", a.ID, err)
	}
	span.SetAttributes(attribute.String("agent_id", a.ID.String()))
	logCtx.Add("agent_id", a.ID)
	logCtx.Info(ctx, "agent registered")
	s.metrics.IncAgentRegistered(ctx, req.TenantID.String())

	scopes := defaultAgentScopes()
	scopes = append(scopes, scope.Custom(fmt.Sprintf("project:%s", req.ProjectID)))
	issued, err := s.auth.IssueAPIKey(ctx, req.TenantID, fmt.Sprintf("agent:%s", req.Hostname), scopes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue agent api key")
		return nil, fmt.Errorf("issue api key for agent %s: %w", a.ID, err)
	}
	span.AddEvent("agent api key issued")

	span.SetStatus(codes.Ok, "agent provisioned")
	return &ProvisionedAgent{
		Agent:             a,
		APIKey:            issued,
		BootstrapCommands: commands,
		CertificateBundle: req.CertificateBundle,
	}, nil
}

func defaultAgentScopes() []scope.Scope {
	if role, ok := scope.DefaultRegistry().Role("agent"); ok {
		out := make([]scope.Scope, len(role.Scopes))
		copy(out, role.Scopes)
		return out
	}
	return []scope.Scope{scope.AgentExecute}
}

// ProvisionServiceAccount mints an API key under tenantID with the given
// label/scopes, independent of any agent. Fails NotFound if the tenant does
// not exist.
func (s *Service) ProvisionServiceAccount(ctx context.Context, tenantID uuid.UUID, label string, scopes []scope.Scope) (*apikey.Issued, error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.ProvisionServiceAccount",
		trace.WithAttributes(attribute.String("tenant_id", tenantID.String()), attribute.String("label", label)))
	defer span.End()

	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tenant lookup")
		return nil, err
	}
	issued, err := s.auth.IssueAPIKey(ctx, tenantID, label, scopes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue service account key")
		return nil, err
	}
	return issued, nil
}

// RecordAgentHeartbeat stamps the agent's last_seen (defaulting to now) and
// transitions it to Active.
func (s *Service) RecordAgentHeartbeat(ctx context.Context, agentID uuid.UUID, when *time.Time) error {
	ctx, span := s.tracer.Start(ctx, "provisioning.RecordAgentHeartbeat",
		trace.WithAttributes(attribute.String("agent_id", agentID.String())))
	defer span.End()

	a, err := s.agents.Get(ctx, agentID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	seen := s.clock.Now()
	if when != nil {
		seen = *when
	}
	a.Heartbeat(seen)
	if err := s.agents.Update(ctx, a); err != nil {
		span.RecordError(err)
		return platform.Internal("update agent heartbeat", err)
	}
	return nil
}

// SetAgentStatus forces an agent directly into status, bypassing the
// heartbeat state machine (used by an operator to manually suspend/resume).
func (s *Service) SetAgentStatus(ctx context.Context, agentID uuid.UUID, status agent.Status) error {
	ctx, span := s.tracer.Start(ctx, "provisioning.SetAgentStatus",
		trace.WithAttributes(attribute.String("agent_id", agentID.String()), attribute.String("status", string(status))))
	defer span.End()

	a, err := s.agents.Get(ctx, agentID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	a.Status = status
	if err := s.agents.Update(ctx, a); err != nil {
		span.RecordError(err)
		return platform.Internal("update agent status", err)
	}
	return nil
}

// ListAgents returns every agent registered under tenantID.
func (s *Service) ListAgents(ctx context.Context, tenantID uuid.UUID) ([]*agent.Agent, error) {
	_, span := s.tracer.Start(ctx, "provisioning.ListAgents")
	defer span.End()
	return s.agents.List(ctx, tenantID)
}

// SweepInactiveAgents suspends every non-Suspended agent, across every
// tenant, whose last_seen is absent or older than now-heartbeatTimeout, and
// returns exactly the agents it transitioned.
func (s *Service) SweepInactiveAgents(ctx context.Context) ([]*agent.Agent, error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.SweepInactiveAgents")
	defer span.End()

	tenants, err := s.tenants.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var suspended []*agent.Agent
	for _, t := range tenants {
		agents, err := s.agents.List(ctx, t.ID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, a := range agents {
			if !a.IsStale(s.clock.Now(), s.heartbeatTimeout) {
				continue
			}
			a.Suspend()
			if err := s.agents.Update(ctx, a); err != nil {
				span.RecordError(err)
				return nil, platform.Internal("suspend stale agent", err)
			}
			suspended = append(suspended, a)
		}
	}
	span.SetAttributes(attribute.Int("suspended_count", len(suspended)))
	if len(suspended) > 0 {
		s.metrics.IncAgentsSuspended(ctx, len(suspended))
	}
	return suspended, nil
}

// IssueAgentToken mints a short-lived (15 minute) bearer token scoped to
// AgentExecute + Custom("project:<agent.ProjectID>") for the given agent.
func (s *Service) IssueAgentToken(ctx context.Context, agentID uuid.UUID) (authctx.Token, error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.IssueAgentToken",
		trace.WithAttributes(attribute.String("agent_id", agentID.String())))
	defer span.End()

	a, err := s.agents.Get(ctx, agentID)
	if err != nil {
		span.RecordError(err)
		return authctx.Token{}, err
	}

	now := s.clock.Now()
	authCtx := authctx.Context{
		PrincipalID:   a.ID,
		PrincipalType: authctx.PrincipalAgent,
		TenantID:      a.TenantID,
		Scopes:        []scope.Scope{scope.AgentExecute, scope.Custom(fmt.Sprintf("project:%s", a.ProjectID))},
		IssuedAt:      now,
		ExpiresAt:     now,
		Audience:      "agents",
		Session:       authctx.SessionMetadata{"device_id": a.Hostname},
	}
	ttl := 15 * time.Minute
	token, err := s.auth.IssueTokenFromContext(ctx, authCtx, &ttl)
	if err != nil {
		span.RecordError(err)
		return authctx.Token{}, err
	}
	return token, nil
}
