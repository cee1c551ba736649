// Package registry is the control plane's composition root: it wires the
// in-memory storage adapters into auth, provisioning, and orchestration
// services, and optionally publishes one process-wide instance.
package registry

import (
	"os"
	"sync"

	"github.com/watchdogstudios/cassandra-core/internal/application/auth"
	"github.com/watchdogstudios/cassandra-core/internal/application/orchestration"
	"github.com/watchdogstudios/cassandra-core/internal/application/provisioning"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage/memory"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

// Registry bundles the three application services and the storage they
// share. Callers (cmd/corectl, tests) reach the services only through its
// accessor methods, mirroring the Rust platform's PlatformServices, whose
// fields are likewise private behind auth()/provisioning()/orchestration().
type Registry struct {
	storage       *memory.Stores
	auth          *auth.Service
	provisioning  *provisioning.Service
	orchestration *orchestration.Engine
}

// Auth returns the registry's auth service.
func (r *Registry) Auth() *auth.Service { return r.auth }

// Provisioning returns the registry's provisioning service.
func (r *Registry) Provisioning() *provisioning.Service { return r.provisioning }

// Orchestration returns the registry's orchestration engine.
func (r *Registry) Orchestration() *orchestration.Engine { return r.orchestration }

// Storage returns the registry's backing in-memory store. corectl's
// production binary builds its services over postgres adapters directly and
// never calls New, so this stays nil on a registry assembled via Build.
func (r *Registry) Storage() *memory.Stores { return r.storage }

// Config controls how New wires the registry. Secret is the HS256 signing
// key for the auth service; New rejects an empty one since, unlike Init, it
// has no environment-variable fallback to fall back on.
type Config struct {
	Secret []byte

	AuthOptions          []auth.Option
	ProvisioningOptions  []provisioning.Option
	OrchestrationOptions []orchestration.Option
}

// New constructs a fresh Registry backed by its own in-memory store. Every
// call returns an independent instance; it never touches the process-wide
// global (see Init/Global).
func New(cfg Config) (*Registry, error) {
	if len(cfg.Secret) == 0 {
		return nil, platform.InvalidInput("secret is required")
	}

	storage := memory.New()

	authSvc := auth.New(storage.Tenants, storage.APIKeys, cfg.Secret, cfg.AuthOptions...)
	provisioningSvc := provisioning.New(
		storage.Tenants,
		storage.Projects,
		storage.Agents,
		authSvc,
		cfg.ProvisioningOptions...,
	)
	orchestrationEngine := orchestration.New(storage.Tasks, storage.Workflows, cfg.OrchestrationOptions...)

	return &Registry{
		storage:       storage,
		auth:          authSvc,
		provisioning:  provisioningSvc,
		orchestration: orchestrationEngine,
	}, nil
}

// Build assembles a Registry from already-constructed services, for callers
// (corectl's postgres-backed production binary) that wire their own storage
// adapters and only want the registry as a publishing/lookup point. storage
// is optional; pass nil when the caller's stores aren't a *memory.Stores.
func Build(storage *memory.Stores, authSvc *auth.Service, provisioningSvc *provisioning.Service, orchestrationEngine *orchestration.Engine) *Registry {
	return &Registry{
		storage:       storage,
		auth:          authSvc,
		provisioning:  provisioningSvc,
		orchestration: orchestrationEngine,
	}
}

var (
	globalOnce sync.Once
	global     *Registry
)

// defaultSecretEnv names the environment variable Init reads the HS256
// signing secret from when the caller does not supply one explicitly.
const defaultSecretEnv = "CASS_JWT_SECRET"

// Init builds the process-wide Registry on first call; later calls are
// no-ops and return the instance built on the first call, cfg ignored. Use
// Global to retrieve it from elsewhere without a Config in hand.
func Init(cfg Config) *Registry {
	globalOnce.Do(func() {
		if len(cfg.Secret) == 0 {
			if secret := os.Getenv(defaultSecretEnv); secret != "" {
				cfg.Secret = []byte(secret)
			} else {
				cfg.Secret = []byte("dev-secret")
			}
		}
		built, err := New(cfg)
		if err != nil {
			panic("registry: Init built an invalid Config: " + err.Error())
		}
		global = built
	})
	return global
}

// Global returns the process-wide Registry and true, or (nil, false) if
// neither Init nor SetGlobal has run yet.
func Global() (*Registry, bool) {
	return global, global != nil
}

// SetGlobal installs an already-constructed Registry as the process-wide
// one, for callers (corectl's postgres-backed binary, tests needing a
// specific fixture) that build their services outside New. It only takes
// effect the first time either SetGlobal or Init is called.
func SetGlobal(r *Registry) {
	globalOnce.Do(func() {
		global = r
	})
}
