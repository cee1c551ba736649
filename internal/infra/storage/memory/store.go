// Package memory is the reference persistence layer: a single in-process
// state backing every domain Store interface, guarded by one RWMutex. It
// mirrors the original platform's InMemoryPersistence/PlatformState — one
// shared lock, one map per entity, clone-out-on-read semantics.
//
// Go has no trait-style multi-interface-on-one-type shortcut when two
// interfaces both declare an Insert/Get/List method with different
// payload types, so unlike the Rust original (one InMemoryPersistence
// implementing every *Store trait), each entity gets its own thin adapter
// type sharing the same underlying *State. All six adapters returned by
// New are views over one lock, exactly like cloning the original's single
// Arc<RwLock<PlatformState>>.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/agent"
	"github.com/watchdogstudios/cassandra-core/internal/domain/apikey"
	"github.com/watchdogstudios/cassandra-core/internal/domain/project"
	"github.com/watchdogstudios/cassandra-core/internal/domain/task"
	"github.com/watchdogstudios/cassandra-core/internal/domain/tenant"
	"github.com/watchdogstudios/cassandra-core/internal/domain/workflow"
)

// State is the shared, lock-guarded backing store for every adapter New
// returns. Callers normally don't touch State directly; they hold one of
// the narrower *TenantStore/*ProjectStore/... views returned by New.
type State struct {
	mu sync.RWMutex

	tenants  map[uuid.UUID]*tenant.Tenant
	projects map[uuid.UUID]*project.Project
	agents   map[uuid.UUID]*agent.Agent

	apiKeys         map[uuid.UUID]*apikey.Record
	apiKeysByPrefix map[string]uuid.UUID

	tasks     map[uuid.UUID]*task.Task
	taskQueue []uuid.UUID

	workflows map[uuid.UUID]*workflow.Workflow
}

func newState() *State {
	return &State{
		tenants:         make(map[uuid.UUID]*tenant.Tenant),
		projects:        make(map[uuid.UUID]*project.Project),
		agents:          make(map[uuid.UUID]*agent.Agent),
		apiKeys:         make(map[uuid.UUID]*apikey.Record),
		apiKeysByPrefix: make(map[string]uuid.UUID),
		tasks:           make(map[uuid.UUID]*task.Task),
		workflows:       make(map[uuid.UUID]*workflow.Workflow),
	}
}

// Stores bundles one adapter per domain Store interface, all sharing a
// single State so inserts made through one are immediately visible through
// the others (e.g. a project insert sees tenants inserted via Tenants).
type Stores struct {
	Tenants   *TenantStore
	Projects  *ProjectStore
	Agents    *AgentStore
	APIKeys   *APIKeyStore
	Tasks     *TaskStore
	Workflows *WorkflowStore
}

// New constructs an empty, shared in-memory backing store and every
// adapter over it.
func New() *Stores {
	st := newState()
	return &Stores{
		Tenants:   &TenantStore{s: st},
		Projects:  &ProjectStore{s: st},
		Agents:    &AgentStore{s: st},
		APIKeys:   &APIKeyStore{s: st},
		Tasks:     &TaskStore{s: st},
		Workflows: &WorkflowStore{s: st},
	}
}
