// Package agent models a remote worker registered against a (tenant,
// project) pair: its lifecycle status, heartbeat, and bootstrap metadata.
package agent

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

// Status is the agent lifecycle state.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusActive     Status = "active"
	StatusSuspended  Status = "suspended"
)

// Metadata is caller-supplied descriptive data carried alongside an agent
// (e.g. OS, architecture, version); the core does not interpret it.
type Metadata map[string]string

// Agent is a registered worker.
type Agent struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	ProjectID uuid.UUID
	Hostname  string
	Status    Status
	LastSeen  *time.Time
	Metadata  Metadata

	// CertificateBundle and BootstrapCommands are produced at registration
	// time for agents that need TLS material or helper commands to join
	// the fleet, carried through RegisterAgentRequest.
	CertificateBundle string
	BootstrapCommands []string

	CreatedAt time.Time
}

// New validates fields and constructs an Agent in StatusRegistered.
func New(tenantID, projectID uuid.UUID, hostname string, metadata Metadata, now time.Time) (*Agent, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return nil, platform.InvalidInput("agent hostname must not be empty")
	}
	if tenantID == uuid.Nil || projectID == uuid.Nil {
		return nil, platform.InvalidInput("agent requires a tenant id and project id")
	}
	return &Agent{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ProjectID: projectID,
		Hostname:  hostname,
		Status:    StatusRegistered,
		Metadata:  metadata,
		CreatedAt: now.UTC(),
	}, nil
}

// Heartbeat stamps LastSeen and, if the agent was Registered or Suspended,
// transitions it to Active.
func (a *Agent) Heartbeat(now time.Time) {
	t := now.UTC()
	a.LastSeen = &t
	if a.Status != StatusActive {
		a.Status = StatusActive
	}
}

// IsStale reports whether the agent should be swept into Suspended: absent
// last_seen, or last_seen older than now-timeout, and not already Suspended.
func (a *Agent) IsStale(now time.Time, timeout time.Duration) bool {
	if a.Status == StatusSuspended {
		return false
	}
	if a.LastSeen == nil {
		return true
	}
	return a.LastSeen.Before(now.Add(-timeout))
}

// Suspend transitions the agent into StatusSuspended.
func (a *Agent) Suspend() { a.Status = StatusSuspended }
