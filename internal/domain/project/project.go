// Package project models a sub-namespace within a tenant; agents belong to
// exactly one project.
package project

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/platform"
)

// Project is a tenant-scoped namespace that agents register under.
type Project struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	CreatedAt time.Time
}

// New validates fields and constructs a Project with a fresh id.
func New(tenantID uuid.UUID, name string, now time.Time) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, platform.InvalidInput("project name must not be empty")
	}
	if tenantID == uuid.Nil {
		return nil, platform.InvalidInput("project requires a tenant id")
	}
	return &Project{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: now.UTC(),
	}, nil
}
