// Package task models a unit of scheduled work: its lifecycle state
// machine, lease bookkeeping, and per-kind retry/timeout policy.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status is the task lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Timeouts are per-kind hints propagated onto a Task and its lease.
type Timeouts struct {
	LeaseSeconds        *int64
	ExecutionSeconds    *int64
	RetryBackoffSeconds *int64
}

// Task is a unit of work with a kind discriminator and an opaque payload.
type Task struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Kind        string
	Payload     map[string]any
	Status      Status
	Attempts    int
	ScheduledAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastError   string
	Result      map[string]any
	Timeouts    *Timeouts
}

// Request is the input to schedule_task.
type Request struct {
	TenantID uuid.UUID
	Kind     string
	Payload  map[string]any
	Timeouts *Timeouts
}

// Lease is the bundle returned from a successful lease_next_task call.
type Lease struct {
	Task           Task
	WorkerID       uuid.UUID
	LeasedAt       time.Time
	LeaseExpiresAt time.Time
	LeaseVersion   uint64
	LeaseToken     uuid.UUID
}

// LeaseState is the engine's bookkeeping record for a task's current lease.
// Exactly one live LeaseState exists per task at any instant.
type LeaseState struct {
	TaskID         uuid.UUID
	WorkerID       uuid.UUID
	Token          uuid.UUID
	Version        uint64
	LeasedAt       time.Time
	LeaseExpiresAt time.Time
}

// Policy is the per-kind retry/priority/timeout configuration the
// orchestration engine consults on schedule and on failure.
type Policy struct {
	MaxRetries     int
	BackoffSeconds int64
	Priority       int
	Timeouts       *Timeouts
}

// DefaultPolicy matches the spec's documented defaults for a kind with no
// registered policy.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BackoffSeconds: 30, Priority: 100}
}

// Dependency names a required task-kind outcome a workflow step waits on.
type Dependency struct {
	TaskKind       string
	RequiredStatus Status
}
