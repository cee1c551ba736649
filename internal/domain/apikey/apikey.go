// Package apikey models the at-rest record of an issued API key and the
// wire format of the raw key value handed to a caller exactly once.
package apikey

import (
	"time"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/scope"
)

// Record is the persisted form of an API key: never holds the plaintext
// secret, only its prefix and SHA-256 hash.
type Record struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Label        string
	Scopes       []scope.Scope
	TokenPrefix  string
	TokenHash    string
	CreatedAt    time.Time
	LastUsedAt   *time.Time
	Revoked      bool
	DeletedAt    *time.Time
	RotatedFrom  *uuid.UUID
	RotatedTo    *uuid.UUID
}

// Active reports whether the record may still authenticate a request.
func (r *Record) Active() bool { return !r.Revoked && r.DeletedAt == nil }

// Issued is the one-time bundle returned to a caller minting a key: Value
// is the only place the plaintext secret ever exists outside the process.
type Issued struct {
	Record *Record
	Value  string
}
