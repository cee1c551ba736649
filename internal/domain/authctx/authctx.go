// Package authctx defines the principal/claims shape carried by every issued
// token and resolved by every authentication check.
package authctx

import (
	"time"

	"github.com/google/uuid"

	"github.com/watchdogstudios/cassandra-core/internal/domain/scope"
)

// PrincipalType discriminates who a token or API key was minted for.
type PrincipalType string

const (
	PrincipalTenant         PrincipalType = "tenant"
	PrincipalAgent          PrincipalType = "agent"
	PrincipalService        PrincipalType = "service"
	PrincipalServiceAccount PrincipalType = "service_account"
)

// TokenUse discriminates an access token from a refresh token; both share
// the same wire shape but are never interchangeable.
type TokenUse string

const (
	UseAccess  TokenUse = "access"
	UseRefresh TokenUse = "refresh"
)

// SessionMetadata is free-form context a caller may attach when issuing a
// token (e.g. client IP, user agent); carried through unchanged.
type SessionMetadata map[string]string

// Context is the resolved identity and capability set behind a request: the
// claims of an issued token, or the result of authenticating an API key.
type Context struct {
	PrincipalID   uuid.UUID
	PrincipalType PrincipalType
	TenantID      uuid.UUID
	Scopes        []scope.Scope
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Audience      string
	Issuer        string
	Session       SessionMetadata
}

// HasScope reports whether ctx carries target, or the blanket Admin scope.
func (c Context) HasScope(target scope.Scope) bool {
	if scope.Contains(c.Scopes, scope.Admin) {
		return true
	}
	return scope.Contains(c.Scopes, target)
}

// Expired reports whether ctx has passed its expiry as of now.
func (c Context) Expired(now time.Time) bool { return !now.Before(c.ExpiresAt) }

// Claims is the exact payload shape signed into a token: field names match
// the wire format in full (subject, principal type tag, tenant id, scopes
// as strings, audience, issuer, iat/exp as epoch seconds, use, nonce,
// optional session metadata).
type Claims struct {
	Subject       string            `json:"sub"`
	PrincipalType PrincipalType     `json:"principal_type"`
	TenantID      string            `json:"tenant_id"`
	Scopes        []string          `json:"scopes"`
	Audience      string            `json:"aud,omitempty"`
	Issuer        string            `json:"iss"`
	IssuedAt      int64             `json:"iat"`
	ExpiresAt     int64             `json:"exp"`
	Use           TokenUse          `json:"use"`
	Nonce         string            `json:"nonce"`
	Session       SessionMetadata   `json:"session,omitempty"`
}

// ToClaims renders ctx into the signable claim set.
func ToClaims(ctx Context, use TokenUse, nonce string) Claims {
	return Claims{
		Subject:       ctx.PrincipalID.String(),
		PrincipalType: ctx.PrincipalType,
		TenantID:      ctx.TenantID.String(),
		Scopes:        scope.Strings(ctx.Scopes),
		Audience:      ctx.Audience,
		Issuer:        ctx.Issuer,
		IssuedAt:      ctx.IssuedAt.Unix(),
		ExpiresAt:     ctx.ExpiresAt.Unix(),
		Use:           use,
		Nonce:         nonce,
		Session:       ctx.Session,
	}
}

// FromClaims parses a signed claim set back into a Context. Callers that
// need the token's Use should read it from the returned Claims separately.
func FromClaims(c Claims) (Context, error) {
	principalID, err := uuid.Parse(c.Subject)
	if err != nil {
		return Context{}, err
	}
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return Context{}, err
	}
	return Context{
		PrincipalID:   principalID,
		PrincipalType: c.PrincipalType,
		TenantID:      tenantID,
		Scopes:        scope.FromStrings(c.Scopes),
		IssuedAt:      time.Unix(c.IssuedAt, 0).UTC(),
		ExpiresAt:     time.Unix(c.ExpiresAt, 0).UTC(),
		Audience:      c.Audience,
		Issuer:        c.Issuer,
		Session:       c.Session,
	}, nil
}

// Token is the bundle returned to a caller after a successful mint: the
// signed string plus the claims it carries, useful for logging/testing
// without re-parsing the token.
type Token struct {
	Value        string
	Claims       Claims
	Use          TokenUse
	RefreshValue string
}
