// Package auth implements issuance, rotation, and validation of API keys
// and signed bearer tokens, and resolves per-tenant token lifetimes.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/watchdogstudios/cassandra-core/internal/domain/apikey"
	"github.com/watchdogstudios/cassandra-core/internal/domain/authctx"
	"github.com/watchdogstudios/cassandra-core/internal/domain/scope"
	"github.com/watchdogstudios/cassandra-core/internal/domain/tenant"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
	"github.com/watchdogstudios/cassandra-core/pkg/common/logger"
	"github.com/watchdogstudios/cassandra-core/pkg/common/timeutil"
)

const (
	defaultTTL          = 60 * time.Minute
	defaultRefreshTTL   = 12 * time.Hour
	defaultIssuer       = "cassandra-core"
	secretByteLen       = 32
	minAPIKeyPrefixLen  = 4
	apiKeyPrefixHexLen  = 8
)

// Service issues/rotates API keys and mints/validates bearer tokens. It is
// stateless beyond its immutable configuration and the underlying stores,
// per the concurrency model: no lock of its own is required. Refresh tokens
// are not recorded anywhere and there is no revocation list: a refresh
// token stays usable until its expiry.
type Service struct {
	tenants tenant.Store
	apiKeys apikey.Store

	secret            []byte
	defaultTTL        time.Duration
	defaultRefreshTTL time.Duration
	issuer            string
	defaultAudience   string

	clock   timeutil.Provider
	log     *logger.Logger
	tracer  trace.Tracer
	metrics Metrics
}

// Option configures a Service at construction, mirroring the builder style
// used throughout the core's application services.
type Option func(*Service)

// WithTTL overrides the default access-token TTL (60 minutes).
func WithTTL(ttl time.Duration) Option { return func(s *Service) { s.defaultTTL = ttl } }

// WithRefreshTTL overrides the default refresh-token TTL (12 hours).
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) { s.defaultRefreshTTL = ttl }
}

// WithIssuer overrides the token issuer claim (default "cassandra-core").
func WithIssuer(issuer string) Option { return func(s *Service) { s.issuer = issuer } }

// WithDefaultAudience sets the audience enforced by validate_token.
func WithDefaultAudience(aud string) Option { return func(s *Service) { s.defaultAudience = aud } }

// WithClock overrides the time source (tests inject timeutil.Mock).
func WithClock(clock timeutil.Provider) Option { return func(s *Service) { s.clock = clock } }

// WithLogger attaches a structured logger.
func WithLogger(log *logger.Logger) Option { return func(s *Service) { s.log = log } }

// WithTracer attaches an OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option { return func(s *Service) { s.tracer = tracer } }

// WithMetrics attaches a Metrics sink. Defaults to a no-op.
func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

// New constructs a Service. secret is the HMAC signing key; it is never
// logged or exposed.
func New(tenants tenant.Store, apiKeys apikey.Store, secret []byte, opts ...Option) *Service {
	s := &Service{
		tenants:           tenants,
		apiKeys:           apiKeys,
		secret:            secret,
		defaultTTL:        defaultTTL,
		defaultRefreshTTL: defaultRefreshTTL,
		issuer:            defaultIssuer,
		clock:             timeutil.Default(),
		log:               logger.Noop(),
		tracer:            noop.NewTracerProvider().Tracer("auth"),
		metrics:           noopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueAPIKey mints a new API key for tenant with the given label/scopes.
func (s *Service) IssueAPIKey(ctx context.Context, tenantID uuid.UUID, label string, scopes []scope.Scope) (*apikey.Issued, error) {
	ctx, span := s.tracer.Start(ctx, "auth.IssueAPIKey")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID.String()), attribute.String("label", label))

	if err := validateScopes(scopes); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	issued, err := s.createAPIKey(ctx, tenantID, label, scopes, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.AddEvent("api_key issued")
	s.metrics.IncAPIKeyIssued(ctx, tenantID.String())
	return issued, nil
}

// RotateAPIKey creates a new key inheriting id's label and scopes, links
// rotated_from/rotated_to, and marks id revoked and soft-deleted. Fails
// InvalidInput if id is already inactive.
func (s *Service) RotateAPIKey(ctx context.Context, id uuid.UUID) (*apikey.Issued, error) {
	ctx, span := s.tracer.Start(ctx, "auth.RotateAPIKey")
	defer span.End()
	span.SetAttributes(attribute.String("api_key_id", id.String()))

	existing, err := s.apiKeys.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !existing.Active() {
		err := platform.InvalidInput("api key inactive")
		span.RecordError(err)
		return nil, err
	}
	issued, err := s.createAPIKey(ctx, existing.TenantID, existing.Label, existing.Scopes, &existing.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	now := s.clock.Now()
	existing.Revoked = true
	existing.DeletedAt = &now
	existing.RotatedTo = &issued.Record.ID
	if err := s.apiKeys.Update(ctx, existing); err != nil {
		span.RecordError(err)
		return nil, platform.Internal("update rotated key", err)
	}
	span.AddEvent("api_key rotated")
	s.metrics.IncAPIKeyRotated(ctx, existing.TenantID.String())
	return issued, nil
}

// RevokeAPIKey marks id revoked without deleting it.
func (s *Service) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "auth.RevokeAPIKey")
	defer span.End()
	record, err := s.apiKeys.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}
	record.Revoked = true
	if err := s.apiKeys.Update(ctx, record); err != nil {
		span.RecordError(err)
		return platform.Internal("revoke key", err)
	}
	s.metrics.IncAPIKeyRevoked(ctx, record.TenantID.String())
	return nil
}

// SoftDeleteAPIKey marks id revoked and deleted.
func (s *Service) SoftDeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "auth.SoftDeleteAPIKey")
	defer span.End()
	record, err := s.apiKeys.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}
	now := s.clock.Now()
	record.DeletedAt = &now
	record.Revoked = true
	if err := s.apiKeys.Update(ctx, record); err != nil {
		span.RecordError(err)
		return platform.Internal("soft delete key", err)
	}
	return nil
}

// AuthenticateAPIKey parses "<prefix>.<secret>", looks it up by prefix,
// verifies the hash in constant time, and returns a fresh AuthContext.
func (s *Service) AuthenticateAPIKey(ctx context.Context, token string) (authctx.Context, error) {
	ctx, span := s.tracer.Start(ctx, "auth.AuthenticateAPIKey")
	defer span.End()

	prefix, secret, err := parseAPIKey(token)
	if err != nil {
		span.RecordError(err)
		return authctx.Context{}, err
	}
	record, err := s.apiKeys.GetByPrefix(ctx, prefix)
	if err != nil {
		if platform.Is(err, platform.KindNotFound) {
			unauth := platform.Unauthorized("unknown api key")
			span.RecordError(unauth)
			s.metrics.IncAuthFailure(ctx, "unknown_key")
			return authctx.Context{}, unauth
		}
		span.RecordError(err)
		return authctx.Context{}, err
	}
	if !record.Active() {
		err := platform.Forbidden("api key inactive")
		span.RecordError(err)
		s.metrics.IncAuthFailure(ctx, "inactive_key")
		return authctx.Context{}, err
	}
	if subtle.ConstantTimeCompare([]byte(hashSecret(secret)), []byte(record.TokenHash)) != 1 {
		err := platform.Unauthorized("api key mismatch")
		span.RecordError(err)
		s.metrics.IncAuthFailure(ctx, "key_mismatch")
		return authctx.Context{}, err
	}

	now := s.clock.Now()
	ttl := s.resolveAccessTTL(ctx, record.TenantID, nil)
	record.LastUsedAt = &now
	if err := s.apiKeys.Update(ctx, record); err != nil {
		span.RecordError(err)
		return authctx.Context{}, platform.Internal("update last_used_at", err)
	}

	return authctx.Context{
		PrincipalID:   record.ID,
		PrincipalType: authctx.PrincipalServiceAccount,
		TenantID:      record.TenantID,
		Scopes:        record.Scopes,
		IssuedAt:      now,
		ExpiresAt:     now.Add(ttl),
		Audience:      s.defaultAudience,
		Issuer:        s.issuer,
	}, nil
}

// IssueTokenFromContext stamps issued_at/expires_at, signs an access token,
// and (unless disabled) a refresh token of the same shape.
func (s *Service) IssueTokenFromContext(ctx context.Context, authCtx authctx.Context, ttl *time.Duration) (authctx.Token, error) {
	ctx, span := s.tracer.Start(ctx, "auth.IssueTokenFromContext")
	defer span.End()

	now := s.clock.Now()
	resolved := s.resolveAccessTTL(ctx, authCtx.TenantID, ttl)
	authCtx.IssuedAt = now
	authCtx.ExpiresAt = now.Add(resolved)
	if authCtx.Audience == "" {
		authCtx.Audience = s.defaultAudience
	}
	authCtx.Issuer = s.issuer

	accessClaims := authctx.ToClaims(authCtx, authctx.UseAccess, uuid.NewString())
	accessValue, err := signJWT(accessClaims, s.secret)
	if err != nil {
		err := platform.Internal("sign access token", err)
		span.RecordError(err)
		return authctx.Token{}, err
	}

	token := authctx.Token{Value: accessValue, Claims: accessClaims, Use: authctx.UseAccess}

	refreshTTL, enabled := s.resolveRefreshTTL(ctx, authCtx.TenantID)
	if enabled {
		refreshCtx := authCtx
		refreshCtx.ExpiresAt = authCtx.IssuedAt.Add(refreshTTL)
		refreshClaims := authctx.ToClaims(refreshCtx, authctx.UseRefresh, uuid.NewString())
		refreshValue, err := signJWT(refreshClaims, s.secret)
		if err != nil {
			err := platform.Internal("sign refresh token", err)
			span.RecordError(err)
			return authctx.Token{}, err
		}
		token.RefreshValue = refreshValue
	}
	s.metrics.IncTokenIssued(ctx, string(authCtx.PrincipalType))
	return token, nil
}

// IssueTokenForAPIKey composes AuthenticateAPIKey and IssueTokenFromContext.
func (s *Service) IssueTokenForAPIKey(ctx context.Context, rawKey string, ttl *time.Duration) (authctx.Token, error) {
	authCtx, err := s.AuthenticateAPIKey(ctx, rawKey)
	if err != nil {
		return authctx.Token{}, err
	}
	return s.IssueTokenFromContext(ctx, authCtx, ttl)
}

// RefreshAccessToken verifies a refresh token and mints a fresh token pair.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (authctx.Token, error) {
	ctx, span := s.tracer.Start(ctx, "auth.RefreshAccessToken")
	defer span.End()

	claims, err := verifyJWT(refreshToken, s.secret, s.clock.Now())
	if err != nil {
		err := platform.Unauthorized("invalid refresh token")
		span.RecordError(err)
		return authctx.Token{}, err
	}
	if claims.Use != authctx.UseRefresh {
		err := platform.Unauthorized("not a refresh token")
		span.RecordError(err)
		return authctx.Token{}, err
	}
	if err := s.ensureClaimsValid(claims); err != nil {
		span.RecordError(err)
		return authctx.Token{}, err
	}
	authCtx, err := authctx.FromClaims(claims)
	if err != nil {
		err := platform.Unauthorized("malformed refresh token claims")
		span.RecordError(err)
		return authctx.Token{}, err
	}
	return s.IssueTokenFromContext(ctx, authCtx, nil)
}

// ValidateToken verifies signature, use, expiry, issuer, and (when
// configured) audience, returning the carried AuthContext.
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (authctx.Context, error) {
	_, span := s.tracer.Start(ctx, "auth.ValidateToken")
	defer span.End()

	claims, err := verifyJWT(accessToken, s.secret, s.clock.Now())
	if err != nil {
		err := platform.Unauthorized("invalid token")
		span.RecordError(err)
		s.metrics.IncAuthFailure(ctx, "invalid_token")
		return authctx.Context{}, err
	}
	if claims.Use != authctx.UseAccess {
		err := platform.Unauthorized("not an access token")
		span.RecordError(err)
		return authctx.Context{}, err
	}
	if err := s.ensureClaimsValid(claims); err != nil {
		span.RecordError(err)
		return authctx.Context{}, err
	}
	return authctx.FromClaims(claims)
}

// ListKeys returns every API key record for tenant.
func (s *Service) ListKeys(ctx context.Context, tenantID uuid.UUID) ([]*apikey.Record, error) {
	_, span := s.tracer.Start(ctx, "auth.ListKeys")
	defer span.End()
	return s.apiKeys.List(ctx, tenantID)
}

func (s *Service) ensureClaimsValid(c authctx.Claims) error {
	now := s.clock.Now()
	if c.ExpiresAt < now.Unix() {
		return platform.Unauthorized("token expired")
	}
	if c.Issuer != s.issuer {
		return platform.Unauthorized("issuer mismatch")
	}
	if s.defaultAudience != "" && c.Audience != s.defaultAudience {
		return platform.Unauthorized("audience mismatch")
	}
	return nil
}

func (s *Service) createAPIKey(ctx context.Context, tenantID uuid.UUID, label string, scopes []scope.Scope, rotatedFrom *uuid.UUID) (*apikey.Issued, error) {
	secretBytes := make([]byte, secretByteLen)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, platform.Internal("generate api key secret", err)
	}
	secretB64 := base64.RawURLEncoding.EncodeToString(secretBytes)
	id := uuid.New()
	prefix := strings.ToLower(hex.EncodeToString(id[:]))[:apiKeyPrefixHexLen]
	now := s.clock.Now()

	record := &apikey.Record{
		ID:          id,
		TenantID:    tenantID,
		Label:       label,
		Scopes:      scopes,
		TokenPrefix: prefix,
		TokenHash:   hashSecret(secretB64),
		CreatedAt:   now,
		RotatedFrom: rotatedFrom,
	}
	if err := s.apiKeys.Insert(ctx, record); err != nil {
		return nil, err
	}
	return &apikey.Issued{Record: record, Value: prefix + "." + secretB64}, nil
}

func (s *Service) resolveAccessTTL(ctx context.Context, tenantID uuid.UUID, override *time.Duration) time.Duration {
	if override != nil {
		return *override
	}
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return s.defaultTTL
	}
	return t.ResolveTokenTTL(nil, s.defaultTTL)
}

func (s *Service) resolveRefreshTTL(ctx context.Context, tenantID uuid.UUID) (time.Duration, bool) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return s.defaultRefreshTTL, true
	}
	return t.ResolveRefreshTTL(s.defaultRefreshTTL)
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func parseAPIKey(token string) (prefix, secret string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || len(parts[0]) < minAPIKeyPrefixLen {
		return "", "", platform.InvalidInput("malformed api key")
	}
	return parts[0], parts[1], nil
}

func validateScopes(scopes []scope.Scope) error {
	if len(scopes) == 0 {
		return platform.InvalidInput("scopes required")
	}
	seen := make(map[string]struct{}, len(scopes))
	for _, sc := range scopes {
		if _, dup := seen[sc.String()]; dup {
			return platform.InvalidInput("duplicate scopes")
		}
		seen[sc.String()] = struct{}{}
	}
	return nil
}
