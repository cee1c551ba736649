// Package postgres provides a PostgreSQL implementation of tenant.Store
// backed by raw pgx queries against the db/migrations schema.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/watchdogstudios/cassandra-core/internal/domain/tenant"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage"
	"github.com/watchdogstudios/cassandra-core/internal/platform"

	"github.com/google/uuid"
)

var _ tenant.Store = (*Store)(nil)

// Store is a tenant.Store backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// New constructs a Store over pool.
func New(pool *pgxpool.Pool, tracer trace.Tracer) *Store {
	return &Store{pool: pool, tracer: tracer}
}

var dbAttrs = []attribute.KeyValue{attribute.String("db.system", "postgresql")}

func (s *Store) Insert(ctx context.Context, t *tenant.Tenant) error {
	attrs := append(dbAttrs, attribute.String("tenant.id", t.ID.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.tenant.Insert", attrs, func(ctx context.Context) error {
		tokenTTL := nullInt8(t.Settings.TokenTTLSeconds)
		refreshTTL := nullInt8(t.Settings.RefreshTokenTTLSeconds)

		_, err := s.pool.Exec(ctx, `
			INSERT INTO tenants (id, name, token_ttl_seconds, refresh_token_ttl_seconds, allowed_origins, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, t.Name, tokenTTL, refreshTTL, t.Settings.AllowedOrigins, t.CreatedAt,
		)
		if err != nil {
			if storage.IsUniqueViolation(err) {
				return platform.Conflict("tenant")
			}
			return platform.Internal("insert tenant", err)
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	attrs := append(dbAttrs, attribute.String("tenant.id", id.String()))
	var out *tenant.Tenant
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.tenant.Get", attrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, `
			SELECT id, name, token_ttl_seconds, refresh_token_ttl_seconds, allowed_origins, created_at
			FROM tenants WHERE id = $1`, id)
		t, err := scanTenant(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return platform.NotFound("tenant")
			}
			return platform.Internal("get tenant", err)
		}
		out = t
		return nil
	})
	return out, err
}

func (s *Store) List(ctx context.Context) ([]*tenant.Tenant, error) {
	var out []*tenant.Tenant
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.tenant.List", dbAttrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT id, name, token_ttl_seconds, refresh_token_ttl_seconds, allowed_origins, created_at
			FROM tenants ORDER BY name`)
		if err != nil {
			return platform.Internal("list tenants", err)
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTenant(rows)
			if err != nil {
				return platform.Internal("scan tenant", err)
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*tenant.Tenant, error) {
	var (
		t          tenant.Tenant
		tokenTTL   pgtype.Int8
		refreshTTL pgtype.Int8
		origins    []string
		createdAt  time.Time
	)
	if err := row.Scan(&t.ID, &t.Name, &tokenTTL, &refreshTTL, &origins, &createdAt); err != nil {
		return nil, err
	}
	if tokenTTL.Valid {
		t.Settings.TokenTTLSeconds = &tokenTTL.Int64
	}
	if refreshTTL.Valid {
		t.Settings.RefreshTokenTTLSeconds = &refreshTTL.Int64
	}
	t.Settings.AllowedOrigins = origins
	t.CreatedAt = createdAt
	return &t, nil
}

func nullInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

