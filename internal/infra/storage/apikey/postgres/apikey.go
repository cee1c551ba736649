// Package postgres provides a PostgreSQL implementation of apikey.Store.
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

	"github.com/watchdogstudios/cassandra-core/internal/domain/apikey"
	"github.com/watchdogstudios/cassandra-core/internal/domain/scope"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage"
	"github.com/watchdogstudios/cassandra-core/internal/platform"

	"github.com/google/uuid"
)

var _ apikey.Store = (*Store)(nil)

// Store is an apikey.Store backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// New constructs a Store over pool.
func New(pool *pgxpool.Pool, tracer trace.Tracer) *Store {
	return &Store{pool: pool, tracer: tracer}
}

var dbAttrs = []attribute.KeyValue{attribute.String("db.system", "postgresql")}

func (s *Store) Insert(ctx context.Context, r *apikey.Record) error {
	attrs := append(dbAttrs, attribute.String("api_key.id", r.ID.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.apikey.Insert", attrs, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO api_keys (id, tenant_id, label, scopes, token_prefix, token_hash, created_at,
				last_used_at, revoked, deleted_at, rotated_from, rotated_to)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			r.ID, r.TenantID, r.Label, scope.Strings(r.Scopes), r.TokenPrefix, r.TokenHash, r.CreatedAt,
			nullTime(r.LastUsedAt), r.Revoked, nullTime(r.DeletedAt), nullUUID(r.RotatedFrom), nullUUID(r.RotatedTo),
		)
		if err != nil {
			if storage.IsUniqueViolation(err) {
				return platform.Conflict("api_key")
			}
			return platform.Internal("insert api_key", err)
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*apikey.Record, error) {
	attrs := append(dbAttrs, attribute.String("api_key.id", id.String()))
	var out *apikey.Record
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.apikey.Get", attrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, selectColumns+` FROM api_keys WHERE id = $1`, id)
		r, err := scanRecord(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return platform.NotFound("api_key")
			}
			return platform.Internal("get api_key", err)
		}
		out = r
		return nil
	})
	return out, err
}

func (s *Store) GetByPrefix(ctx context.Context, prefix string) (*apikey.Record, error) {
	attrs := append(dbAttrs, attribute.String("api_key.prefix", prefix))
	var out *apikey.Record
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.apikey.GetByPrefix", attrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, selectColumns+` FROM api_keys WHERE token_prefix = $1`, prefix)
		r, err := scanRecord(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return platform.NotFound("api_key")
			}
			return platform.Internal("get api_key by prefix", err)
		}
		out = r
		return nil
	})
	return out, err
}

func (s *Store) List(ctx context.Context, tenantID uuid.UUID) ([]*apikey.Record, error) {
	attrs := append(dbAttrs, attribute.String("tenant.id", tenantID.String()))
	var out []*apikey.Record
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.apikey.List", attrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, selectColumns+` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
		if err != nil {
			return platform.Internal("list api_keys", err)
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRecord(rows)
			if err != nil {
				return platform.Internal("scan api_key", err)
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

func (s *Store) Update(ctx context.Context, r *apikey.Record) error {
	attrs := append(dbAttrs, attribute.String("api_key.id", r.ID.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.apikey.Update", attrs, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, `
			UPDATE api_keys SET label = $2, scopes = $3, token_prefix = $4, token_hash = $5,
				last_used_at = $6, revoked = $7, deleted_at = $8, rotated_from = $9, rotated_to = $10
			WHERE id = $1`,
			r.ID, r.Label, scope.Strings(r.Scopes), r.TokenPrefix, r.TokenHash,
			nullTime(r.LastUsedAt), r.Revoked, nullTime(r.DeletedAt), nullUUID(r.RotatedFrom), nullUUID(r.RotatedTo),
		)
		if err != nil {
			if storage.IsUniqueViolation(err) {
				return platform.Conflict("api_key")
			}
			return platform.Internal("update api_key", err)
		}
		if tag.RowsAffected() == 0 {
			return platform.NotFound("api_key")
		}
		return nil
	})
}

const selectColumns = `SELECT id, tenant_id, label, scopes, token_prefix, token_hash, created_at,
	last_used_at, revoked, deleted_at, rotated_from, rotated_to`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*apikey.Record, error) {
	var (
		r           apikey.Record
		scopes      []string
		createdAt   time.Time
		lastUsedAt  pgtype.Timestamptz
		deletedAt   pgtype.Timestamptz
		rotatedFrom pgtype.UUID
		rotatedTo   pgtype.UUID
	)
	if err := row.Scan(&r.ID, &r.TenantID, &r.Label, &scopes, &r.TokenPrefix, &r.TokenHash, &createdAt,
		&lastUsedAt, &r.Revoked, &deletedAt, &rotatedFrom, &rotatedTo); err != nil {
		return nil, err
	}
	r.Scopes = scope.FromStrings(scopes)
	r.CreatedAt = createdAt
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		r.LastUsedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		r.DeletedAt = &t
	}
	if rotatedFrom.Valid {
		id := uuid.UUID(rotatedFrom.Bytes)
		r.RotatedFrom = &id
	}
	if rotatedTo.Valid {
		id := uuid.UUID(rotatedTo.Bytes)
		r.RotatedTo = &id
	}
	return &r, nil
}

func nullTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func nullUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}
