// Package postgres provides a PostgreSQL implementation of project.Store.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/watchdogstudios/cassandra-core/internal/domain/project"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage"
	"github.com/watchdogstudios/cassandra-core/internal/platform"

	"github.com/google/uuid"
)

var _ project.Store = (*Store)(nil)

// Store is a project.Store backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// New constructs a Store over pool.
func New(pool *pgxpool.Pool, tracer trace.Tracer) *Store {
	return &Store{pool: pool, tracer: tracer}
}

var dbAttrs = []attribute.KeyValue{attribute.String("db.system", "postgresql")}

func (s *Store) Insert(ctx context.Context, p *project.Project) error {
	attrs := append(dbAttrs, attribute.String("project.id", p.ID.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.project.Insert", attrs, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO projects (id, tenant_id, name, created_at)
			VALUES ($1, $2, $3, $4)`,
			p.ID, p.TenantID, p.Name, p.CreatedAt,
		)
		if err != nil {
			if storage.IsUniqueViolation(err) {
				return platform.Conflict("project")
			}
			if storage.IsForeignKeyViolation(err) {
				return platform.NotFound("tenant")
			}
			return platform.Internal("insert project", err)
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*project.Project, error) {
	attrs := append(dbAttrs, attribute.String("project.id", id.String()))
	var out *project.Project
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.project.Get", attrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, `
			SELECT id, tenant_id, name, created_at FROM projects WHERE id = $1`, id)
		p, err := scanProject(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return platform.NotFound("project")
			}
			return platform.Internal("get project", err)
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Store) List(ctx context.Context, tenantID uuid.UUID) ([]*project.Project, error) {
	attrs := append(dbAttrs, attribute.String("tenant.id", tenantID.String()))
	var out []*project.Project
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.project.List", attrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT id, tenant_id, name, created_at FROM projects WHERE tenant_id = $1 ORDER BY name`, tenantID)
		if err != nil {
			return platform.Internal("list projects", err)
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanProject(rows)
			if err != nil {
				return platform.Internal("scan project", err)
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*project.Project, error) {
	var (
		p         project.Project
		createdAt time.Time
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &createdAt); err != nil {
		return nil, err
	}
	p.CreatedAt = createdAt
	return &p, nil
}
