// Package postgres provides a PostgreSQL implementation of agent.Store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/watchdogstudios/cassandra-core/internal/domain/agent"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage"
	"github.com/watchdogstudios/cassandra-core/internal/platform"

	"github.com/google/uuid"
)

var _ agent.Store = (*Store)(nil)

// Store is an agent.Store backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// New constructs a Store over pool.
func New(pool *pgxpool.Pool, tracer trace.Tracer) *Store {
	return &Store{pool: pool, tracer: tracer}
}

var dbAttrs = []attribute.KeyValue{attribute.String("db.system", "postgresql")}

func (s *Store) Insert(ctx context.Context, a *agent.Agent) error {
	attrs := append(dbAttrs, attribute.String("agent.id", a.ID.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.agent.Insert", attrs, func(ctx context.Context) error {
		metadata, err := json.Marshal(a.Metadata)
		if err != nil {
			return platform.Internal("marshal agent metadata", err)
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO agents (id, tenant_id, project_id, hostname, status, last_seen, metadata, certificate_bundle, bootstrap_commands, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			a.ID, a.TenantID, a.ProjectID, a.Hostname, string(a.Status), nullTime(a.LastSeen), metadata,
			a.CertificateBundle, a.BootstrapCommands, a.CreatedAt,
		)
		if err != nil {
			if storage.IsUniqueViolation(err) {
				return platform.Conflict("agent")
			}
			if storage.IsForeignKeyViolation(err) {
				return platform.NotFound("project")
			}
			return platform.Internal("insert agent", err)
		}
		return nil
	})
}

func (s *Store) Update(ctx context.Context, a *agent.Agent) error {
	attrs := append(dbAttrs, attribute.String("agent.id", a.ID.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.agent.Update", attrs, func(ctx context.Context) error {
		metadata, err := json.Marshal(a.Metadata)
		if err != nil {
			return platform.Internal("marshal agent metadata", err)
		}
		tag, err := s.pool.Exec(ctx, `
			UPDATE agents SET hostname = $2, status = $3, last_seen = $4, metadata = $5,
				certificate_bundle = $6, bootstrap_commands = $7
			WHERE id = $1`,
			a.ID, a.Hostname, string(a.Status), nullTime(a.LastSeen), metadata,
			a.CertificateBundle, a.BootstrapCommands,
		)
		if err != nil {
			return platform.Internal("update agent", err)
		}
		if tag.RowsAffected() == 0 {
			return platform.NotFound("agent")
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*agent.Agent, error) {
	attrs := append(dbAttrs, attribute.String("agent.id", id.String()))
	var out *agent.Agent
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.agent.Get", attrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, `
			SELECT id, tenant_id, project_id, hostname, status, last_seen, metadata, certificate_bundle, bootstrap_commands, created_at
			FROM agents WHERE id = $1`, id)
		a, err := scanAgent(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return platform.NotFound("agent")
			}
			return platform.Internal("get agent", err)
		}
		out = a
		return nil
	})
	return out, err
}

func (s *Store) List(ctx context.Context, tenantID uuid.UUID) ([]*agent.Agent, error) {
	attrs := append(dbAttrs, attribute.String("tenant.id", tenantID.String()))
	var out []*agent.Agent
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.agent.List", attrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT id, tenant_id, project_id, hostname, status, last_seen, metadata, certificate_bundle, bootstrap_commands, created_at
			FROM agents WHERE tenant_id = $1 ORDER BY hostname`, tenantID)
		if err != nil {
			return platform.Internal("list agents", err)
		}
		defer rows.Close()
		for rows.Next() {
			a, err := scanAgent(rows)
			if err != nil {
				return platform.Internal("scan agent", err)
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	return out, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*agent.Agent, error) {
	var (
		a         agent.Agent
		status    string
		lastSeen  pgtype.Timestamptz
		metadata  []byte
		createdAt time.Time
	)
	if err := row.Scan(&a.ID, &a.TenantID, &a.ProjectID, &a.Hostname, &status, &lastSeen,
		&metadata, &a.CertificateBundle, &a.BootstrapCommands, &createdAt); err != nil {
		return nil, err
	}
	a.Status = agent.Status(status)
	if lastSeen.Valid {
		t := lastSeen.Time
		a.LastSeen = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, err
		}
	}
	a.CreatedAt = createdAt
	return &a, nil
}

func nullTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
