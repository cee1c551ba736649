// Package postgres provides a PostgreSQL implementation of workflow.Store.
// It persists only the immutable Workflow template; WorkflowRun state lives
// in the orchestration engine's in-process bookkeeping (see
// internal/domain/workflow.Store's doc comment).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/watchdogstudios/cassandra-core/internal/domain/task"
	"github.com/watchdogstudios/cassandra-core/internal/domain/workflow"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage"
	"github.com/watchdogstudios/cassandra-core/internal/platform"

	"github.com/google/uuid"
)

var _ workflow.Store = (*Store)(nil)

// Store is a workflow.Store backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// New constructs a Store over pool.
func New(pool *pgxpool.Pool, tracer trace.Tracer) *Store {
	return &Store{pool: pool, tracer: tracer}
}

var dbAttrs = []attribute.KeyValue{attribute.String("db.system", "postgresql")}

func (s *Store) Insert(ctx context.Context, w *workflow.Workflow) error {
	attrs := append(dbAttrs, attribute.String("workflow.id", w.ID.String()))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.workflow.Insert", attrs, func(ctx context.Context) error {
		steps, err := json.Marshal(toWireSteps(w.Steps))
		if err != nil {
			return platform.Internal("marshal workflow steps", err)
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO workflows (id, tenant_id, name, steps, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			w.ID, w.TenantID, w.Name, steps, w.CreatedAt,
		)
		if err != nil {
			if storage.IsUniqueViolation(err) {
				return platform.Conflict("workflow")
			}
			if storage.IsForeignKeyViolation(err) {
				return platform.NotFound("tenant")
			}
			return platform.Internal("insert workflow", err)
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*workflow.Workflow, error) {
	attrs := append(dbAttrs, attribute.String("workflow.id", id.String()))
	var out *workflow.Workflow
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.workflow.Get", attrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, `
			SELECT id, tenant_id, name, steps, created_at FROM workflows WHERE id = $1`, id)
		w, err := scanWorkflow(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return platform.NotFound("workflow")
			}
			return platform.Internal("get workflow", err)
		}
		out = w
		return nil
	})
	return out, err
}

func (s *Store) List(ctx context.Context, tenantID uuid.UUID) ([]*workflow.Workflow, error) {
	attrs := append(dbAttrs, attribute.String("tenant.id", tenantID.String()))
	var out []*workflow.Workflow
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.workflow.List", attrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `
			SELECT id, tenant_id, name, steps, created_at FROM workflows WHERE tenant_id = $1 ORDER BY name`, tenantID)
		if err != nil {
			return platform.Internal("list workflows", err)
		}
		defer rows.Close()
		for rows.Next() {
			w, err := scanWorkflow(rows)
			if err != nil {
				return platform.Internal("scan workflow", err)
			}
			out = append(out, w)
		}
		return rows.Err()
	})
	return out, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*workflow.Workflow, error) {
	var (
		w         workflow.Workflow
		steps     []byte
		createdAt time.Time
	)
	if err := row.Scan(&w.ID, &w.TenantID, &w.Name, &steps, &createdAt); err != nil {
		return nil, err
	}
	var wireSteps []wireStep
	if err := json.Unmarshal(steps, &wireSteps); err != nil {
		return nil, err
	}
	w.Steps = fromWireSteps(wireSteps)
	w.CreatedAt = createdAt
	return &w, nil
}

// wireStep/wireDependency are the jsonb shape steps are persisted in; the
// domain's workflow.Step/task.Dependency types aren't JSON-tagged.
type wireStep struct {
	ID           uuid.UUID        `json:"id"`
	Name         string           `json:"name"`
	TaskKind     string           `json:"task_kind"`
	Dependencies []wireDependency `json:"dependencies"`
}

type wireDependency struct {
	TaskKind       string `json:"task_kind"`
	RequiredStatus string `json:"required_status"`
}

func toWireSteps(steps []workflow.Step) []wireStep {
	out := make([]wireStep, len(steps))
	for i, st := range steps {
		deps := make([]wireDependency, len(st.Dependencies))
		for j, d := range st.Dependencies {
			deps[j] = wireDependency{TaskKind: d.TaskKind, RequiredStatus: string(d.RequiredStatus)}
		}
		out[i] = wireStep{ID: st.ID, Name: st.Name, TaskKind: st.TaskKind, Dependencies: deps}
	}
	return out
}

func fromWireSteps(steps []wireStep) []workflow.Step {
	out := make([]workflow.Step, len(steps))
	for i, st := range steps {
		deps := make([]task.Dependency, len(st.Dependencies))
		for j, d := range st.Dependencies {
			deps[j] = task.Dependency{TaskKind: d.TaskKind, RequiredStatus: task.Status(d.RequiredStatus)}
		}
		out[i] = workflow.Step{ID: st.ID, Name: st.Name, TaskKind: st.TaskKind, Dependencies: deps}
	}
	return out
}
