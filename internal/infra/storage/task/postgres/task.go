// Package postgres provides a PostgreSQL implementation of task.Store.
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

	"github.com/watchdogstudios/cassandra-core/internal/domain/task"
	"github.com/watchdogstudios/cassandra-core/internal/infra/storage"
	"github.com/watchdogstudios/cassandra-core/internal/platform"

	"github.com/google/uuid"
)

var _ task.Store = (*Store)(nil)

// Store is a task.Store backed by PostgreSQL. Unlike the in-memory
// adapter's explicit queue slice, the pending index here is the partial
// index declared in db/migrations on (tenant_id, scheduled_at) WHERE
// status = 'pending' — ListPending is a plain indexed SELECT, and there is
// no separate structure to keep in sync with Update.
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// New constructs a Store over pool.
func New(pool *pgxpool.Pool, tracer trace.Tracer) *Store {
	return &Store{pool: pool, tracer: tracer}
}

var dbAttrs = []attribute.KeyValue{attribute.String("db.system", "postgresql")}

func (s *Store) Enqueue(ctx context.Context, t *task.Task) error {
	attrs := append(dbAttrs, attribute.String("task.id", t.ID.String()), attribute.String("task.kind", t.Kind))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.task.Enqueue", attrs, func(ctx context.Context) error {
		payload, err := json.Marshal(t.Payload)
		if err != nil {
			return platform.Internal("marshal task payload", err)
		}
		leaseSeconds, execSeconds, backoffSeconds := timeoutColumns(t.Timeouts)

		_, err = s.pool.Exec(ctx, `
			INSERT INTO tasks (id, tenant_id, kind, payload, status, attempts, scheduled_at, started_at,
				completed_at, last_error, result, lease_seconds, execution_seconds, retry_backoff_seconds)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			t.ID, t.TenantID, t.Kind, payload, string(t.Status), t.Attempts, t.ScheduledAt,
			nullTime(t.StartedAt), nullTime(t.CompletedAt), t.LastError, nullJSON(t.Result),
			leaseSeconds, execSeconds, backoffSeconds,
		)
		if err != nil {
			if storage.IsUniqueViolation(err) {
				return platform.Conflict("task")
			}
			if storage.IsForeignKeyViolation(err) {
				return platform.NotFound("tenant")
			}
			return platform.Internal("enqueue task", err)
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	attrs := append(dbAttrs, attribute.String("task.id", id.String()))
	var out *task.Task
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.task.Get", attrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, selectColumns+` FROM tasks WHERE id = $1`, id)
		tk, err := scanTask(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return platform.NotFound("task")
			}
			return platform.Internal("get task", err)
		}
		out = tk
		return nil
	})
	return out, err
}

func (s *Store) Update(ctx context.Context, t *task.Task) error {
	attrs := append(dbAttrs, attribute.String("task.id", t.ID.String()), attribute.String("task.status", string(t.Status)))
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.task.Update", attrs, func(ctx context.Context) error {
		payload, err := json.Marshal(t.Payload)
		if err != nil {
			return platform.Internal("marshal task payload", err)
		}
		leaseSeconds, execSeconds, backoffSeconds := timeoutColumns(t.Timeouts)

		tag, err := s.pool.Exec(ctx, `
			UPDATE tasks SET kind = $2, payload = $3, status = $4, attempts = $5, scheduled_at = $6,
				started_at = $7, completed_at = $8, last_error = $9, result = $10,
				lease_seconds = $11, execution_seconds = $12, retry_backoff_seconds = $13
			WHERE id = $1`,
			t.ID, t.Kind, payload, string(t.Status), t.Attempts, t.ScheduledAt,
			nullTime(t.StartedAt), nullTime(t.CompletedAt), t.LastError, nullJSON(t.Result),
			leaseSeconds, execSeconds, backoffSeconds,
		)
		if err != nil {
			return platform.Internal("update task", err)
		}
		if tag.RowsAffected() == 0 {
			return platform.NotFound("task")
		}
		return nil
	})
}

func (s *Store) ListPending(ctx context.Context, tenantID uuid.UUID) ([]*task.Task, error) {
	attrs := append(dbAttrs, attribute.String("tenant.id", tenantID.String()))
	var out []*task.Task
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.task.ListPending", attrs, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, selectColumns+`
			FROM tasks WHERE tenant_id = $1 AND status = 'pending' ORDER BY scheduled_at`, tenantID)
		if err != nil {
			return platform.Internal("list pending tasks", err)
		}
		defer rows.Close()
		for rows.Next() {
			tk, err := scanTask(rows)
			if err != nil {
				return platform.Internal("scan task", err)
			}
			out = append(out, tk)
		}
		return rows.Err()
	})
	return out, err
}

const selectColumns = `SELECT id, tenant_id, kind, payload, status, attempts, scheduled_at, started_at,
	completed_at, last_error, result, lease_seconds, execution_seconds, retry_backoff_seconds`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t              task.Task
		status         string
		payload        []byte
		result         []byte
		scheduledAt    time.Time
		startedAt      pgtype.Timestamptz
		completedAt    pgtype.Timestamptz
		leaseSeconds   pgtype.Int8
		execSeconds    pgtype.Int8
		backoffSeconds pgtype.Int8
	)
	if err := row.Scan(&t.ID, &t.TenantID, &t.Kind, &payload, &status, &t.Attempts, &scheduledAt,
		&startedAt, &completedAt, &t.LastError, &result, &leaseSeconds, &execSeconds, &backoffSeconds); err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	t.ScheduledAt = scheduledAt
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t.Payload); err != nil {
			return nil, err
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &t.Result); err != nil {
			return nil, err
		}
	}
	if startedAt.Valid {
		v := startedAt.Time
		t.StartedAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	if leaseSeconds.Valid || execSeconds.Valid || backoffSeconds.Valid {
		timeouts := &task.Timeouts{}
		if leaseSeconds.Valid {
			timeouts.LeaseSeconds = &leaseSeconds.Int64
		}
		if execSeconds.Valid {
			timeouts.ExecutionSeconds = &execSeconds.Int64
		}
		if backoffSeconds.Valid {
			timeouts.RetryBackoffSeconds = &backoffSeconds.Int64
		}
		t.Timeouts = timeouts
	}
	return &t, nil
}

func timeoutColumns(t *task.Timeouts) (lease, exec, backoff pgtype.Int8) {
	if t == nil {
		return
	}
	if t.LeaseSeconds != nil {
		lease = pgtype.Int8{Int64: *t.LeaseSeconds, Valid: true}
	}
	if t.ExecutionSeconds != nil {
		exec = pgtype.Int8{Int64: *t.ExecutionSeconds, Valid: true}
	}
	if t.RetryBackoffSeconds != nil {
		backoff = pgtype.Int8{Int64: *t.RetryBackoffSeconds, Valid: true}
	}
	return
}

func nullTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func nullJSON(v map[string]any) []byte {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
