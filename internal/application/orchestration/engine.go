// Package orchestration implements the task queue, scheduler strategies,
// lease bookkeeping, retry policy, and workflow dependency-graph runtime.
package orchestration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/watchdogstudios/cassandra-core/internal/domain/task"
	"github.com/watchdogstudios/cassandra-core/internal/domain/workflow"
	"github.com/watchdogstudios/cassandra-core/internal/platform"
	"github.com/watchdogstudios/cassandra-core/pkg/common/logger"
	"github.com/watchdogstudios/cassandra-core/pkg/common/timeutil"
)

// Engine is the task queue, lease manager, and workflow runtime. Four
// locks guard independent pieces of state (scheduler strategy, per-kind
// policy map, workflow-run map, lease-state map) plus a cursor mutex for
// the fairness-by-kind last-dispatched marker. When a single call needs
// more than one, they are acquired and released sequentially in the order
// lease-state → workflow-runs; no call holds both at once, and no store
// call or task enqueue happens while a lock is held. Each lease records its
// expiry, but nothing sweeps expired leases: a task whose lease has expired
// stays in progress until its holder completes or fails it.
type Engine struct {
	tasks     task.Store
	workflows workflow.Store

	strategyMu sync.RWMutex
	strategy   Strategy

	policiesMu sync.RWMutex
	policies   map[string]task.Policy

	runsMu sync.Mutex
	runs   map[uuid.UUID]*runState

	leasesMu sync.Mutex
	leases   map[uuid.UUID]*leaseState

	lastKindMu sync.Mutex
	lastKind   *string

	clock   timeutil.Provider
	log     *logger.Logger
	tracer  trace.Tracer
	metrics Metrics
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithClock overrides the time source (tests inject timeutil.Mock).
func WithClock(clock timeutil.Provider) Option { return func(e *Engine) { e.clock = clock } }

// WithLogger attaches a structured logger.
func WithLogger(log *logger.Logger) Option { return func(e *Engine) { e.log = log } }

// WithTracer attaches an OpenTelemetry tracer.
func WithTracer(tracer trace.Tracer) Option { return func(e *Engine) { e.tracer = tracer } }

// WithMetrics attaches a Metrics sink. Defaults to a no-op.
func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

// New constructs an Engine with the FIFO strategy active.
func New(tasks task.Store, workflows workflow.Store, opts ...Option) *Engine {
	e := &Engine{
		tasks:     tasks,
		workflows: workflows,
		strategy:  FIFO,
		policies:  make(map[string]task.Policy),
		runs:      make(map[uuid.UUID]*runState),
		leases:    make(map[uuid.UUID]*leaseState),
		clock:     timeutil.Default(),
		log:       logger.Noop(),
		tracer:    noop.NewTracerProvider().Tracer("orchestration"),
		metrics:   noopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetSchedulerStrategy swaps the active strategy and resets the
// fairness-by-kind cursor.
func (e *Engine) SetSchedulerStrategy(strategy Strategy) {
	e.lastKindMu.Lock()
	e.lastKind = nil
	e.lastKindMu.Unlock()

	e.strategyMu.Lock()
	e.strategy = strategy
	e.strategyMu.Unlock()
}

// RegisterTaskPolicy upserts the retry/priority/timeout policy for kind.
func (e *Engine) RegisterTaskPolicy(kind string, policy task.Policy) {
	e.policiesMu.Lock()
	e.policies[kind] = policy
	e.policiesMu.Unlock()
}

func (e *Engine) policyFor(kind string) task.Policy {
	e.policiesMu.RLock()
	defer e.policiesMu.RUnlock()
	if p, ok := e.policies[kind]; ok {
		return p
	}
	return task.DefaultPolicy()
}

// RegisterWorkflow persists an immutable workflow template.
func (e *Engine) RegisterWorkflow(ctx context.Context, tenantID uuid.UUID, name string, steps []workflow.Step) (*workflow.Workflow, error) {
	ctx, span := e.tracer.Start(ctx, "orchestration.RegisterWorkflow",
		trace.WithAttributes(attribute.String("tenant_id", tenantID.String()), attribute.String("name", name)))
	defer span.End()

	w, err := workflow.New(tenantID, name, steps, e.clock.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid workflow")
		return nil, err
	}
	if err := e.workflows.Insert(ctx, w); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist workflow")
		return nil, fmt.Errorf("persist workflow %s: %w", w.ID, err)
	}
	return w, nil
}

// ScheduleTask enqueues a single Pending task for request.Kind, resolving
// its timeouts from the registered policy when request.Timeouts is nil.
func (e *Engine) ScheduleTask(ctx context.Context, req task.Request) (*task.Task, error) {
	ctx, span := e.tracer.Start(ctx, "orchestration.ScheduleTask",
		trace.WithAttributes(attribute.String("tenant_id", req.TenantID.String()), attribute.String("kind", req.Kind)))
	defer span.End()

	timeouts := req.Timeouts
	if timeouts == nil {
		timeouts = e.policyFor(req.Kind).Timeouts
	}
	now := e.clock.Now()
	t := &task.Task{
		ID:          uuid.New(),
		TenantID:    req.TenantID,
		Kind:        req.Kind,
		Payload:     req.Payload,
		Status:      task.StatusPending,
		ScheduledAt: now,
		Timeouts:    timeouts,
	}
	if err := e.tasks.Enqueue(ctx, t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue task")
		return nil, err
	}
	span.SetAttributes(attribute.String("task_id", t.ID.String()))
	e.metrics.IncTaskScheduled(ctx, req.Kind)
	return t, nil
}

// ScheduleWorkflow creates a Run for workflowID, enqueues every step whose
// dependencies are already satisfied (typically the roots), and indexes
// the run for outcome tracking. Fails Forbidden when tenantID does not own
// the workflow.
func (e *Engine) ScheduleWorkflow(ctx context.Context, workflowID, tenantID uuid.UUID, initialPayload map[string]any) ([]*task.Task, error) {
	ctx, span := e.tracer.Start(ctx, "orchestration.ScheduleWorkflow",
		trace.WithAttributes(attribute.String("workflow_id", workflowID.String()), attribute.String("tenant_id", tenantID.String())))
	defer span.End()

	w, err := e.workflows.Get(ctx, workflowID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workflow lookup")
		return nil, err
	}
	if w.TenantID != tenantID {
		err := platform.Forbidden("workflow does not belong to tenant")
		span.RecordError(err)
		span.SetStatus(codes.Error, "tenant mismatch")
		return nil, err
	}

	now := e.clock.Now()
	waiting := make(map[uuid.UUID]struct{}, len(w.Steps))
	for _, step := range w.Steps {
		waiting[step.ID] = struct{}{}
	}
	run := &workflow.Run{
		ID:             uuid.New(),
		TenantID:       tenantID,
		WorkflowID:     w.ID,
		Status:         workflow.RunRunning,
		CreatedAt:      now,
		UpdatedAt:      now,
		StartedAt:      &now,
		Context:        initialPayload,
		WaitingSteps:   waiting,
		InflightSteps:  make(map[uuid.UUID]struct{}),
		CompletedKinds: make(map[string]struct{}),
		FailedKinds:    make(map[string]struct{}),
	}
	state := newRunState(run, w.Steps)
	ready := state.popReadySteps()

	var scheduled []*task.Task
	for _, step := range ready {
		t, err := e.ScheduleTask(ctx, task.Request{
			TenantID: tenantID,
			Kind:     step.TaskKind,
			Payload:  stepPayload(w.ID, run.ID, step.ID, initialPayload),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "schedule step task")
			return nil, err
		}
		scheduled = append(scheduled, t)
	}
	if len(scheduled) == 0 {
		run.Status = workflow.RunPending
	}

	e.runsMu.Lock()
	e.runs[run.ID] = state
	e.runsMu.Unlock()

	span.SetAttributes(attribute.String("run_id", run.ID.String()), attribute.Int("scheduled_count", len(scheduled)))
	e.metrics.IncWorkflowScheduled(ctx)
	return scheduled, nil
}

// LeaseNextTask selects the next eligible Pending task per the active
// strategy, flips it to InProgress, and installs a fresh lease. Returns
// (nil, nil) when nothing is eligible.
func (e *Engine) LeaseNextTask(ctx context.Context, tenantID, workerID uuid.UUID, leaseTTL time.Duration) (*task.Lease, error) {
	ctx, span := e.tracer.Start(ctx, "orchestration.LeaseNextTask",
		trace.WithAttributes(attribute.String("tenant_id", tenantID.String()), attribute.String("worker_id", workerID.String())))
	defer span.End()

	pending, err := e.tasks.ListPending(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	selected := e.selectTask(pending)
	if selected == nil {
		return nil, nil
	}

	now := e.clock.Now()
	selected.Status = task.StatusInProgress
	selected.StartedAt = &now
	if err := e.tasks.Update(ctx, selected); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update leased task")
		return nil, err
	}

	lease := e.startLease(selected, workerID, leaseTTL, now)
	span.SetAttributes(attribute.String("task_id", selected.ID.String()), attribute.Int64("lease_version", int64(lease.LeaseVersion)))
	e.metrics.IncTaskLeased(ctx, selected.Kind)
	e.metrics.SetInflightLeases(ctx, 1)
	return &lease, nil
}

func (e *Engine) selectTask(pending []*task.Task) *task.Task {
	if len(pending) == 0 {
		return nil
	}

	e.strategyMu.RLock()
	strategy := e.strategy
	e.strategyMu.RUnlock()

	var selected *task.Task
	switch strategy {
	case Priority:
		sorted := append([]*task.Task(nil), pending...)
		sort.SliceStable(sorted, func(i, j int) bool {
			pi := e.policyFor(sorted[i].Kind).Priority
			pj := e.policyFor(sorted[j].Kind).Priority
			if pi != pj {
				return pi < pj
			}
			return sorted[i].ScheduledAt.Before(sorted[j].ScheduledAt)
		})
		selected = sorted[0]
	case FairnessByKind:
		sorted := append([]*task.Task(nil), pending...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].ScheduledAt.Before(sorted[j].ScheduledAt)
		})
		e.lastKindMu.Lock()
		last := e.lastKind
		e.lastKindMu.Unlock()

		fallback := sorted[0]
		selected = fallback
		for _, t := range sorted {
			if last == nil || t.Kind != *last {
				selected = t
				break
			}
		}
	default: // FIFO
		sorted := append([]*task.Task(nil), pending...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].ScheduledAt.Before(sorted[j].ScheduledAt)
		})
		selected = sorted[0]
	}

	if selected != nil && strategy == FairnessByKind {
		e.lastKindMu.Lock()
		kind := selected.Kind
		e.lastKind = &kind
		e.lastKindMu.Unlock()
	}
	return selected
}

func (e *Engine) startLease(t *task.Task, workerID uuid.UUID, leaseTTL time.Duration, now time.Time) task.Lease {
	window := leaseTTL
	if t.Timeouts != nil && t.Timeouts.LeaseSeconds != nil {
		window = time.Duration(*t.Timeouts.LeaseSeconds) * time.Second
	}

	e.leasesMu.Lock()
	version := uint64(1)
	if existing, ok := e.leases[t.ID]; ok {
		version = existing.version + 1
	}
	ls := &leaseState{
		version:        version,
		token:          uuid.New(),
		workerID:       workerID,
		leasedAt:       now,
		leaseExpiresAt: now.Add(window),
	}
	e.leases[t.ID] = ls
	e.leasesMu.Unlock()

	return ls.toLease(*t)
}

func (e *Engine) clearLease(ctx context.Context, taskID uuid.UUID) {
	e.leasesMu.Lock()
	_, had := e.leases[taskID]
	delete(e.leases, taskID)
	e.leasesMu.Unlock()
	if had {
		e.metrics.SetInflightLeases(ctx, -1)
	}
}

// RenewTaskLease requires an existing, unexpired lease matching
// (workerID, leaseToken); on success it increments the lease version and
// extends lease_expires_at by extend.
func (e *Engine) RenewTaskLease(ctx context.Context, taskID, workerID, leaseToken uuid.UUID, extend time.Duration) (*task.Lease, error) {
	_, span := e.tracer.Start(ctx, "orchestration.RenewTaskLease",
		trace.WithAttributes(attribute.String("task_id", taskID.String()), attribute.String("worker_id", workerID.String())))
	defer span.End()

	e.leasesMu.Lock()
	ls, ok := e.leases[taskID]
	if !ok {
		e.leasesMu.Unlock()
		err := platform.InvalidInput("lease not found")
		span.RecordError(err)
		return nil, err
	}
	if ls.workerID != workerID {
		e.leasesMu.Unlock()
		err := platform.InvalidInput("worker mismatch")
		span.RecordError(err)
		return nil, err
	}
	if ls.token != leaseToken {
		e.leasesMu.Unlock()
		err := platform.InvalidInput("invalid lease token")
		span.RecordError(err)
		return nil, err
	}
	if ls.leaseExpiresAt.Before(e.clock.Now()) {
		e.leasesMu.Unlock()
		err := platform.InvalidInput("lease expired")
		span.RecordError(err)
		return nil, err
	}
	ls.version++
	ls.leaseExpiresAt = ls.leaseExpiresAt.Add(extend)
	renewed := *ls
	e.leasesMu.Unlock()

	t, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	lease := renewed.toLease(*t)
	span.SetAttributes(attribute.Int64("lease_version", int64(lease.LeaseVersion)))
	return &lease, nil
}

// CompleteTask marks a task Completed, clears its lease, and drives the
// owning workflow run (if any) forward.
func (e *Engine) CompleteTask(ctx context.Context, taskID uuid.UUID, result map[string]any) (*task.Task, error) {
	ctx, span := e.tracer.Start(ctx, "orchestration.CompleteTask",
		trace.WithAttributes(attribute.String("task_id", taskID.String())))
	defer span.End()

	t, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	now := e.clock.Now()
	t.Status = task.StatusCompleted
	t.CompletedAt = &now
	t.Result = result
	if err := e.tasks.Update(ctx, t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update completed task")
		return nil, err
	}
	e.clearLease(ctx, taskID)
	if err := e.handleTaskOutcome(ctx, t, true); err != nil {
		span.RecordError(err)
		return nil, err
	}
	e.metrics.IncTaskCompleted(ctx, t.Kind)
	if t.StartedAt != nil {
		e.metrics.ObserveTaskDuration(ctx, t.Kind, now.Sub(*t.StartedAt))
	}
	return t, nil
}

// FailTask increments attempts, records last_error, and either reschedules
// the task to Pending (per policy backoff) or finalizes it Failed, driving
// the owning workflow run forward on a terminal failure.
func (e *Engine) FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, retry bool) (*task.Task, error) {
	ctx, span := e.tracer.Start(ctx, "orchestration.FailTask",
		trace.WithAttributes(attribute.String("task_id", taskID.String()), attribute.Bool("retry", retry)))
	defer span.End()

	t, err := e.tasks.Get(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	t.Attempts++
	t.LastError = errMsg
	policy := e.policyFor(t.Kind)
	shouldRetry := retry && t.Attempts <= policy.MaxRetries

	now := e.clock.Now()
	if shouldRetry {
		t.Status = task.StatusPending
		t.StartedAt = nil
		t.CompletedAt = nil
		t.ScheduledAt = now.Add(time.Duration(policy.BackoffSeconds) * time.Second)
	} else {
		t.Status = task.StatusFailed
		t.CompletedAt = &now
	}
	if err := e.tasks.Update(ctx, t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed task")
		return nil, err
	}
	e.clearLease(ctx, taskID)

	if !shouldRetry {
		if err := e.handleTaskOutcome(ctx, t, false); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	e.metrics.IncTaskFailed(ctx, t.Kind, shouldRetry)
	return t, nil
}

// GetWorkflowRun returns a snapshot of the run, or ok=false if it is not
// indexed (either never scheduled or already finished and removed).
func (e *Engine) GetWorkflowRun(ctx context.Context, runID uuid.UUID) (*workflow.Run, bool) {
	_, span := e.tracer.Start(ctx, "orchestration.GetWorkflowRun",
		trace.WithAttributes(attribute.String("run_id", runID.String())))
	defer span.End()

	e.runsMu.Lock()
	defer e.runsMu.Unlock()
	state, ok := e.runs[runID]
	if !ok {
		return nil, false
	}
	run := *state.run
	return &run, true
}

// handleTaskOutcome inspects t's payload for workflow linkage; if present,
// it records the step's outcome, pops newly-ready steps under the
// workflow-run lock, releases the lock, then enqueues those steps. This
// guarantees no step is ever dispatched twice and the run lock is never
// held across an enqueue call.
func (e *Engine) handleTaskOutcome(ctx context.Context, t *task.Task, success bool) error {
	wfCtx, ok := extractWorkflowContext(t)
	if !ok {
		return nil
	}

	now := e.clock.Now()
	var ready []workflow.Step
	var runSnapshot workflow.Run
	var finished bool

	e.runsMu.Lock()
	state, ok := e.runs[wfCtx.runID]
	if !ok {
		e.runsMu.Unlock()
		return nil
	}
	state.markStepOutcome(wfCtx.stepID, success, now)
	ready = state.popReadySteps()
	runSnapshot = *state.run
	finished = state.isTerminal()
	e.runsMu.Unlock()

	for _, step := range ready {
		payload := stepPayload(runSnapshot.WorkflowID, runSnapshot.ID, step.ID, runSnapshot.Context)
		if _, err := e.ScheduleTask(ctx, task.Request{
			TenantID: runSnapshot.TenantID,
			Kind:     step.TaskKind,
			Payload:  payload,
		}); err != nil {
			return err
		}
	}

	if finished {
		e.runsMu.Lock()
		delete(e.runs, runSnapshot.ID)
		e.runsMu.Unlock()
	}
	return nil
}
