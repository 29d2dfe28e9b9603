package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/persistence"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/scheduler"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/steps"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/workflow"
)

const testType domain.WorkflowType = "test-type"

var errInstance = errors.New("instance failed")

// memoryRepo is an in-memory workflow.Repository.
type memoryRepo struct {
	mu     sync.Mutex
	rows   map[int64]*domain.Workflow
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: map[int64]*domain.Workflow{}, nextID: 1}
}

func clone(w *domain.Workflow) *domain.Workflow {
	c := *w
	c.Config = maps.Clone(w.Config)
	return &c
}

func (r *memoryRepo) put(w *domain.Workflow) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.ID = r.nextID
	r.nextID++
	r.rows[w.ID] = clone(w)
	return w.ID
}

func (r *memoryRepo) row(id int64) *domain.Workflow {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.rows[id]; ok {
		return clone(w)
	}
	return nil
}

func (r *memoryRepo) Create(_ context.Context, w *domain.Workflow) error {
	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt
	r.put(w)
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id int64) (*domain.Workflow, error) {
	if w := r.row(id); w != nil {
		return w, nil
	}
	return nil, fmt.Errorf("workflow %d: %w", id, domain.ErrNotFound)
}

func (r *memoryRepo) List(_ context.Context) ([]*domain.Workflow, error) {
	return r.filter(func(*domain.Workflow) bool { return true }), nil
}

func (r *memoryRepo) ListByStatus(_ context.Context, status domain.WorkflowStatus) ([]*domain.Workflow, error) {
	return r.filter(func(w *domain.Workflow) bool { return w.Status == status }), nil
}

func (r *memoryRepo) filter(keep func(*domain.Workflow) bool) []*domain.Workflow {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := slices.Sorted(maps.Keys(r.rows))
	out := []*domain.Workflow{}
	for _, id := range ids {
		if keep(r.rows[id]) {
			out = append(out, clone(r.rows[id]))
		}
	}
	return out
}

func (r *memoryRepo) mutate(id int64, fn func(w *domain.Workflow)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.rows[id]
	if !ok {
		return fmt.Errorf("workflow %d: %w", id, domain.ErrNotFound)
	}
	fn(w)
	return nil
}

func (r *memoryRepo) Update(_ context.Context, id int64, patch *domain.WorkflowPatch) error {
	return r.mutate(id, func(w *domain.Workflow) {
		if patch.Name != nil {
			w.Name = *patch.Name
		}
		if patch.Description != nil {
			w.Description = patch.Description
		}
		if patch.Schedule != nil {
			w.Schedule = nil
			if *patch.Schedule != "" {
				s := *patch.Schedule
				w.Schedule = &s
			}
		}
		if patch.Config != nil {
			w.Config = maps.Clone(*patch.Config)
		}
		if patch.Status != nil {
			w.Status = *patch.Status
		}
	})
}

func (r *memoryRepo) SetStatus(_ context.Context, id int64, status domain.WorkflowStatus) error {
	return r.mutate(id, func(w *domain.Workflow) { w.Status = status })
}

func (r *memoryRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return fmt.Errorf("workflow %d: %w", id, domain.ErrNotFound)
	}
	delete(r.rows, id)
	return nil
}

func (r *memoryRepo) RecordRunStart(_ context.Context, id int64, at time.Time) error {
	return r.mutate(id, func(w *domain.Workflow) {
		w.RunCount++
		w.LastRun = &at
	})
}

func (r *memoryRepo) RecordRunOutcome(_ context.Context, id int64, succeeded bool) error {
	return r.mutate(id, func(w *domain.Workflow) {
		if succeeded {
			w.SuccessCount++
		} else {
			w.FailCount++
		}
	})
}

func (r *memoryRepo) SetNextRun(_ context.Context, id int64, next *time.Time) error {
	return r.mutate(id, func(w *domain.Workflow) { w.NextRun = next })
}

type persistCall struct {
	info   domain.WorkflowInfo
	result *domain.RunResult
}

// chanPersister reports every Persist call on a channel.
type chanPersister struct {
	calls chan persistCall
}

func (p *chanPersister) Persist(_ context.Context, info domain.WorkflowInfo, result *domain.RunResult) persistence.Summary {
	p.calls <- persistCall{info: info, result: result}
	return persistence.Summary{}
}

func (p *chanPersister) next(t *testing.T) persistCall {
	t.Helper()
	select {
	case call := <-p.calls:
		return call
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Persist")
		return persistCall{}
	}
}

// fakeInstance is a controllable steps.Instance.
type fakeInstance struct {
	mu      sync.Mutex
	gate    chan struct{}
	started chan steps.Event
	err     error
	panics  bool
	result  *domain.RunResult
}

func (f *fakeInstance) Execute(ctx context.Context, event steps.Event) error {
	if f.started != nil {
		f.started <- event
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			f.finish(event, ctx.Err())
			return ctx.Err()
		}
	}
	if f.panics {
		panic("instance exploded")
	}
	f.finish(event, f.err)
	return f.err
}

func (f *fakeInstance) finish(event steps.Event, err error) {
	result := &domain.RunResult{EventID: event.ID, Status: domain.RunSuccess}
	if err != nil {
		result.Status = domain.RunFailure
		result.Error = err.Error()
	}
	f.mu.Lock()
	f.result = result
	f.mu.Unlock()
}

func (f *fakeInstance) LastRunResult() *domain.RunResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

type harness struct {
	manager   *workflow.Manager
	repo      *memoryRepo
	persister *chanPersister
	registry  *scheduler.Registry
	instance  *fakeInstance
	location  *time.Location
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	h := &harness{
		repo:      newMemoryRepo(),
		persister: &chanPersister{calls: make(chan persistCall, 8)},
		registry:  scheduler.NewRegistry(loc, logger.NewNop()),
		instance:  &fakeInstance{},
		location:  loc,
	}

	catalog := workflow.NewCatalog()
	catalog.Register(testType, "test workflow", func(*domain.Workflow) steps.Instance { return h.instance })
	catalog.Register(domain.TypeHeartbeat, "heartbeat", func(w *domain.Workflow) steps.Instance {
		return steps.NewHeartbeat(steps.Dependencies{}, w.ID)
	})

	h.manager = workflow.NewManager(h.repo, catalog, h.registry, h.persister, logger.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.manager.Shutdown(ctx)
	})
	return h
}

func (h *harness) create(t *testing.T, schedule string) *domain.Workflow {
	t.Helper()

	w, err := h.manager.Create(t.Context(), workflow.CreateRequest{
		Name:     "daily-digest",
		Type:     testType,
		Schedule: schedule,
	}, "tester")
	require.NoError(t, err)
	return w
}

func strPtr(s string) *string { return &s }

func statusPtr(s domain.WorkflowStatus) *domain.WorkflowStatus { return &s }
