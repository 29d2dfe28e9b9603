// Package workflow owns workflow definitions and their runs.
//
// The Manager keeps three things consistent: the persisted definition, the live
// cron registration in the scheduler registry, and the results of runs started
// either by hand or by the schedule.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/persistence"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/scheduler"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/telemetry"
)

// ErrManagerClosed is returned by Execute after Shutdown.
var ErrManagerClosed = errors.New("workflow manager is shut down")

// Repository is the workflow storage the manager needs.
type Repository interface {
	Create(ctx context.Context, w *domain.Workflow) error
	GetByID(ctx context.Context, id int64) (*domain.Workflow, error)
	List(ctx context.Context) ([]*domain.Workflow, error)
	ListByStatus(ctx context.Context, status domain.WorkflowStatus) ([]*domain.Workflow, error)
	Update(ctx context.Context, id int64, patch *domain.WorkflowPatch) error
	SetStatus(ctx context.Context, id int64, status domain.WorkflowStatus) error
	Delete(ctx context.Context, id int64) error
	RecordRunStart(ctx context.Context, id int64, at time.Time) error
	RecordRunOutcome(ctx context.Context, id int64, succeeded bool) error
	SetNextRun(ctx context.Context, id int64, next *time.Time) error
}

// Persister writes a finished run's result.
type Persister interface {
	Persist(ctx context.Context, info domain.WorkflowInfo, result *domain.RunResult) persistence.Summary
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	Name        string              `json:"name"`
	Type        domain.WorkflowType `json:"type"`
	Description string              `json:"description"`
	Schedule    string              `json:"schedule"`
	Config      map[string]any      `json:"config"`
}

// Manager is the workflow lifecycle manager.
type Manager struct {
	repo      Repository
	catalog   *Catalog
	registry  *scheduler.Registry
	persister Persister
	logger    infralogger.Logger
	telemetry *telemetry.Provider
	now       func() time.Time

	mu       sync.Mutex
	statuses map[int64]domain.WorkflowStatus
	inFlight map[int64]string
	closed   bool
	runs     sync.WaitGroup

	// ctx is the lifecycle context runs execute under. Shutdown cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithTelemetry records run metrics and spans.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(m *Manager) {
		m.telemetry = p
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager and installs it as the registry's trigger.
func NewManager(
	repo Repository,
	catalog *Catalog,
	registry *scheduler.Registry,
	persister Persister,
	logger infralogger.Logger,
	opts ...Option,
) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		repo:      repo,
		catalog:   catalog,
		registry:  registry,
		persister: persister,
		logger:    logger,
		now:       time.Now,
		statuses:  map[int64]domain.WorkflowStatus{},
		inFlight:  map[int64]string{},
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	registry.SetTrigger(m.fire)
	return m
}

// Types lists the workflow types Create accepts.
func (m *Manager) Types() []TypeInfo {
	return m.catalog.Types()
}

// List returns every workflow with cached statuses applied.
func (m *Manager) List(ctx context.Context) ([]*domain.Workflow, error) {
	workflows, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range workflows {
		w.Status = m.observe(w.ID, w.Status)
	}
	return workflows, nil
}

// GetByID returns one workflow with its cached status applied.
func (m *Manager) GetByID(ctx context.Context, id int64) (*domain.Workflow, error) {
	w, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	w.Status = m.observe(w.ID, w.Status)
	return w, nil
}

// Status returns the cached status, loading it on first use.
func (m *Manager) Status(ctx context.Context, id int64) (domain.WorkflowStatus, error) {
	m.mu.Lock()
	status, ok := m.statuses[id]
	m.mu.Unlock()
	if ok {
		return status, nil
	}

	w, err := m.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return w.Status, nil
}

// Create validates and stores a new stopped workflow.
func (m *Manager) Create(ctx context.Context, req CreateRequest, createdBy string) (*domain.Workflow, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Message: "is required"}
	}
	if _, err := m.catalog.Lookup(req.Type); err != nil {
		return nil, err
	}
	schedule := strings.TrimSpace(req.Schedule)
	if schedule != "" {
		if err := scheduler.ValidateSchedule(schedule); err != nil {
			return nil, err
		}
	}

	config := domain.JSONBMap(req.Config)
	if config == nil {
		config = domain.JSONBMap{}
	}

	w := &domain.Workflow{
		Name:        name,
		Type:        req.Type,
		Description: optional(strings.TrimSpace(req.Description)),
		Status:      domain.StatusStopped,
		Schedule:    optional(schedule),
		Config:      config,
		CreatedBy:   optional(createdBy),
	}
	if err := m.repo.Create(ctx, w); err != nil {
		return nil, err
	}
	m.setStatus(w.ID, domain.StatusStopped)

	m.logger.Info("Workflow created",
		infralogger.WorkflowID(w.ID),
		infralogger.String("name", w.Name),
		infralogger.String("type", string(w.Type)),
	)
	return w, nil
}

// Update applies a partial update and re-evaluates scheduling.
//
// With a status in the patch the workflow is armed when it ends up running with a
// schedule and disarmed otherwise. A schedule change on a running workflow re-arms it.
func (m *Manager) Update(ctx context.Context, id int64, patch *domain.WorkflowPatch) (*domain.Workflow, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	current, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return current, nil
	}

	expr := current.ScheduleExpr()
	if patch.Schedule != nil {
		trimmed := strings.TrimSpace(*patch.Schedule)
		patch.Schedule = &trimmed
		expr = trimmed
	}
	status := current.Status
	if patch.Status != nil {
		status = *patch.Status
	}
	reschedule := patch.Status != nil || (patch.Schedule != nil && current.Status == domain.StatusRunning)

	// The stored schedule is only checked here; it may predate validation.
	if reschedule && status == domain.StatusRunning && expr != "" {
		if err = scheduler.ValidateSchedule(expr); err != nil {
			return nil, err
		}
	}

	if err = m.repo.Update(ctx, id, patch); err != nil {
		return nil, err
	}
	if patch.Status != nil {
		m.setStatus(id, status)
	}
	if reschedule {
		if err = m.applySchedule(ctx, id, status, expr); err != nil {
			return nil, err
		}
	}

	m.logger.Info("Workflow updated", infralogger.WorkflowID(id), infralogger.String("status", string(status)))
	return m.GetByID(ctx, id)
}

func validatePatch(patch *domain.WorkflowPatch) error {
	if patch == nil {
		return &domain.ValidationError{Field: "body", Message: "is required"}
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return &domain.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *patch.Status)}
	}
	if patch.Schedule != nil {
		if expr := strings.TrimSpace(*patch.Schedule); expr != "" {
			return scheduler.ValidateSchedule(expr)
		}
	}
	return nil
}

// Delete disarms the workflow, deletes its row and forgets its status.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	if _, err := m.repo.GetByID(ctx, id); err != nil {
		return err
	}

	m.disarm(id)
	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.statuses, id)
	m.mu.Unlock()

	m.logger.Info("Workflow deleted", infralogger.WorkflowID(id))
	return nil
}

// Start arms the workflow's schedule, if any, and marks it running.
// An invalid stored schedule fails before anything is persisted.
func (m *Manager) Start(ctx context.Context, id int64) (*domain.Workflow, error) {
	w, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status == domain.StatusRunning {
		return nil, fmt.Errorf("workflow %d: %w", id, domain.ErrAlreadyRunning)
	}

	var next *time.Time
	if expr := w.ScheduleExpr(); expr != "" {
		at, armErr := m.registry.Arm(id, expr)
		if armErr != nil {
			return nil, armErr
		}
		next = &at
	}

	if err = m.repo.SetStatus(ctx, id, domain.StatusRunning); err != nil {
		m.disarm(id)
		return nil, err
	}
	m.setStatus(id, domain.StatusRunning)
	m.storeNextRun(ctx, id, next)
	m.telemetry.SetArmedWorkflows(m.registry.Len())

	w.Status = domain.StatusRunning
	w.NextRun = next
	m.logger.Info("Workflow started", infralogger.WorkflowID(id), infralogger.Bool("scheduled", next != nil))
	return w, nil
}

// Stop disarms the workflow and marks it stopped. Stopping a stopped workflow is a no-op.
// A run already in flight is not canceled.
func (m *Manager) Stop(ctx context.Context, id int64) (*domain.Workflow, error) {
	m.disarm(id)

	if err := m.repo.SetStatus(ctx, id, domain.StatusStopped); err != nil {
		return nil, err
	}
	m.setStatus(id, domain.StatusStopped)
	m.storeNextRun(ctx, id, nil)

	m.logger.Info("Workflow stopped", infralogger.WorkflowID(id))
	return m.GetByID(ctx, id)
}

// Shutdown refuses new runs, cancels the lifecycle context and waits for in-flight
// runs to finish their bookkeeping, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight runs: %w", ctx.Err())
	}
}

// applySchedule arms when running with a schedule and disarms otherwise.
func (m *Manager) applySchedule(ctx context.Context, id int64, status domain.WorkflowStatus, expr string) error {
	defer func() { m.telemetry.SetArmedWorkflows(m.registry.Len()) }()

	if status != domain.StatusRunning || expr == "" {
		m.disarm(id)
		m.storeNextRun(ctx, id, nil)
		return nil
	}

	next, err := m.registry.Arm(id, expr)
	if err != nil {
		return err
	}
	m.storeNextRun(ctx, id, &next)
	return nil
}

func (m *Manager) disarm(id int64) {
	if m.registry.Disarm(id) {
		m.telemetry.SetArmedWorkflows(m.registry.Len())
	}
}

// storeNextRun is best effort; next_run is informational.
func (m *Manager) storeNextRun(ctx context.Context, id int64, next *time.Time) {
	if err := m.repo.SetNextRun(ctx, id, next); err != nil {
		m.logger.Warn("Failed to store next run", infralogger.WorkflowID(id), infralogger.Error(err))
	}
}

// observe returns the cached status for id, caching persisted if none is known yet.
func (m *Manager) observe(id int64, persisted domain.WorkflowStatus) domain.WorkflowStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	if status, ok := m.statuses[id]; ok {
		return status
	}
	m.statuses[id] = persisted
	return persisted
}

func (m *Manager) setStatus(id int64, status domain.WorkflowStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = status
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
