package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/steps"
)

// Trigger names what started a run.
type Trigger string

// Run triggers.
const (
	TriggerManual Trigger = "manual"
	TriggerCron   Trigger = "cron"
)

// Acceptance confirms that a run was started.
type Acceptance struct {
	WorkflowID int64     `json:"workflow_id"`
	EventID    string    `json:"event_id"`
	Trigger    Trigger   `json:"trigger"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Execute starts a manual run and returns without waiting for it.
//
// run_count and last_run are bumped before returning. The run itself executes under
// the manager's lifecycle context, so it outlives the caller's request. A second
// Execute while a run of the same workflow is in flight fails with
// domain.ErrRunInFlight.
func (m *Manager) Execute(ctx context.Context, id int64) (*Acceptance, error) {
	return m.execute(ctx, id, TriggerManual)
}

// InFlight reports whether a run of id is executing.
func (m *Manager) InFlight(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inFlight[id]
	return ok
}

func (m *Manager) execute(ctx context.Context, id int64, trigger Trigger) (*Acceptance, error) {
	w, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	factory, err := m.catalog.Lookup(w.Type)
	if err != nil {
		return nil, err
	}

	eventID := fmt.Sprintf("%s-%d-%s", trigger, id, uuid.NewString())
	if err = m.claim(id, eventID); err != nil {
		m.telemetry.RecordRunRejected(rejectReason(err))
		return nil, err
	}

	acceptedAt := m.now()
	if err = m.repo.RecordRunStart(ctx, id, acceptedAt); err != nil {
		m.release(id)
		m.runs.Done()
		return nil, err
	}

	event := steps.Event{Payload: payload(w.Config), ID: eventID, Timestamp: acceptedAt}
	instance := factory(w)

	m.telemetry.RecordRunStarted(string(w.Type), string(trigger))
	go m.supervise(w.Info(), instance, event, trigger)

	m.logger.Info("Workflow run accepted",
		infralogger.WorkflowID(id),
		infralogger.EventID(eventID),
		infralogger.String("trigger", string(trigger)),
	)
	return &Acceptance{WorkflowID: id, EventID: eventID, Trigger: trigger, AcceptedAt: acceptedAt}, nil
}

// claim marks id in flight and registers the run with the wait group.
func (m *Manager) claim(id int64, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if running, busy := m.inFlight[id]; busy {
		return fmt.Errorf("workflow %d (event %s): %w", id, running, domain.ErrRunInFlight)
	}
	m.inFlight[id] = eventID
	m.runs.Add(1)
	return nil
}

func (m *Manager) release(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, id)
}

// supervise runs the instance, then records the outcome and persists the result.
// Bookkeeping happens even when the lifecycle context was canceled mid-run.
func (m *Manager) supervise(info domain.WorkflowInfo, instance steps.Instance, event steps.Event, trigger Trigger) {
	defer m.runs.Done()
	defer m.release(info.ID)

	ctx, span := m.telemetry.StartSpan(m.ctx, "workflow.run",
		attribute.Int64("workflow_id", info.ID),
		attribute.String("workflow_type", string(info.Type)),
		attribute.String("event_id", event.ID),
		attribute.String("trigger", string(trigger)),
	)
	defer span.End()

	log := m.logger.With(infralogger.WorkflowID(info.ID), infralogger.EventID(event.ID))
	started := time.Now()

	runErr := runInstance(ctx, info, instance, event)
	succeeded := runErr == nil
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		log.Warn("Workflow run failed", infralogger.Error(runErr))
	}

	bookkeeping := context.WithoutCancel(ctx)
	if err := m.repo.RecordRunOutcome(bookkeeping, info.ID, succeeded); err != nil {
		log.Error("Failed to record run outcome", infralogger.Error(err))
	}
	if next, ok := m.registry.Next(info.ID); ok {
		m.storeNextRun(bookkeeping, info.ID, &next)
	}
	m.telemetry.RecordRunCompleted(string(info.Type), succeeded, time.Since(started))

	m.persister.Persist(bookkeeping, info, instance.LastRunResult())

	log.Info("Workflow run finished",
		infralogger.Bool("succeeded", succeeded),
		infralogger.Duration("duration", time.Since(started)),
	)
}

// runInstance converts instance errors and panics into *domain.InstanceExecutionError.
func runInstance(ctx context.Context, info domain.WorkflowInfo, instance steps.Instance, event steps.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &domain.InstanceExecutionError{WorkflowID: info.ID, EventID: event.ID, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if execErr := instance.Execute(ctx, event); execErr != nil {
		return &domain.InstanceExecutionError{WorkflowID: info.ID, EventID: event.ID, Err: execErr}
	}
	return nil
}

// fire is the scheduler trigger.
func (m *Manager) fire(id int64) {
	acceptance, err := m.execute(m.ctx, id, TriggerCron)
	switch {
	case errors.Is(err, domain.ErrRunInFlight):
		m.logger.Warn("Skipping scheduled run, previous run still in flight", infralogger.WorkflowID(id))
	case err != nil:
		m.logger.Error("Scheduled run failed to start", infralogger.WorkflowID(id), infralogger.Error(err))
	default:
		m.logger.Debug("Scheduled run started", infralogger.WorkflowID(id), infralogger.EventID(acceptance.EventID))
	}
}

func payload(config domain.JSONBMap) map[string]any {
	if config == nil {
		return map[string]any{}
	}
	return maps.Clone(map[string]any(config))
}

func rejectReason(err error) string {
	if errors.Is(err, domain.ErrRunInFlight) {
		return "in_flight"
	}
	return "closed"
}
