// Package steps is the step runtime that workflow instances are built on.
//
// A Runner executes ordered, named steps against a fresh Recorder per run. The
// lifecycle manager only sees the Instance interface.
package steps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/recorder"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/telemetry"
)

// ErrStepPanicked wraps a panic raised inside a step.
var ErrStepPanicked = errors.New("step panicked")

// Event triggers one run.
type Event struct {
	Payload   map[string]any
	ID        string
	Timestamp time.Time
}

// Instance is a runnable workflow.
type Instance interface {
	// Execute runs the workflow to completion.
	Execute(ctx context.Context, event Event) error
	// LastRunResult returns the finalized result of the last Execute, or nil.
	LastRunResult() *domain.RunResult
}

// RunContext is handed to each step of a run.
type RunContext struct {
	WorkflowID int64
	Event      Event
	Recorder   *recorder.Recorder
	Logger     logger.Logger
	// State carries values from earlier steps to later ones.
	State map[string]any
}

// Step is one named unit of work.
type Step struct {
	Name string
	Run  func(ctx context.Context, rc *RunContext) error
}

// Runner executes steps in order and stops at the first failure.
type Runner struct {
	workflowID int64
	steps      []Step
	log        logger.Logger
	telemetry  *telemetry.Provider
	clock      func() time.Time

	mu   sync.Mutex
	last *domain.RunResult
}

var _ Instance = (*Runner)(nil)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTelemetry wraps every step in a trace span.
func WithTelemetry(p *telemetry.Provider) RunnerOption {
	return func(r *Runner) {
		r.telemetry = p
	}
}

// WithClock overrides time.Now for recorded timestamps.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.clock = now
	}
}

// NewRunner creates a Runner for workflowID.
func NewRunner(workflowID int64, steps []Step, log logger.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		workflowID: workflowID,
		steps:      steps,
		log:        log,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs every step against a new Recorder. The recorder is finalized on
// every path, so LastRunResult reflects partial work after a failure.
func (r *Runner) Execute(ctx context.Context, event Event) error {
	rec := recorder.New(strconv.FormatInt(r.workflowID, 10), event.ID, recorder.WithClock(r.clock))
	rc := &RunContext{
		WorkflowID: r.workflowID,
		Event:      event,
		Recorder:   rec,
		Logger:     r.log.With(logger.WorkflowID(r.workflowID), logger.EventID(event.ID)),
		State:      map[string]any{},
	}

	err := r.runSteps(ctx, rc)
	if err != nil {
		rec.SetFailure(err)
	}

	result := rec.Finalize()
	r.mu.Lock()
	r.last = result
	r.mu.Unlock()

	return err
}

func (r *Runner) runSteps(ctx context.Context, rc *RunContext) error {
	for _, step := range r.steps {
		if err := ctx.Err(); err != nil {
			rc.Recorder.Warn(step.Name, "run canceled before step", map[string]any{"error": err.Error()})
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
		if err := r.runStep(ctx, step, rc); err != nil {
			return fmt.Errorf("step %s: %w", step.Name, err)
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, step Step, rc *RunContext) (err error) {
	ctx, span := r.telemetry.StartSpan(ctx, "workflow.step",
		attribute.String("step", step.Name),
		attribute.Int64("workflow_id", r.workflowID),
		attribute.String("event_id", rc.Event.ID),
	)
	defer span.End()

	start := r.clock()
	rc.Recorder.Info(step.Name, "step started", nil)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrStepPanicked, p)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			rc.Recorder.Error(step.Name, "step failed", map[string]any{"error": err.Error()})
			rc.Logger.Warn("Workflow step failed", logger.String("step", step.Name), logger.Error(err))
			return
		}
		rc.Recorder.Info(step.Name, "step finished", map[string]any{
			"duration_ms": r.clock().Sub(start).Milliseconds(),
		})
	}()

	return step.Run(ctx, rc)
}

// LastRunResult returns the result of the most recent Execute.
func (r *Runner) LastRunResult() *domain.RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
