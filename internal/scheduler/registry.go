// Package scheduler keeps the live cron registrations for workflows.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

var (
	errEmptyExpression = errors.New("expression is empty")
	errTimezonePrefix  = errors.New("timezone prefixes are not allowed; schedules use the deployment timezone")
)

// parser accepts exactly five fields: minute hour day-of-month month day-of-week.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// TriggerFunc is invoked when a workflow's schedule fires.
type TriggerFunc func(workflowID int64)

// Handle describes one armed workflow.
type Handle struct {
	EntryID cron.EntryID
	Expr    string
	ArmedAt time.Time
}

// Registry maps workflow ids to live cron entries. At most one entry exists per id.
type Registry struct {
	cron     *cron.Cron
	location *time.Location
	log      logger.Logger

	mu      sync.RWMutex
	handles map[int64]Handle
	trigger TriggerFunc
}

// NewRegistry creates a registry that evaluates schedules in loc.
func NewRegistry(loc *time.Location, log logger.Logger) *Registry {
	if loc == nil {
		loc = time.UTC
	}
	cronLog := cronLogger{log: log}
	return &Registry{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLog)),
			cron.WithLogger(cronLog),
		),
		location: loc,
		log:      log,
		handles:  make(map[int64]Handle),
	}
}

// ValidateSchedule reports whether expr is a plain 5-field cron expression.
func ValidateSchedule(expr string) error {
	_, err := parse(expr)
	return err
}

func parse(expr string) (cron.Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, &domain.InvalidScheduleError{Expr: expr, Err: errEmptyExpression}
	}
	if strings.HasPrefix(trimmed, "TZ=") || strings.HasPrefix(trimmed, "CRON_TZ=") {
		return nil, &domain.InvalidScheduleError{Expr: expr, Err: errTimezonePrefix}
	}

	sched, err := parser.Parse(trimmed)
	if err != nil {
		return nil, &domain.InvalidScheduleError{Expr: expr, Err: err}
	}
	return sched, nil
}

// SetTrigger installs the function armed entries call. It must be set before Start.
func (r *Registry) SetTrigger(fn TriggerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trigger = fn
}

// Location returns the timezone schedules are evaluated in.
func (r *Registry) Location() *time.Location {
	return r.location
}

// Arm validates expr and replaces any existing entry for id with a new one.
// It returns the next fire time in the registry's location.
func (r *Registry) Arm(id int64, expr string) (time.Time, error) {
	sched, err := parse(expr)
	if err != nil {
		return time.Time{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.handles[id]; ok {
		r.cron.Remove(old.EntryID)
		delete(r.handles, id)
	}

	entryID := r.cron.Schedule(sched, cron.FuncJob(func() {
		r.fire(id)
	}))

	now := time.Now().In(r.location)
	r.handles[id] = Handle{EntryID: entryID, Expr: strings.TrimSpace(expr), ArmedAt: now}

	next := sched.Next(now)
	r.log.Info("Workflow schedule armed",
		logger.WorkflowID(id),
		logger.String("schedule", expr),
		logger.Time("next_run", next),
	)
	return next, nil
}

// Disarm removes id's entry. It reports whether one existed.
func (r *Registry) Disarm(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[id]
	if !ok {
		return false
	}
	r.cron.Remove(h.EntryID)
	delete(r.handles, id)

	r.log.Info("Workflow schedule disarmed", logger.WorkflowID(id), logger.String("schedule", h.Expr))
	return true
}

// Handle returns id's live entry.
func (r *Registry) Handle(id int64) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Next returns the next fire time of id's schedule.
func (r *Registry) Next(id int64) (time.Time, bool) {
	r.mu.RLock()
	h, ok := r.handles[id]
	r.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}

	sched, err := parser.Parse(h.Expr)
	if err != nil {
		return time.Time{}, false
	}
	return sched.Next(time.Now().In(r.location)), true
}

// Len returns the number of armed workflows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Start begins dispatching armed entries.
func (r *Registry) Start() {
	r.cron.Start()
	r.log.Info("Scheduler started", logger.String("timezone", r.location.String()))
}

// Stop halts dispatching and waits for running trigger calls, bounded by ctx.
func (r *Registry) Stop(ctx context.Context) error {
	done := r.cron.Stop().Done()
	select {
	case <-done:
		r.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) fire(id int64) {
	r.mu.RLock()
	trigger := r.trigger
	r.mu.RUnlock()

	if trigger == nil {
		r.log.Warn("Schedule fired without a trigger", logger.WorkflowID(id))
		return
	}
	r.log.Debug("Schedule fired", logger.WorkflowID(id))
	trigger(id)
}

// cronLogger adapts the infrastructure logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, logger.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, logger.Error(err), logger.Any("details", keysAndValues))
}
