package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Transport code classifies with errors.Is.
var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrAlreadyRunning = errors.New("workflow is already running")
	ErrRunInFlight    = errors.New("workflow run already in flight")
)

// ValidationError rejects a single bad field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UnknownWorkflowTypeError rejects a type tag outside the catalog.
type UnknownWorkflowTypeError struct {
	Type WorkflowType
}

func (e *UnknownWorkflowTypeError) Error() string {
	return fmt.Sprintf("unknown workflow type %q", e.Type)
}

func (e *UnknownWorkflowTypeError) Unwrap() error { return ErrValidation }

// InvalidScheduleError rejects a schedule that is not a plain 5-field cron expression.
type InvalidScheduleError struct {
	Expr string
	Err  error
}

func (e *InvalidScheduleError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid cron expression %q", e.Expr)
	}
	return fmt.Sprintf("invalid cron expression %q: %v", e.Expr, e.Err)
}

func (e *InvalidScheduleError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// Persistence phases.
const (
	PhaseContent        = "content"
	PhasePublishHistory = "publish_history"
	PhaseSystemLog      = "system_log"
)

// PersistenceItemError is one record that could not be written.
// It is logged and skipped, never returned from a run's completion handling.
type PersistenceItemError struct {
	Phase string
	Index int
	Err   error
}

func (e *PersistenceItemError) Error() string {
	return fmt.Sprintf("persist %s item %d: %v", e.Phase, e.Index, e.Err)
}

func (e *PersistenceItemError) Unwrap() error { return e.Err }

// InstanceExecutionError is a failed or panicking workflow instance.
type InstanceExecutionError struct {
	WorkflowID int64
	EventID    string
	Err        error
}

func (e *InstanceExecutionError) Error() string {
	return fmt.Sprintf("workflow %d run %s: %v", e.WorkflowID, e.EventID, e.Err)
}

func (e *InstanceExecutionError) Unwrap() error { return e.Err }
