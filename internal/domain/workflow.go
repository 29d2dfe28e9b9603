// Package domain holds the orchestrator's data types and error taxonomy.
package domain

import "time"

// WorkflowStatus is the persisted lifecycle state of a workflow.
type WorkflowStatus string

// Workflow statuses.
const (
	StatusStopped WorkflowStatus = "stopped"
	StatusRunning WorkflowStatus = "running"
)

// Valid reports whether s is a known status.
func (s WorkflowStatus) Valid() bool {
	return s == StatusStopped || s == StatusRunning
}

// WorkflowType selects the pluggable behaviour executed by a run.
type WorkflowType string

// Built-in workflow types.
const (
	TypeWebDigest WorkflowType = "web-digest"
	TypeHeartbeat WorkflowType = "heartbeat"
)

// Workflow is a persisted workflow definition.
type Workflow struct {
	ID           int64          `db:"id"            json:"id"`
	Name         string         `db:"name"          json:"name"`
	Type         WorkflowType   `db:"type"          json:"type"`
	Description  *string        `db:"description"   json:"description,omitempty"`
	Status       WorkflowStatus `db:"status"        json:"status"`
	Schedule     *string        `db:"schedule"      json:"schedule,omitempty"`
	Config       JSONBMap       `db:"config"        json:"config"`
	LastRun      *time.Time     `db:"last_run"      json:"last_run,omitempty"`
	NextRun      *time.Time     `db:"next_run"      json:"next_run,omitempty"`
	RunCount     int            `db:"run_count"     json:"run_count"`
	SuccessCount int            `db:"success_count" json:"success_count"`
	FailCount    int            `db:"fail_count"    json:"fail_count"`
	CreatedBy    *string        `db:"created_by"    json:"created_by,omitempty"`
	CreatedAt    time.Time      `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"    json:"updated_at"`
}

// ScheduleExpr returns the cron expression, or "" for manual-only workflows.
func (w *Workflow) ScheduleExpr() string {
	if w.Schedule == nil {
		return ""
	}
	return *w.Schedule
}

// Info is the identity handed to persistence for a finished run.
func (w *Workflow) Info() WorkflowInfo {
	return WorkflowInfo{ID: w.ID, Type: w.Type, Name: w.Name}
}

// WorkflowPatch is a partial update. Nil fields are left untouched.
// An empty Schedule clears it.
type WorkflowPatch struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Schedule    *string         `json:"schedule,omitempty"`
	Config      *JSONBMap       `json:"config,omitempty"`
	Status      *WorkflowStatus `json:"status,omitempty"`
}

// Empty reports whether the patch carries no changes.
func (p *WorkflowPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Schedule == nil && p.Config == nil && p.Status == nil
}

// WorkflowInfo identifies the workflow a run result belongs to.
type WorkflowInfo struct {
	ID   int64
	Type WorkflowType
	Name string
}

// DisplayName prefers the workflow name and falls back to its type.
func (i WorkflowInfo) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return string(i.Type)
}
