package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

const workflowColumns = `id, name, type, description, status, schedule, config, last_run, next_run,
	run_count, success_count, fail_count, created_by, created_at, updated_at`

// WorkflowRepository persists workflow definitions and their run counters.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository creates a workflow repository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts w and fills in its id and timestamps.
func (r *WorkflowRepository) Create(ctx context.Context, w *domain.Workflow) error {
	query := `
		INSERT INTO workflows (name, type, description, status, schedule, config, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		w.Name,
		w.Type,
		w.Description,
		w.Status,
		w.Schedule,
		w.Config,
		w.CreatedBy,
	).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return nil
}

// GetByID loads one workflow. A missing row yields domain.ErrNotFound.
func (r *WorkflowRepository) GetByID(ctx context.Context, id int64) (*domain.Workflow, error) {
	var w domain.Workflow
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	if err := r.db.GetContext(ctx, &w, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return &w, nil
}

// List returns every workflow ordered by id.
func (r *WorkflowRepository) List(ctx context.Context) ([]*domain.Workflow, error) {
	workflows := []*domain.Workflow{}
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY id`

	if err := r.db.SelectContext(ctx, &workflows, query); err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// ListByStatus returns the workflows persisted with status.
func (r *WorkflowRepository) ListByStatus(ctx context.Context, status domain.WorkflowStatus) ([]*domain.Workflow, error) {
	workflows := []*domain.Workflow{}
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE status = $1 ORDER BY id`

	if err := r.db.SelectContext(ctx, &workflows, query, status); err != nil {
		return nil, fmt.Errorf("failed to list workflows by status: %w", err)
	}

	return workflows, nil
}

// Update applies the non-nil fields of patch. An empty schedule is stored as NULL.
func (r *WorkflowRepository) Update(ctx context.Context, id int64, patch *domain.WorkflowPatch) error {
	sets := []string{}
	args := []any{}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Description != nil {
		set("description", nullableString(*patch.Description))
	}
	if patch.Schedule != nil {
		set("schedule", nullableString(strings.TrimSpace(*patch.Schedule)))
	}
	if patch.Config != nil {
		set("config", *patch.Config)
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	set("updated_at", time.Now())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE workflows SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err = execRequireRows(result, err, fmt.Errorf("workflow %d: %w", id, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	return nil
}

// SetStatus writes the persisted status.
func (r *WorkflowRepository) SetStatus(ctx context.Context, id int64, status domain.WorkflowStatus) error {
	query := `UPDATE workflows SET status = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, status, id)
	if err = execRequireRows(result, err, fmt.Errorf("workflow %d: %w", id, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("failed to set workflow status: %w", err)
	}
	return nil
}

// Delete removes the workflow row. Run records keep their workflow_id.
func (r *WorkflowRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err = execRequireRows(result, err, fmt.Errorf("workflow %d: %w", id, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	return nil
}

// RecordRunStart bumps run_count and stamps last_run in one statement.
func (r *WorkflowRepository) RecordRunStart(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE workflows
		SET run_count = run_count + 1, last_run = $1, updated_at = $1
		WHERE id = $2
	`

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err = execRequireRows(result, err, fmt.Errorf("workflow %d: %w", id, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordRunOutcome bumps success_count or fail_count.
func (r *WorkflowRepository) RecordRunOutcome(ctx context.Context, id int64, succeeded bool) error {
	query := `UPDATE workflows SET fail_count = fail_count + 1, updated_at = NOW() WHERE id = $1`
	if succeeded {
		query = `UPDATE workflows SET success_count = success_count + 1, updated_at = NOW() WHERE id = $1`
	}

	result, err := r.db.ExecContext(ctx, query, id)
	if err = execRequireRows(result, err, fmt.Errorf("workflow %d: %w", id, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("failed to record run outcome: %w", err)
	}
	return nil
}

// SetNextRun stores the next scheduled fire time; nil clears it.
func (r *WorkflowRepository) SetNextRun(ctx context.Context, id int64, next *time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE workflows SET next_run = $1 WHERE id = $2`, next, id); err != nil {
		return fmt.Errorf("failed to set next run: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *WorkflowRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
