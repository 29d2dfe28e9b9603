package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

// SystemLogRepository appends and searches run log lines.
type SystemLogRepository struct {
	db *sqlx.DB
}

// NewSystemLogRepository creates a system log repository.
func NewSystemLogRepository(db *sqlx.DB) *SystemLogRepository {
	return &SystemLogRepository{db: db}
}

// Insert appends l and fills in its id.
func (r *SystemLogRepository) Insert(ctx context.Context, l *domain.SystemLog) error {
	query := `
		INSERT INTO system_logs (level, module, message, details, workflow_id, workflow_type, event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		l.Level, l.Module, l.Message, l.Details, l.WorkflowID, l.WorkflowType, l.EventID, l.CreatedAt,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("failed to insert system log: %w", err)
	}
	return nil
}

func systemLogWhere(filter domain.SystemLogFilter) whereBuilder {
	var where whereBuilder
	if filter.WorkflowID != nil {
		where.add("workflow_id = ?", *filter.WorkflowID)
	}
	if filter.Level != "" {
		where.add("level = ?", filter.Level)
	}
	if filter.Module != "" {
		where.add("module = ?", filter.Module)
	}
	if filter.Keyword != "" {
		where.add("(message ILIKE ? OR module ILIKE ?)", "%"+filter.Keyword+"%")
	}
	if filter.From != nil {
		where.add("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		where.add("created_at <= ?", *filter.To)
	}
	return where
}

// List returns matching log lines newest first. Keyword matches message or module, case-insensitively.
func (r *SystemLogRepository) List(ctx context.Context, filter domain.SystemLogFilter) ([]*domain.SystemLog, error) {
	where := systemLogWhere(filter)

	query := `
		SELECT id, level, module, message, details, workflow_id, workflow_type, event_id, created_at
		FROM system_logs` + where.sql() + ` ORDER BY created_at DESC, id DESC` + where.page(filter.Limit, filter.Offset)

	logs := []*domain.SystemLog{}
	if err := r.db.SelectContext(ctx, &logs, query, where.args...); err != nil {
		return nil, fmt.Errorf("failed to list system logs: %w", err)
	}
	return logs, nil
}

// Count returns how many log lines match filter, ignoring its paging.
func (r *SystemLogRepository) Count(ctx context.Context, filter domain.SystemLogFilter) (int, error) {
	where := systemLogWhere(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM system_logs`+where.sql(), where.args...); err != nil {
		return 0, fmt.Errorf("failed to count system logs: %w", err)
	}
	return total, nil
}

// DeleteAll clears the table and returns how many lines were removed.
func (r *SystemLogRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM system_logs`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete system logs: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}
