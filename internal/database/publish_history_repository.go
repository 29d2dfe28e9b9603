package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

// PublishHistoryRepository appends and lists publish outcomes.
type PublishHistoryRepository struct {
	db *sqlx.DB
}

// NewPublishHistoryRepository creates a publish history repository.
func NewPublishHistoryRepository(db *sqlx.DB) *PublishHistoryRepository {
	return &PublishHistoryRepository{db: db}
}

// Insert appends h and fills in its id.
func (r *PublishHistoryRepository) Insert(ctx context.Context, h *domain.PublishHistory) error {
	query := `
		INSERT INTO publish_history (title, platform, status, publish_time, url, article_count,
			success_count, fail_count, workflow_id, workflow_type, event_id, error_message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		h.Title, h.Platform, h.Status, h.PublishTime, h.URL, h.ArticleCount,
		h.SuccessCount, h.FailCount, h.WorkflowID, h.WorkflowType, h.EventID, h.ErrorMessage, h.Metadata, h.CreatedAt,
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("failed to insert publish history: %w", err)
	}
	return nil
}

func publishHistoryWhere(filter domain.PublishHistoryFilter) whereBuilder {
	var where whereBuilder
	if filter.WorkflowID != nil {
		where.add("workflow_id = ?", *filter.WorkflowID)
	}
	if filter.WorkflowType != "" {
		where.add("workflow_type = ?", filter.WorkflowType)
	}
	if filter.Platform != "" {
		where.add("platform = ?", filter.Platform)
	}
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}
	if filter.Keyword != "" {
		where.add("title ILIKE ?", "%"+filter.Keyword+"%")
	}
	if filter.From != nil {
		where.add("publish_time >= ?", *filter.From)
	}
	if filter.To != nil {
		where.add("publish_time <= ?", *filter.To)
	}
	return where
}

// List returns publish history newest first.
func (r *PublishHistoryRepository) List(ctx context.Context, filter domain.PublishHistoryFilter) ([]*domain.PublishHistory, error) {
	where := publishHistoryWhere(filter)

	query := `
		SELECT id, title, platform, status, publish_time, url, article_count, success_count, fail_count,
			workflow_id, workflow_type, event_id, error_message, metadata, created_at
		FROM publish_history` + where.sql() + ` ORDER BY publish_time DESC, id DESC` + where.page(filter.Limit, filter.Offset)

	rows := []*domain.PublishHistory{}
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("failed to list publish history: %w", err)
	}
	return rows, nil
}

// Count returns how many rows match filter, ignoring its paging.
func (r *PublishHistoryRepository) Count(ctx context.Context, filter domain.PublishHistoryFilter) (int, error) {
	where := publishHistoryWhere(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM publish_history`+where.sql(), where.args...); err != nil {
		return 0, fmt.Errorf("failed to count publish history: %w", err)
	}
	return total, nil
}
