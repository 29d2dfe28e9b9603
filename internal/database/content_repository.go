package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

const contentColumns = `id, title, body, summary, url, source, platform, score, keywords, tags, status,
	publish_date, metadata, workflow_id, workflow_type, workflow_event_id, created_at, updated_at`

// ContentRepository stores content produced by workflow runs.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository creates a content repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// FindIDByURL returns the id of the row with exactly this url.
func (r *ContentRepository) FindIDByURL(ctx context.Context, url string) (int64, bool, error) {
	return r.findID(ctx, `SELECT id FROM content WHERE url = $1 ORDER BY id LIMIT 1`, url)
}

// FindIDByTitleSource returns the id of the row with exactly this title and source.
func (r *ContentRepository) FindIDByTitleSource(ctx context.Context, title, source string) (int64, bool, error) {
	return r.findID(ctx, `SELECT id FROM content WHERE title = $1 AND source = $2 ORDER BY id LIMIT 1`, title, source)
}

func (r *ContentRepository) findID(ctx context.Context, query string, args ...any) (int64, bool, error) {
	var id int64
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to look up content: %w", err)
	}
	return id, true, nil
}

// Insert writes a new row and fills in c.ID.
func (r *ContentRepository) Insert(ctx context.Context, c *domain.Content) error {
	query := `
		INSERT INTO content (title, body, summary, url, source, platform, score, keywords, tags, status,
			publish_date, metadata, workflow_id, workflow_type, workflow_event_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		c.Title, c.Body, c.Summary, c.URL, c.Source, c.Platform, c.Score, c.Keywords, c.Tags, c.Status,
		c.PublishDate, c.Metadata, c.WorkflowID, c.WorkflowType, c.WorkflowEventID, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to insert content: %w", err)
	}
	return nil
}

// Update overwrites row c.ID in place. created_at is left untouched.
func (r *ContentRepository) Update(ctx context.Context, c *domain.Content) error {
	query := `
		UPDATE content
		SET title = $1, body = $2, summary = $3, url = $4, source = $5, platform = $6, score = $7,
			keywords = $8, tags = $9, status = $10, publish_date = $11, metadata = $12,
			workflow_id = $13, workflow_type = $14, workflow_event_id = $15, updated_at = $16
		WHERE id = $17
	`

	result, err := r.db.ExecContext(ctx, query,
		c.Title, c.Body, c.Summary, c.URL, c.Source, c.Platform, c.Score, c.Keywords, c.Tags, c.Status,
		c.PublishDate, c.Metadata, c.WorkflowID, c.WorkflowType, c.WorkflowEventID, c.UpdatedAt, c.ID,
	)
	if err = execRequireRows(result, err, fmt.Errorf("content %d: %w", c.ID, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("failed to update content: %w", err)
	}
	return nil
}

// GetByID loads one content row. A missing row yields domain.ErrNotFound.
func (r *ContentRepository) GetByID(ctx context.Context, id int64) (*domain.Content, error) {
	var c domain.Content
	if err := r.db.GetContext(ctx, &c, `SELECT `+contentColumns+` FROM content WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("content %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return &c, nil
}

// Patch applies the non-nil fields of patch and bumps updated_at.
// Empty optional strings are stored as NULL.
func (r *ContentRepository) Patch(ctx context.Context, id int64, patch *domain.ContentPatch) error {
	sets := []string{}
	args := []any{}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Body != nil {
		set("body", nullableString(*patch.Body))
	}
	if patch.Summary != nil {
		set("summary", nullableString(*patch.Summary))
	}
	if patch.URL != nil {
		set("url", nullableString(*patch.URL))
	}
	if patch.Source != nil {
		set("source", *patch.Source)
	}
	if patch.Platform != nil {
		set("platform", nullableString(*patch.Platform))
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.Score != nil {
		set("score", *patch.Score)
	}
	if patch.PublishDate != nil {
		set("publish_date", *patch.PublishDate)
	}
	if patch.Keywords != nil {
		set("keywords", pq.StringArray(*patch.Keywords))
	}
	if patch.Tags != nil {
		set("tags", pq.StringArray(*patch.Tags))
	}
	set("updated_at", time.Now())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE content SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err = execRequireRows(result, err, fmt.Errorf("content %d: %w", id, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("failed to patch content: %w", err)
	}
	return nil
}

// Delete removes one content row.
func (r *ContentRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM content WHERE id = $1`, id)
	if err = execRequireRows(result, err, fmt.Errorf("content %d: %w", id, domain.ErrNotFound)); err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

func contentWhere(filter domain.ContentFilter) whereBuilder {
	var where whereBuilder
	if filter.Source != "" {
		where.add("source = ?", filter.Source)
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
	return where
}

// List returns content newest first.
func (r *ContentRepository) List(ctx context.Context, filter domain.ContentFilter) ([]*domain.Content, error) {
	where := contentWhere(filter)

	query := `SELECT ` + contentColumns + ` FROM content` + where.sql() + ` ORDER BY updated_at DESC, id DESC`
	query += where.page(filter.Limit, filter.Offset)

	items := []*domain.Content{}
	if err := r.db.SelectContext(ctx, &items, query, where.args...); err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}
	return items, nil
}

// Count returns how many rows match filter, ignoring its paging.
func (r *ContentRepository) Count(ctx context.Context, filter domain.ContentFilter) (int, error) {
	where := contentWhere(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM content`+where.sql(), where.args...); err != nil {
		return 0, fmt.Errorf("failed to count content: %w", err)
	}
	return total, nil
}
