package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

// PublishHistoryStore reads publish history rows.
type PublishHistoryStore interface {
	List(ctx context.Context, filter domain.PublishHistoryFilter) ([]*domain.PublishHistory, error)
	Count(ctx context.Context, filter domain.PublishHistoryFilter) (int, error)
}

// SystemLogStore reads and clears system log rows.
type SystemLogStore interface {
	List(ctx context.Context, filter domain.SystemLogFilter) ([]*domain.SystemLog, error)
	Count(ctx context.Context, filter domain.SystemLogFilter) (int, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// ContentStore manages content rows.
type ContentStore interface {
	List(ctx context.Context, filter domain.ContentFilter) ([]*domain.Content, error)
	Count(ctx context.Context, filter domain.ContentFilter) (int, error)
	GetByID(ctx context.Context, id int64) (*domain.Content, error)
	Patch(ctx context.Context, id int64, patch *domain.ContentPatch) error
	Delete(ctx context.Context, id int64) error
}

// exportLimit caps a plain-text log export.
const exportLimit = 1000

const exportTimeLayout = "2006-01-02 15:04:05"

// RecordsHandler serves the run records written by persistence.
type RecordsHandler struct {
	publishes PublishHistoryStore
	logs      SystemLogStore
	contents  ContentStore
	location  *time.Location
	logger    infralogger.Logger
}

// NewRecordsHandler creates a new records handler. Exported log timestamps are
// rendered in loc.
func NewRecordsHandler(
	publishes PublishHistoryStore,
	logs SystemLogStore,
	contents ContentStore,
	loc *time.Location,
	logger infralogger.Logger,
) *RecordsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &RecordsHandler{publishes: publishes, logs: logs, contents: contents, location: loc, logger: logger}
}

// listResponse is the envelope every paged listing uses.
func listResponse[T any](items []T, total, limit, offset int) gin.H {
	return gin.H{"items": items, "total": total, "limit": limit, "offset": offset}
}

// PublishHistory handles GET /api/v1/publish-history.
func (h *RecordsHandler) PublishHistory(c *gin.Context) {
	q := queryReader{c: c}
	filter := domain.PublishHistoryFilter{
		WorkflowID:   q.int64Param("workflow_id"),
		WorkflowType: c.Query("workflow_type"),
		Platform:     c.Query("platform"),
		Status:       c.Query("status"),
		Keyword:      c.Query("keyword"),
		From:         q.timeParam("from"),
		To:           q.timeParam("to"),
		Limit:        q.intParam("limit"),
		Offset:       q.intParam("offset"),
	}
	if q.err != nil {
		respondError(c, h.logger, q.err)
		return
	}

	ctx := c.Request.Context()
	rows, err := h.publishes.List(ctx, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	total, err := h.publishes.Count(ctx, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(rows, total, filter.Limit, filter.Offset))
}

func systemLogFilter(c *gin.Context) (domain.SystemLogFilter, error) {
	q := queryReader{c: c}
	filter := domain.SystemLogFilter{
		WorkflowID: q.int64Param("workflow_id"),
		Level:      domain.LogLevel(c.Query("level")),
		Module:     c.Query("module"),
		Keyword:    c.Query("keyword"),
		From:       q.timeParam("from"),
		To:         q.timeParam("to"),
		Limit:      q.intParam("limit"),
		Offset:     q.intParam("offset"),
	}
	return filter, q.err
}

// SystemLogs handles GET /api/v1/system-logs.
func (h *RecordsHandler) SystemLogs(c *gin.Context) {
	filter, err := systemLogFilter(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	ctx := c.Request.Context()
	rows, err := h.logs.List(ctx, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	total, err := h.logs.Count(ctx, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(rows, total, filter.Limit, filter.Offset))
}

// ClearSystemLogs handles DELETE /api/v1/system-logs.
func (h *RecordsHandler) ClearSystemLogs(c *gin.Context) {
	deleted, err := h.logs.DeleteAll(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("System logs cleared", infralogger.Int64("deleted", deleted))
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// ExportSystemLogs handles GET /api/v1/system-logs/export. It takes the same filters
// as SystemLogs and answers with one "[time] [LEVEL] [module] message" line per entry,
// newest first, capped at exportLimit lines.
func (h *RecordsHandler) ExportSystemLogs(c *gin.Context) {
	filter, err := systemLogFilter(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	filter.Limit = exportLimit
	filter.Offset = 0

	rows, err := h.logs.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	lines := make([]string, 0, len(rows))
	for _, l := range rows {
		lines = append(lines, fmt.Sprintf("[%s] [%s] [%s] %s",
			l.CreatedAt.In(h.location).Format(exportTimeLayout),
			strings.ToUpper(string(l.Level)),
			l.Module,
			l.Message,
		))
	}

	filename := fmt.Sprintf("system-logs-%s.txt", time.Now().In(h.location).Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(strings.Join(lines, "\n")))
}

// queryReader parses optional query parameters and keeps the first error.
type queryReader struct {
	c   *gin.Context
	err error
}

func (q *queryReader) intParam(key string) int {
	raw := q.c.Query(key)
	if raw == "" || q.err != nil {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.err = &domain.ValidationError{Field: key, Message: "must be an integer"}
	}
	return n
}

func (q *queryReader) int64Param(key string) *int64 {
	raw := q.c.Query(key)
	if raw == "" || q.err != nil {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		q.err = &domain.ValidationError{Field: key, Message: "must be an integer"}
		return nil
	}
	return &n
}

func (q *queryReader) timeParam(key string) *time.Time {
	raw := q.c.Query(key)
	if raw == "" || q.err != nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		q.err = &domain.ValidationError{Field: key, Message: "must be an RFC3339 timestamp"}
		return nil
	}
	return &t
}
