package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

// Contents handles GET /api/v1/contents.
func (h *RecordsHandler) Contents(c *gin.Context) {
	q := queryReader{c: c}
	filter := domain.ContentFilter{
		Source:   c.Query("source"),
		Platform: c.Query("platform"),
		Status:   c.Query("status"),
		Keyword:  c.Query("keyword"),
		Limit:    q.intParam("limit"),
		Offset:   q.intParam("offset"),
	}
	if q.err != nil {
		respondError(c, h.logger, q.err)
		return
	}

	ctx := c.Request.Context()
	rows, err := h.contents.List(ctx, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	total, err := h.contents.Count(ctx, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, listResponse(rows, total, filter.Limit, filter.Offset))
}

// GetContent handles GET /api/v1/contents/:id.
func (h *RecordsHandler) GetContent(c *gin.Context) {
	id, ok := parseContentID(c)
	if !ok {
		return
	}
	item, err := h.contents.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// UpdateContent handles PUT /api/v1/contents/:id.
func (h *RecordsHandler) UpdateContent(c *gin.Context) {
	id, ok := parseContentID(c)
	if !ok {
		return
	}

	var patch domain.ContentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := validateContentPatch(&patch); err != nil {
		respondError(c, h.logger, err)
		return
	}

	ctx := c.Request.Context()
	if !patch.Empty() {
		if err := h.contents.Patch(ctx, id, &patch); err != nil {
			respondError(c, h.logger, err)
			return
		}
		h.logger.Info("Content updated", infralogger.Int64("content_id", id))
	}

	item, err := h.contents.GetByID(ctx, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteContent handles DELETE /api/v1/contents/:id.
func (h *RecordsHandler) DeleteContent(c *gin.Context) {
	id, ok := parseContentID(c)
	if !ok {
		return
	}
	if err := h.contents.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Content deleted", infralogger.Int64("content_id", id))
	c.Status(http.StatusNoContent)
}

// validateContentPatch rejects blanking the columns that cannot be NULL.
func validateContentPatch(patch *domain.ContentPatch) error {
	required := []struct {
		field string
		value *string
	}{
		{"title", patch.Title},
		{"source", patch.Source},
		{"status", patch.Status},
	}
	for _, r := range required {
		if r.value == nil {
			continue
		}
		trimmed := strings.TrimSpace(*r.value)
		if trimmed == "" {
			return &domain.ValidationError{Field: r.field, Message: "must not be empty"}
		}
		*r.value = trimmed
	}
	return nil
}

func parseContentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content id"})
		return 0, false
	}
	return id, true
}
