// Package api provides HTTP handlers for the orchestrator service.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/jwt"
	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/workflow"
)

// WorkflowService is the lifecycle surface the handlers drive.
type WorkflowService interface {
	List(ctx context.Context) ([]*domain.Workflow, error)
	GetByID(ctx context.Context, id int64) (*domain.Workflow, error)
	Create(ctx context.Context, req workflow.CreateRequest, createdBy string) (*domain.Workflow, error)
	Update(ctx context.Context, id int64, patch *domain.WorkflowPatch) (*domain.Workflow, error)
	Delete(ctx context.Context, id int64) error
	Start(ctx context.Context, id int64) (*domain.Workflow, error)
	Stop(ctx context.Context, id int64) (*domain.Workflow, error)
	Execute(ctx context.Context, id int64) (*workflow.Acceptance, error)
	Types() []workflow.TypeInfo
}

// WorkflowHandler handles workflow HTTP requests.
type WorkflowHandler struct {
	svc    WorkflowService
	logger infralogger.Logger
}

// NewWorkflowHandler creates a new workflow handler.
func NewWorkflowHandler(svc WorkflowService, logger infralogger.Logger) *WorkflowHandler {
	return &WorkflowHandler{svc: svc, logger: logger}
}

// List handles GET /api/v1/workflows.
func (h *WorkflowHandler) List(c *gin.Context) {
	workflows, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": workflows, "total": len(workflows)})
}

// Get handles GET /api/v1/workflows/:id.
func (h *WorkflowHandler) Get(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	w, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Create handles POST /api/v1/workflows.
func (h *WorkflowHandler) Create(c *gin.Context) {
	var req workflow.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	w, err := h.svc.Create(c.Request.Context(), req, jwt.Subject(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// Update handles PUT /api/v1/workflows/:id.
func (h *WorkflowHandler) Update(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var patch domain.WorkflowPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	w, err := h.svc.Update(c.Request.Context(), id, &patch)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Delete handles DELETE /api/v1/workflows/:id.
func (h *WorkflowHandler) Delete(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Start handles POST /api/v1/workflows/:id/start.
func (h *WorkflowHandler) Start(c *gin.Context) {
	h.transition(c, h.svc.Start)
}

// Stop handles POST /api/v1/workflows/:id/stop.
func (h *WorkflowHandler) Stop(c *gin.Context) {
	h.transition(c, h.svc.Stop)
}

func (h *WorkflowHandler) transition(c *gin.Context, fn func(context.Context, int64) (*domain.Workflow, error)) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	w, err := fn(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

// Execute handles POST /api/v1/workflows/:id/execute.
// It answers 202 once the run is accepted; the outcome shows up in counters and logs.
func (h *WorkflowHandler) Execute(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	acceptance, err := h.svc.Execute(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, acceptance)
}

// Types handles GET /api/v1/workflow-types.
func (h *WorkflowHandler) Types(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"types": h.svc.Types()})
}

func (h *WorkflowHandler) parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workflow id"})
		return 0, false
	}
	return id, true
}
