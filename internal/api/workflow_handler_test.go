package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/api"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/workflow"
)

const testSecret = "test-secret"

type mockWorkflowService struct {
	getFunc     func(id int64) (*domain.Workflow, error)
	createFunc  func(req workflow.CreateRequest, createdBy string) (*domain.Workflow, error)
	updateFunc  func(id int64, patch *domain.WorkflowPatch) (*domain.Workflow, error)
	deleteFunc  func(id int64) error
	startFunc   func(id int64) (*domain.Workflow, error)
	executeFunc func(id int64) (*workflow.Acceptance, error)
}

func (m *mockWorkflowService) List(context.Context) ([]*domain.Workflow, error) {
	return []*domain.Workflow{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}, nil
}

func (m *mockWorkflowService) GetByID(_ context.Context, id int64) (*domain.Workflow, error) {
	if m.getFunc != nil {
		return m.getFunc(id)
	}
	return &domain.Workflow{ID: id}, nil
}

func (m *mockWorkflowService) Create(_ context.Context, req workflow.CreateRequest, createdBy string) (*domain.Workflow, error) {
	if m.createFunc != nil {
		return m.createFunc(req, createdBy)
	}
	return &domain.Workflow{ID: 1, Name: req.Name, Type: req.Type}, nil
}

func (m *mockWorkflowService) Update(_ context.Context, id int64, patch *domain.WorkflowPatch) (*domain.Workflow, error) {
	if m.updateFunc != nil {
		return m.updateFunc(id, patch)
	}
	return &domain.Workflow{ID: id}, nil
}

func (m *mockWorkflowService) Delete(_ context.Context, id int64) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(id)
	}
	return nil
}

func (m *mockWorkflowService) Start(_ context.Context, id int64) (*domain.Workflow, error) {
	if m.startFunc != nil {
		return m.startFunc(id)
	}
	return &domain.Workflow{ID: id, Status: domain.StatusRunning}, nil
}

func (m *mockWorkflowService) Stop(_ context.Context, id int64) (*domain.Workflow, error) {
	return &domain.Workflow{ID: id, Status: domain.StatusStopped}, nil
}

func (m *mockWorkflowService) Execute(_ context.Context, id int64) (*workflow.Acceptance, error) {
	if m.executeFunc != nil {
		return m.executeFunc(id)
	}
	return &workflow.Acceptance{WorkflowID: id, EventID: "manual-1-x", Trigger: workflow.TriggerManual}, nil
}

func (m *mockWorkflowService) Types() []workflow.TypeInfo {
	return []workflow.TypeInfo{{Type: domain.TypeHeartbeat, Description: "heartbeat"}}
}

func setupTestRouter(t *testing.T, svc api.WorkflowService, secret string) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)

	router := gin.New()
	workflows := api.NewWorkflowHandler(svc, logger.NewNop())
	records := api.NewRecordsHandler(&mockPublishes{}, &mockLogs{}, newMockContents(), time.UTC, logger.NewNop())
	api.SetupRoutes(router, workflows, records, http.NotFoundHandler(), secret)

	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req, err := http.NewRequestWithContext(t.Context(), method, path, &buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func signToken(t *testing.T, subject string) string {
	t.Helper()

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestWorkflowHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: &domain.ValidationError{Field: "name", Message: "is required"}, want: http.StatusBadRequest},
		{name: "unknown type", err: &domain.UnknownWorkflowTypeError{Type: "x"}, want: http.StatusBadRequest},
		{name: "bad schedule", err: &domain.InvalidScheduleError{Expr: "0 3 * *"}, want: http.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("workflow 9: %w", domain.ErrNotFound), want: http.StatusNotFound},
		{name: "already running", err: fmt.Errorf("workflow 9: %w", domain.ErrAlreadyRunning), want: http.StatusConflict},
		{name: "in flight", err: fmt.Errorf("workflow 9: %w", domain.ErrRunInFlight), want: http.StatusConflict},
		{name: "shut down", err: workflow.ErrManagerClosed, want: http.StatusServiceUnavailable},
		{name: "unexpected", err: errors.New("connection reset"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockWorkflowService{
				executeFunc: func(int64) (*workflow.Acceptance, error) { return nil, tt.err },
			}
			router := setupTestRouter(t, svc, "")

			w := doRequest(t, router, http.MethodPost, "/api/v1/workflows/9/execute", nil, "")

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestWorkflowHandler_InternalErrorIsMasked(t *testing.T) {
	svc := &mockWorkflowService{
		getFunc: func(int64) (*domain.Workflow, error) { return nil, errors.New("pq: password authentication failed") },
	}
	router := setupTestRouter(t, svc, "")

	w := doRequest(t, router, http.MethodGet, "/api/v1/workflows/3", nil, "")

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Errorf("internal error leaked: %s", w.Body.String())
	}
}

func TestWorkflowHandler_Execute_Accepted(t *testing.T) {
	router := setupTestRouter(t, &mockWorkflowService{}, "")

	w := doRequest(t, router, http.MethodPost, "/api/v1/workflows/4/execute", nil, "")

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	var acceptance workflow.Acceptance
	if err := json.Unmarshal(w.Body.Bytes(), &acceptance); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if acceptance.WorkflowID != 4 {
		t.Errorf("workflow_id = %d, want 4", acceptance.WorkflowID)
	}
}

func TestWorkflowHandler_InvalidID(t *testing.T) {
	router := setupTestRouter(t, &mockWorkflowService{}, "")

	for _, path := range []string{"/api/v1/workflows/abc", "/api/v1/workflows/0"} {
		w := doRequest(t, router, http.MethodGet, path, nil, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, w.Code)
		}
	}
}

func TestWorkflowHandler_Create_UsesTokenSubject(t *testing.T) {
	var gotCreator string
	svc := &mockWorkflowService{
		createFunc: func(req workflow.CreateRequest, createdBy string) (*domain.Workflow, error) {
			gotCreator = createdBy
			return &domain.Workflow{ID: 5, Name: req.Name, Type: req.Type}, nil
		},
	}
	router := setupTestRouter(t, svc, testSecret)
	body := map[string]any{"name": "daily-digest", "type": "heartbeat", "schedule": "0 3 * * *"}

	w := doRequest(t, router, http.MethodPost, "/api/v1/workflows", body, signToken(t, "alice"))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if gotCreator != "alice" {
		t.Errorf("createdBy = %q, want alice", gotCreator)
	}
}

func TestWorkflowHandler_RequiresTokenWhenSecretSet(t *testing.T) {
	router := setupTestRouter(t, &mockWorkflowService{}, testSecret)

	w := doRequest(t, router, http.MethodGet, "/api/v1/workflows", nil, "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestWorkflowHandler_Update_PassesPatch(t *testing.T) {
	var got *domain.WorkflowPatch
	svc := &mockWorkflowService{
		updateFunc: func(id int64, patch *domain.WorkflowPatch) (*domain.Workflow, error) {
			got = patch
			return &domain.Workflow{ID: id}, nil
		},
	}
	router := setupTestRouter(t, svc, "")

	w := doRequest(t, router, http.MethodPut, "/api/v1/workflows/2", map[string]any{"status": "running"}, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got == nil || got.Status == nil || *got.Status != domain.StatusRunning {
		t.Errorf("patch status = %v, want running", got)
	}
	if got.Name != nil || got.Schedule != nil {
		t.Error("absent fields should stay nil")
	}
}

func TestWorkflowHandler_DeleteAndLists(t *testing.T) {
	router := setupTestRouter(t, &mockWorkflowService{}, "")

	if w := doRequest(t, router, http.MethodDelete, "/api/v1/workflows/2", nil, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	if w := doRequest(t, router, http.MethodGet, "/api/v1/workflows", nil, ""); w.Code != http.StatusOK {
		t.Errorf("list status = %d, want 200", w.Code)
	}
	if w := doRequest(t, router, http.MethodGet, "/api/v1/workflow-types", nil, ""); w.Code != http.StatusOK {
		t.Errorf("types status = %d, want 200", w.Code)
	}
	if w := doRequest(t, router, http.MethodPost, "/api/v1/workflows/2/stop", nil, ""); w.Code != http.StatusOK {
		t.Errorf("stop status = %d, want 200", w.Code)
	}
}
