package bootstrap_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/config"
)

func TestSetupHTTPServer_HealthAndMetrics(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("absent.yml")
	require.NoError(t, err)

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	db := sqlx.NewDb(mockDB, "postgres")

	services, err := bootstrap.SetupServices(cfg, db, nil, infralogger.NewNop())
	require.NoError(t, err)
	router := bootstrap.SetupHTTPServer(cfg, db, nil, services, infralogger.NewNop()).Router()

	mock.ExpectPing()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/api/v1/workflow-types", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `orchestrator_http_requests_total{method="GET",route="/api/v1/workflow-types",status="200"} 1`), body)
	assert.NoError(t, mock.ExpectationsWereMet())
}
