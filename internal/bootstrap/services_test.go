package bootstrap_test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/config"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/steps"
)

func TestNewCatalog_RegistersBuiltins(t *testing.T) {
	catalog := bootstrap.NewCatalog(steps.Dependencies{})

	types := catalog.Types()
	require.Len(t, types, 2)
	assert.Equal(t, domain.TypeHeartbeat, types[0].Type)
	assert.Equal(t, domain.TypeWebDigest, types[1].Type)

	factory, err := catalog.Lookup(domain.TypeWebDigest)
	require.NoError(t, err)
	assert.NotNil(t, factory(&domain.Workflow{ID: 1}))
}

func TestSetupServices_UsesConfiguredTimezone(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SCHEDULER_TIMEZONE", "America/Toronto")

	cfg, err := config.Load("absent.yml")
	require.NoError(t, err)

	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	services, err := bootstrap.SetupServices(cfg, sqlx.NewDb(mockDB, "postgres"), nil, infralogger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "America/Toronto", services.Registry.Location().String())
	assert.Equal(t, 0, services.Registry.Len())
	assert.Len(t, services.Manager.Types(), 2)
	assert.NotNil(t, services.Telemetry.Handler())
}
