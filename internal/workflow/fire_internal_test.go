package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/persistence"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/scheduler"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/steps"
)

type stubRepo struct {
	Repository
	workflow *domain.Workflow
	starts   int
}

func (s *stubRepo) GetByID(context.Context, int64) (*domain.Workflow, error) {
	w := *s.workflow
	return &w, nil
}

func (s *stubRepo) RecordRunStart(context.Context, int64, time.Time) error {
	s.starts++
	return nil
}

func (s *stubRepo) RecordRunOutcome(context.Context, int64, bool) error { return nil }

func (s *stubRepo) SetNextRun(context.Context, int64, *time.Time) error { return nil }

type eventCapture struct {
	events chan string
}

func (e *eventCapture) Execute(_ context.Context, event steps.Event) error {
	e.events <- event.ID
	return nil
}

func (e *eventCapture) LastRunResult() *domain.RunResult { return nil }

type discardPersister struct{}

func (discardPersister) Persist(context.Context, domain.WorkflowInfo, *domain.RunResult) persistence.Summary {
	return persistence.Summary{}
}

func TestFire_StartsCronRun(t *testing.T) {
	repo := &stubRepo{workflow: &domain.Workflow{ID: 4, Name: "w", Type: "capture"}}
	capture := &eventCapture{events: make(chan string, 1)}

	catalog := NewCatalog()
	catalog.Register("capture", "", func(*domain.Workflow) steps.Instance { return capture })

	registry := scheduler.NewRegistry(time.UTC, logger.NewNop())
	m := NewManager(repo, catalog, registry, discardPersister{}, logger.NewNop())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	m.fire(4)

	select {
	case id := <-capture.events:
		assert.True(t, strings.HasPrefix(id, "cron-4-"), id)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run did not start")
	}
	require.Equal(t, 1, repo.starts)
}

func TestFire_AfterShutdownIsLogged(t *testing.T) {
	repo := &stubRepo{workflow: &domain.Workflow{ID: 4, Name: "w", Type: "capture"}}
	catalog := NewCatalog()
	catalog.Register("capture", "", func(*domain.Workflow) steps.Instance {
		return &eventCapture{events: make(chan string, 1)}
	})

	m := NewManager(repo, catalog, scheduler.NewRegistry(time.UTC, logger.NewNop()), discardPersister{}, logger.NewNop())
	require.NoError(t, m.Shutdown(context.Background()))

	m.fire(4)

	assert.Equal(t, 0, repo.starts)
}
