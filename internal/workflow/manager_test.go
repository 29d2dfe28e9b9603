package workflow_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/steps"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/workflow"
)

func TestManager_ScheduleScenario(t *testing.T) {
	h := newHarness(t)
	w := h.create(t, "0 3 * * *")

	started, err := h.manager.Start(t.Context(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, started.Status)

	handle, ok := h.registry.Handle(w.ID)
	require.True(t, ok)
	assert.Equal(t, "0 3 * * *", handle.Expr)
	require.NotNil(t, h.repo.row(w.ID).NextRun)
	next := h.repo.row(w.ID).NextRun.In(h.location)
	assert.Equal(t, 3, next.Hour())
	assert.Equal(t, 0, next.Minute())

	stopped, err := h.manager.Stop(t.Context(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, stopped.Status)
	_, ok = h.registry.Handle(w.ID)
	assert.False(t, ok)
	assert.Nil(t, h.repo.row(w.ID).NextRun)

	_, err = h.manager.Update(t.Context(), w.ID, &domain.WorkflowPatch{
		Schedule: strPtr("0 3 * *"),
		Status:   statusPtr(domain.StatusRunning),
	})
	var scheduleErr *domain.InvalidScheduleError
	require.ErrorAs(t, err, &scheduleErr)
	require.ErrorIs(t, err, domain.ErrValidation)

	status, err := h.manager.Status(t.Context(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, status)
	assert.Equal(t, "0 3 * * *", h.repo.row(w.ID).ScheduleExpr())
	assert.Equal(t, 0, h.registry.Len())
}

func TestManager_Create(t *testing.T) {
	tests := []struct {
		name    string
		req     workflow.CreateRequest
		wantErr error
	}{
		{name: "manual only", req: workflow.CreateRequest{Name: "m", Type: testType}},
		{name: "scheduled", req: workflow.CreateRequest{Name: "s", Type: testType, Schedule: "*/5 * * * *"}},
		{name: "missing name", req: workflow.CreateRequest{Name: "  ", Type: testType}, wantErr: domain.ErrValidation},
		{name: "unknown type", req: workflow.CreateRequest{Name: "u", Type: "VALID_TYPE"}, wantErr: domain.ErrValidation},
		{name: "four fields", req: workflow.CreateRequest{Name: "f", Type: testType, Schedule: "0 3 * *"}, wantErr: domain.ErrValidation},
		{name: "six fields", req: workflow.CreateRequest{Name: "x", Type: testType, Schedule: "0 0 3 * * *"}, wantErr: domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			w, err := h.manager.Create(t.Context(), tt.req, "tester")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				all, listErr := h.manager.List(t.Context())
				require.NoError(t, listErr)
				assert.Empty(t, all, "nothing persisted on rejection")
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, w.ID)
			assert.Equal(t, domain.StatusStopped, w.Status)
			assert.Equal(t, "tester", *w.CreatedBy)
			assert.NotNil(t, w.Config)
		})
	}
}

func TestManager_CreateUnknownTypeError(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.Create(t.Context(), workflow.CreateRequest{Name: "n", Type: "nope"}, "")

	var typeErr *domain.UnknownWorkflowTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, domain.WorkflowType("nope"), typeErr.Type)
}

func TestManager_StartAlreadyRunning(t *testing.T) {
	h := newHarness(t)
	w := h.create(t, "")

	_, err := h.manager.Start(t.Context(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, h.registry.Len(), "manual-only workflows are not armed")

	_, err = h.manager.Start(t.Context(), w.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyRunning)
}

func TestManager_StartInvalidStoredSchedule(t *testing.T) {
	h := newHarness(t)
	id := h.repo.put(&domain.Workflow{Name: "bad", Type: testType, Status: domain.StatusStopped, Schedule: strPtr("@daily")})

	_, err := h.manager.Start(t.Context(), id)

	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, domain.StatusStopped, h.repo.row(id).Status)
	status, _ := h.manager.Status(t.Context(), id)
	assert.Equal(t, domain.StatusStopped, status)
}

func TestManager_UpdateToRunningWithInvalidStoredSchedule(t *testing.T) {
	h := newHarness(t)
	id := h.repo.put(&domain.Workflow{Name: "bad", Type: testType, Status: domain.StatusStopped, Schedule: strPtr("@daily")})

	_, err := h.manager.Update(t.Context(), id, &domain.WorkflowPatch{
		Name:   strPtr("renamed"),
		Status: statusPtr(domain.StatusRunning),
	})

	require.ErrorIs(t, err, domain.ErrValidation)
	row := h.repo.row(id)
	assert.Equal(t, domain.StatusStopped, row.Status)
	assert.Equal(t, "bad", row.Name)
	status, _ := h.manager.Status(t.Context(), id)
	assert.Equal(t, domain.StatusStopped, status)
	_, armed := h.registry.Handle(id)
	assert.False(t, armed)
	assert.Zero(t, h.registry.Len())
}

func TestManager_StopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	w := h.create(t, "0 3 * * *")

	for range 2 {
		got, err := h.manager.Stop(t.Context(), w.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusStopped, got.Status)
	}

	_, err := h.manager.Stop(t.Context(), 999)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManager_UpdateReschedules(t *testing.T) {
	h := newHarness(t)
	w := h.create(t, "0 3 * * *")

	_, err := h.manager.Update(t.Context(), w.ID, &domain.WorkflowPatch{Status: statusPtr(domain.StatusRunning)})
	require.NoError(t, err)
	handle, ok := h.registry.Handle(w.ID)
	require.True(t, ok)
	assert.Equal(t, "0 3 * * *", handle.Expr)

	_, err = h.manager.Update(t.Context(), w.ID, &domain.WorkflowPatch{Schedule: strPtr("30 4 * * 1")})
	require.NoError(t, err)
	handle, ok = h.registry.Handle(w.ID)
	require.True(t, ok)
	assert.Equal(t, "30 4 * * 1", handle.Expr)
	assert.Equal(t, 1, h.registry.Len())

	_, err = h.manager.Update(t.Context(), w.ID, &domain.WorkflowPatch{Schedule: strPtr("")})
	require.NoError(t, err)
	assert.Equal(t, 0, h.registry.Len())
	assert.Nil(t, h.repo.row(w.ID).Schedule)

	_, err = h.manager.Update(t.Context(), w.ID, &domain.WorkflowPatch{
		Schedule: strPtr("0 1 * * *"),
		Status:   statusPtr(domain.StatusStopped),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, h.registry.Len())
}

func TestManager_UpdateScheduleOnStoppedDoesNotArm(t *testing.T) {
	h := newHarness(t)
	w := h.create(t, "")

	got, err := h.manager.Update(t.Context(), w.ID, &domain.WorkflowPatch{Schedule: strPtr("0 6 * * *"), Name: strPtr("renamed")})

	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "0 6 * * *", got.ScheduleExpr())
	assert.Equal(t, 0, h.registry.Len())
}

func TestManager_UpdateValidation(t *testing.T) {
	h := newHarness(t)
	w := h.create(t, "")

	_, err := h.manager.Update(t.Context(), w.ID, &domain.WorkflowPatch{Status: statusPtr("paused")})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.manager.Update(t.Context(), w.ID, &domain.WorkflowPatch{Name: strPtr(" ")})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = h.manager.Update(t.Context(), 404, &domain.WorkflowPatch{Name: strPtr("x")})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManager_Delete(t *testing.T) {
	h := newHarness(t)
	w := h.create(t, "0 3 * * *")
	_, err := h.manager.Start(t.Context(), w.ID)
	require.NoError(t, err)

	require.NoError(t, h.manager.Delete(t.Context(), w.ID))

	assert.Equal(t, 0, h.registry.Len())
	_, err = h.manager.GetByID(t.Context(), w.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.ErrorIs(t, h.manager.Delete(t.Context(), w.ID), domain.ErrNotFound)
}

func TestManager_StatusPrefersCache(t *testing.T) {
	h := newHarness(t)
	w := h.create(t, "")
	_, err := h.manager.Start(t.Context(), w.ID)
	require.NoError(t, err)

	require.NoError(t, h.repo.SetStatus(t.Context(), w.ID, domain.StatusStopped))

	got, err := h.manager.GetByID(t.Context(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, got.Status)
}

func TestManager_StatusFallsBackToPersisted(t *testing.T) {
	h := newHarness(t)
	id := h.repo.put(&domain.Workflow{Name: "seeded", Type: testType, Status: domain.StatusRunning})

	status, err := h.manager.Status(t.Context(), id)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, status)
}

func TestManager_ExecuteAcceptsImmediately(t *testing.T) {
	h := newHarness(t)
	h.instance.gate = make(chan struct{})
	h.instance.started = make(chan steps.Event, 1)
	w := h.create(t, "")

	acceptance, err := h.manager.Execute(t.Context(), w.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(acceptance.EventID, "manual-1-"), acceptance.EventID)
	assert.Equal(t, workflow.TriggerManual, acceptance.Trigger)

	row := h.repo.row(w.ID)
	assert.Equal(t, 1, row.RunCount)
	assert.NotNil(t, row.LastRun)
	assert.Equal(t, 0, row.SuccessCount+row.FailCount, "outcome counters move only after completion")

	event := <-h.instance.started
	assert.Equal(t, acceptance.EventID, event.ID)
	assert.Equal(t, map[string]any{}, event.Payload)

	_, err = h.manager.Execute(t.Context(), w.ID)
	require.ErrorIs(t, err, domain.ErrRunInFlight)
	assert.Equal(t, 1, h.repo.row(w.ID).RunCount, "rejected run bumps nothing")

	close(h.instance.gate)
	call := h.persister.next(t)
	assert.Equal(t, w.ID, call.info.ID)
	require.NotNil(t, call.result)
	assert.Equal(t, acceptance.EventID, call.result.EventID)

	row = h.repo.row(w.ID)
	assert.Equal(t, 1, row.SuccessCount)
	assert.Equal(t, 0, row.FailCount)
	require.Eventually(t, func() bool { return !h.manager.InFlight(w.ID) }, time.Second, 5*time.Millisecond)
}

func TestManager_ExecuteFailurePersistsPartialResult(t *testing.T) {
	h := newHarness(t)
	h.instance.err = errInstance
	w := h.create(t, "")

	_, err := h.manager.Execute(t.Context(), w.ID)
	require.NoError(t, err)

	call := h.persister.next(t)
	require.NotNil(t, call.result)
	assert.Equal(t, domain.RunFailure, call.result.Status)

	row := h.repo.row(w.ID)
	assert.Equal(t, 0, row.SuccessCount)
	assert.Equal(t, 1, row.FailCount)
}

func TestManager_ExecuteRecoversPanic(t *testing.T) {
	h := newHarness(t)
	h.instance.panics = true
	w := h.create(t, "")

	_, err := h.manager.Execute(t.Context(), w.ID)
	require.NoError(t, err)

	h.persister.next(t)
	assert.Equal(t, 1, h.repo.row(w.ID).FailCount)
}

func TestManager_ExecuteRealInstance(t *testing.T) {
	h := newHarness(t)
	w, err := h.manager.Create(t.Context(), workflow.CreateRequest{Name: "beat", Type: domain.TypeHeartbeat}, "")
	require.NoError(t, err)

	_, err = h.manager.Execute(t.Context(), w.ID)
	require.NoError(t, err)

	call := h.persister.next(t)
	require.NotNil(t, call.result)
	assert.Equal(t, domain.RunSuccess, call.result.Status)
	assert.NotEmpty(t, call.result.Logs)
	assert.Equal(t, 1, h.repo.row(w.ID).SuccessCount)
}

func TestManager_ExecuteErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.Execute(t.Context(), 42)
	require.ErrorIs(t, err, domain.ErrNotFound)

	id := h.repo.put(&domain.Workflow{Name: "retired", Type: "retired-type", Status: domain.StatusStopped})
	_, err = h.manager.Execute(t.Context(), id)
	var typeErr *domain.UnknownWorkflowTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, 0, h.repo.row(id).RunCount)
}

func TestManager_ShutdownWaitsAndRefuses(t *testing.T) {
	h := newHarness(t)
	h.instance.gate = make(chan struct{})
	w := h.create(t, "")

	_, err := h.manager.Execute(t.Context(), w.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.manager.Shutdown(ctx))

	call := h.persister.next(t)
	require.NotNil(t, call.result)
	assert.Equal(t, domain.RunFailure, call.result.Status)
	assert.Equal(t, 1, h.repo.row(w.ID).FailCount)

	_, err = h.manager.Execute(t.Context(), w.ID)
	require.True(t, errors.Is(err, workflow.ErrManagerClosed), "got %v", err)
}
