package workflow

import (
	"context"
	"fmt"

	infralogger "github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

// ReconcileReport summarizes a Reconcile pass.
type ReconcileReport struct {
	Loaded int `json:"loaded"`
	Armed  int `json:"armed"`
	Failed int `json:"failed"`
}

// Reconcile restores scheduling after a restart. Every workflow persisted as running
// is cached as running and armed when it has a schedule. A workflow that fails to arm
// is logged and counted, and its stale next_run is cleared; the others are still armed.
func (m *Manager) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	workflows, err := m.repo.ListByStatus(ctx, domain.StatusRunning)
	if err != nil {
		return report, fmt.Errorf("load running workflows: %w", err)
	}

	for _, w := range workflows {
		report.Loaded++
		m.setStatus(w.ID, domain.StatusRunning)

		expr := w.ScheduleExpr()
		if expr == "" {
			if w.NextRun != nil {
				m.storeNextRun(ctx, w.ID, nil)
			}
			continue
		}

		next, armErr := m.registry.Arm(w.ID, expr)
		if armErr != nil {
			report.Failed++
			m.logger.Error("Failed to arm workflow during reconcile",
				infralogger.WorkflowID(w.ID),
				infralogger.String("schedule", expr),
				infralogger.Error(armErr),
			)
			m.storeNextRun(ctx, w.ID, nil)
			continue
		}
		report.Armed++
		m.storeNextRun(ctx, w.ID, &next)
	}

	m.telemetry.SetArmedWorkflows(m.registry.Len())
	m.logger.Info("Workflows reconciled",
		infralogger.Int("loaded", report.Loaded),
		infralogger.Int("armed", report.Armed),
		infralogger.Int("failed", report.Failed),
	)
	return report, nil
}
