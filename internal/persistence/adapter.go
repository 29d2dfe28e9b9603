// Package persistence writes finalized run results to durable storage.
//
// Persist runs three sequential phases (content upsert, publish history, system logs).
// Each record is written independently: a failure is logged, counted and skipped, and
// never aborts the phase or the phases after it. There is no cross-row transaction.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/telemetry"
)

// Content defaults.
const (
	DefaultContentSource = "unknown"
	DefaultContentStatus = "draft"
)

// ContentStore resolves and writes content rows.
type ContentStore interface {
	FindIDByURL(ctx context.Context, url string) (int64, bool, error)
	FindIDByTitleSource(ctx context.Context, title, source string) (int64, bool, error)
	Insert(ctx context.Context, c *domain.Content) error
	Update(ctx context.Context, c *domain.Content) error
}

// PublishHistoryStore appends publish history rows.
type PublishHistoryStore interface {
	Insert(ctx context.Context, h *domain.PublishHistory) error
}

// SystemLogStore appends system log rows.
type SystemLogStore interface {
	Insert(ctx context.Context, l *domain.SystemLog) error
}

// PhaseSummary counts the outcome of one phase.
type PhaseSummary struct {
	Written int
	Failed  int
}

// Summary reports what Persist wrote.
type Summary struct {
	Contents  PhaseSummary
	Publishes PhaseSummary
	Logs      PhaseSummary
	// Synthesized is true when the run had no logs and a summary line was written instead.
	Synthesized bool
}

// Adapter persists run results.
type Adapter struct {
	contents  ContentStore
	publishes PublishHistoryStore
	logs      SystemLogStore
	location  *time.Location
	log       logger.Logger
	telemetry *telemetry.Provider
	now       func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLocation sets the timezone used for the text log summary. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(a *Adapter) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithTelemetry counts written and failed records.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(a *Adapter) {
		a.telemetry = p
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// NewAdapter creates an Adapter over the three stores.
func NewAdapter(
	contents ContentStore,
	publishes PublishHistoryStore,
	logs SystemLogStore,
	log logger.Logger,
	opts ...Option,
) *Adapter {
	a := &Adapter{
		contents:  contents,
		publishes: publishes,
		logs:      logs,
		location:  time.UTC,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Persist writes result for the given workflow. A nil result is logged and ignored.
func (a *Adapter) Persist(ctx context.Context, info domain.WorkflowInfo, result *domain.RunResult) Summary {
	var summary Summary

	if result == nil {
		a.log.Warn("No run result to persist",
			logger.WorkflowID(info.ID),
			logger.String("workflow_type", string(info.Type)),
		)
		return summary
	}

	log := a.log.With(logger.WorkflowID(info.ID), logger.EventID(result.EventID))

	summary.Contents = a.persistContents(ctx, log, info, result)
	summary.Publishes = a.persistPublishes(ctx, log, info, result)
	summary.Logs, summary.Synthesized = a.persistLogs(ctx, log, info, result)

	log.Debug("Run result persisted",
		logger.Int("contents_written", summary.Contents.Written),
		logger.Int("publishes_written", summary.Publishes.Written),
		logger.Int("logs_written", summary.Logs.Written),
		logger.Int("failed", summary.Contents.Failed+summary.Publishes.Failed+summary.Logs.Failed),
	)

	return summary
}

func (a *Adapter) persistContents(
	ctx context.Context,
	log logger.Logger,
	info domain.WorkflowInfo,
	result *domain.RunResult,
) PhaseSummary {
	var phase PhaseSummary
	for i := range result.Contents {
		if err := a.upsertContent(ctx, info, result.EventID, &result.Contents[i]); err != nil {
			phase.Failed++
			a.itemFailed(log, domain.PhaseContent, i, err)
			continue
		}
		phase.Written++
	}
	a.count(domain.PhaseContent, phase)
	return phase
}

func (a *Adapter) upsertContent(ctx context.Context, info domain.WorkflowInfo, eventID string, rec *domain.RecordedContent) error {
	row := contentRow(info, eventID, rec)

	id, found, err := a.resolveContent(ctx, row)
	if err != nil {
		return err
	}

	now := a.now()
	row.UpdatedAt = now
	if found {
		row.ID = id
		return a.contents.Update(ctx, row)
	}
	row.CreatedAt = now
	return a.contents.Insert(ctx, row)
}

// resolveContent looks up by url first, then by (title, source).
func (a *Adapter) resolveContent(ctx context.Context, row *domain.Content) (int64, bool, error) {
	if row.URL != nil {
		id, found, err := a.contents.FindIDByURL(ctx, *row.URL)
		if err != nil || found {
			return id, found, err
		}
	}
	return a.contents.FindIDByTitleSource(ctx, row.Title, row.Source)
}

func contentRow(info domain.WorkflowInfo, eventID string, rec *domain.RecordedContent) *domain.Content {
	source := rec.Source
	if source == "" {
		source = DefaultContentSource
	}
	status := rec.Status
	if status == "" {
		status = DefaultContentStatus
	}
	keywords := rec.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	workflowID := info.ID
	workflowType := string(info.Type)

	return &domain.Content{
		Title:           rec.Title,
		Body:            optional(rec.Body),
		Summary:         optional(rec.Summary),
		URL:             optional(rec.URL),
		Source:          source,
		Platform:        optional(rec.Platform),
		Score:           rec.Score,
		Keywords:        pq.StringArray(keywords),
		Tags:            pq.StringArray(tags),
		Status:          status,
		PublishDate:     rec.PublishDate,
		Metadata:        domain.JSONBMap(rec.Metadata),
		WorkflowID:      &workflowID,
		WorkflowType:    &workflowType,
		WorkflowEventID: optional(eventID),
	}
}

func (a *Adapter) persistPublishes(
	ctx context.Context,
	log logger.Logger,
	info domain.WorkflowInfo,
	result *domain.RunResult,
) PhaseSummary {
	var phase PhaseSummary
	if len(result.Publishes) == 0 {
		return phase
	}

	textLogs := formatLogLines(result.Logs, a.location)
	rawLogs := rawLogEntries(result.Logs, a.location)

	for i := range result.Publishes {
		row := a.publishRow(info, result, &result.Publishes[i], textLogs, rawLogs)
		if err := a.publishes.Insert(ctx, row); err != nil {
			phase.Failed++
			a.itemFailed(log, domain.PhasePublishHistory, i, err)
			continue
		}
		phase.Written++
	}
	a.count(domain.PhasePublishHistory, phase)
	return phase
}

func (a *Adapter) publishRow(
	info domain.WorkflowInfo,
	result *domain.RunResult,
	rec *domain.RecordedPublish,
	textLogs []string,
	rawLogs []map[string]any,
) *domain.PublishHistory {
	counts := EffectiveCounts(rec)

	publishTime := a.now()
	switch {
	case rec.PublishTime != nil:
		publishTime = *rec.PublishTime
	case !result.FinishedAt.IsZero():
		publishTime = result.FinishedAt
	}

	metadata := make(domain.JSONBMap, len(rec.Metadata)+2)
	for k, v := range rec.Metadata {
		metadata[k] = v
	}
	metadata["logs"] = textLogs
	metadata["rawLogs"] = rawLogs

	return &domain.PublishHistory{
		Title:        rec.Title,
		Platform:     rec.Platform,
		Status:       rec.Status,
		PublishTime:  publishTime,
		URL:          optional(rec.URL),
		ArticleCount: counts.Articles,
		SuccessCount: counts.Success,
		FailCount:    counts.Fail,
		WorkflowID:   info.ID,
		WorkflowType: string(info.Type),
		EventID:      result.EventID,
		ErrorMessage: optional(rec.ErrorMessage),
		Metadata:     metadata,
		CreatedAt:    a.now(),
	}
}

func (a *Adapter) persistLogs(
	ctx context.Context,
	log logger.Logger,
	info domain.WorkflowInfo,
	result *domain.RunResult,
) (PhaseSummary, bool) {
	var phase PhaseSummary

	entries := result.Logs
	synthesized := len(entries) == 0
	if synthesized {
		entries = []domain.RecordedLog{summaryLog(info, result, a.now())}
	}

	workflowID := info.ID
	workflowType := string(info.Type)
	eventID := optional(result.EventID)

	for i := range entries {
		entry := &entries[i]
		row := &domain.SystemLog{
			Level:        entry.Level,
			Module:       entry.Module,
			Message:      entry.Message,
			Details:      domain.JSONValue{V: entry.Details},
			WorkflowID:   &workflowID,
			WorkflowType: &workflowType,
			EventID:      eventID,
			CreatedAt:    entry.Timestamp,
		}
		if err := a.logs.Insert(ctx, row); err != nil {
			phase.Failed++
			a.itemFailed(log, domain.PhaseSystemLog, i, err)
			continue
		}
		phase.Written++
	}
	a.count(domain.PhaseSystemLog, phase)
	return phase, synthesized
}

// summaryLog stands in for a run that recorded no log lines.
func summaryLog(info domain.WorkflowInfo, result *domain.RunResult, now time.Time) domain.RecordedLog {
	entry := domain.RecordedLog{
		Timestamp: now,
		Level:     domain.LevelInfo,
		Module:    string(info.Type),
		Message:   "workflow " + info.DisplayName() + " succeeded",
	}
	if !result.Succeeded() {
		entry.Level = domain.LevelError
		entry.Message = "workflow " + info.DisplayName() + " failed"
	}
	if result.Error != "" {
		entry.Details = map[string]any{"error": result.Error}
	}
	return entry
}

func (a *Adapter) itemFailed(log logger.Logger, phase string, index int, err error) {
	itemErr := &domain.PersistenceItemError{Phase: phase, Index: index, Err: err}
	log.Error("Failed to persist run record",
		logger.String("phase", phase),
		logger.Int("index", index),
		logger.Error(itemErr),
		logger.Bool("canceled", errors.Is(err, context.Canceled)),
	)
}

func (a *Adapter) count(phase string, s PhaseSummary) {
	a.telemetry.RecordPersisted(phase, telemetry.OutcomeWritten, s.Written)
	a.telemetry.RecordPersisted(phase, telemetry.OutcomeFailed, s.Failed)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
