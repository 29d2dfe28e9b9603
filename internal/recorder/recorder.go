// Package recorder accumulates the side effects of a single workflow run.
//
// A Recorder performs no I/O. Steps append content, publishes and log lines as
// they go; Finalize freezes everything into a domain.RunResult that the
// persistence layer writes out after the run.
package recorder

import (
	"slices"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

const unknownError = "unknown error"

// Recorder collects one run's contents, publishes and logs.
type Recorder struct {
	mu sync.Mutex

	workflowID string
	eventID    string
	now        func() time.Time

	startedAt time.Time
	status    domain.RunStatus
	errMsg    string

	contents  []domain.RecordedContent
	publishes []domain.RecordedPublish
	logs      []domain.RecordedLog

	result *domain.RunResult
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// New starts a recorder for the given run. The start time is taken immediately.
func New(workflowID, eventID string, opts ...Option) *Recorder {
	r := &Recorder{
		workflowID: workflowID,
		eventID:    eventID,
		now:        time.Now,
		status:     domain.RunSuccess,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startedAt = r.now()
	return r
}

// EventID returns the run's event id.
func (r *Recorder) EventID() string {
	return r.eventID
}

// AddContent appends a content item. Nil keyword and tag sets become empty.
func (r *Recorder) AddContent(c domain.RecordedContent) {
	c = c.Clone()
	if c.Keywords == nil {
		c.Keywords = []string{}
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.contents = append(r.contents, c)
}

// AddPublish appends a publish outcome.
func (r *Recorder) AddPublish(p domain.RecordedPublish) {
	p = p.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishes = append(r.publishes, p)
}

// AddLog appends a log line. A zero timestamp is replaced with the current time.
func (r *Recorder) AddLog(l domain.RecordedLog) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l.Timestamp.IsZero() {
		l.Timestamp = r.now()
	}
	r.logs = append(r.logs, l)
}

// Info records an info line.
func (r *Recorder) Info(module, message string, details any) {
	r.AddLog(domain.RecordedLog{Level: domain.LevelInfo, Module: module, Message: message, Details: details})
}

// Warn records a warning line.
func (r *Recorder) Warn(module, message string, details any) {
	r.AddLog(domain.RecordedLog{Level: domain.LevelWarn, Module: module, Message: message, Details: details})
}

// Error records an error line.
func (r *Recorder) Error(module, message string, details any) {
	r.AddLog(domain.RecordedLog{Level: domain.LevelError, Module: module, Message: message, Details: details})
}

// SetFailure marks the run failed. Items already recorded are kept.
func (r *Recorder) SetFailure(err error) {
	msg := unknownError
	if err != nil {
		msg = err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = domain.RunFailure
	r.errMsg = msg
}

// Finalize stamps the finish time and snapshots the collections.
// Later calls return the same result; later Add and SetFailure calls do not affect it.
func (r *Recorder) Finalize() *domain.RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.result != nil {
		return r.result
	}

	contents := make([]domain.RecordedContent, len(r.contents))
	for i, c := range r.contents {
		contents[i] = c.Clone()
	}
	publishes := make([]domain.RecordedPublish, len(r.publishes))
	for i, p := range r.publishes {
		publishes[i] = p.Clone()
	}

	r.result = &domain.RunResult{
		WorkflowID: r.workflowID,
		EventID:    r.eventID,
		StartedAt:  r.startedAt,
		FinishedAt: r.now(),
		Status:     r.status,
		Error:      r.errMsg,
		Contents:   contents,
		Publishes:  publishes,
		Logs:       slices.Clone(r.logs),
	}
	if r.result.Logs == nil {
		r.result.Logs = []domain.RecordedLog{}
	}
	return r.result
}
