package domain

import (
	"maps"
	"slices"
	"time"
)

// RunStatus is the overall outcome of a run.
type RunStatus string

// Run outcomes.
const (
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
)

// LogLevel is the severity of a recorded log line.
type LogLevel string

// Recorded log levels.
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Publish statuses with special counting rules.
const (
	PublishStatusPublished = "published"
	PublishStatusFailed    = "failed"
)

// RecordedContent is a content item produced by a run.
// It dedups on URL when present, else on (Title, Source).
type RecordedContent struct {
	Title       string         `json:"title"`
	Body        string         `json:"body,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	URL         string         `json:"url,omitempty"`
	Source      string         `json:"source"`
	Platform    string         `json:"platform,omitempty"`
	Score       *float64       `json:"score,omitempty"`
	Keywords    []string       `json:"keywords"`
	Tags        []string       `json:"tags"`
	Status      string         `json:"status,omitempty"`
	PublishDate *time.Time     `json:"publish_date,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// RecordedPublish is one publish attempt made by a run.
type RecordedPublish struct {
	Title        string         `json:"title"`
	Platform     string         `json:"platform"`
	Status       string         `json:"status"`
	PublishTime  *time.Time     `json:"publish_time,omitempty"`
	URL          string         `json:"url,omitempty"`
	ArticleCount *int           `json:"article_count,omitempty"`
	SuccessCount *int           `json:"success_count,omitempty"`
	FailCount    *int           `json:"fail_count,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// RecordedLog is one log line emitted by a run.
type RecordedLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Module    string    `json:"module"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
}

// RunResult is the finalized record of a single run.
type RunResult struct {
	WorkflowID string            `json:"workflow_id"`
	EventID    string            `json:"event_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Status     RunStatus         `json:"status"`
	Error      string            `json:"error,omitempty"`
	Contents   []RecordedContent `json:"contents"`
	Publishes  []RecordedPublish `json:"publishes"`
	Logs       []RecordedLog     `json:"logs"`
}

// Succeeded reports whether the run finished without failure.
func (r *RunResult) Succeeded() bool {
	return r.Status == RunSuccess
}

// Clone returns a copy that shares no slices or maps with c.
func (c RecordedContent) Clone() RecordedContent {
	c.Keywords = slices.Clone(c.Keywords)
	c.Tags = slices.Clone(c.Tags)
	c.Metadata = maps.Clone(c.Metadata)
	if c.Score != nil {
		score := *c.Score
		c.Score = &score
	}
	if c.PublishDate != nil {
		date := *c.PublishDate
		c.PublishDate = &date
	}
	return c
}

// Clone returns a copy that shares no maps or pointers with p.
func (p RecordedPublish) Clone() RecordedPublish {
	p.Metadata = maps.Clone(p.Metadata)
	p.ArticleCount = cloneInt(p.ArticleCount)
	p.SuccessCount = cloneInt(p.SuccessCount)
	p.FailCount = cloneInt(p.FailCount)
	if p.PublishTime != nil {
		t := *p.PublishTime
		p.PublishTime = &t
	}
	return p
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}
