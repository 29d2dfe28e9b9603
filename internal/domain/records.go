package domain

import (
	"time"

	"github.com/lib/pq"
)

// Content is a row of the content table.
type Content struct {
	ID              int64          `db:"id"                json:"id"`
	Title           string         `db:"title"             json:"title"`
	Body            *string        `db:"body"              json:"body,omitempty"`
	Summary         *string        `db:"summary"           json:"summary,omitempty"`
	URL             *string        `db:"url"               json:"url,omitempty"`
	Source          string         `db:"source"            json:"source"`
	Platform        *string        `db:"platform"          json:"platform,omitempty"`
	Score           *float64       `db:"score"             json:"score,omitempty"`
	Keywords        pq.StringArray `db:"keywords"          json:"keywords"`
	Tags            pq.StringArray `db:"tags"              json:"tags"`
	Status          string         `db:"status"            json:"status"`
	PublishDate     *time.Time     `db:"publish_date"      json:"publish_date,omitempty"`
	Metadata        JSONBMap       `db:"metadata"          json:"metadata,omitempty"`
	WorkflowID      *int64         `db:"workflow_id"       json:"workflow_id,omitempty"`
	WorkflowType    *string        `db:"workflow_type"     json:"workflow_type,omitempty"`
	WorkflowEventID *string        `db:"workflow_event_id" json:"workflow_event_id,omitempty"`
	CreatedAt       time.Time      `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"        json:"updated_at"`
}

// PublishHistory is a row of the append-only publish_history table.
type PublishHistory struct {
	ID           int64     `db:"id"            json:"id"`
	Title        string    `db:"title"         json:"title"`
	Platform     string    `db:"platform"      json:"platform"`
	Status       string    `db:"status"        json:"status"`
	PublishTime  time.Time `db:"publish_time"  json:"publish_time"`
	URL          *string   `db:"url"           json:"url,omitempty"`
	ArticleCount int       `db:"article_count" json:"article_count"`
	SuccessCount int       `db:"success_count" json:"success_count"`
	FailCount    int       `db:"fail_count"    json:"fail_count"`
	WorkflowID   int64     `db:"workflow_id"   json:"workflow_id"`
	WorkflowType string    `db:"workflow_type" json:"workflow_type"`
	EventID      string    `db:"event_id"      json:"event_id"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	Metadata     JSONBMap  `db:"metadata"      json:"metadata,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}

// SystemLog is a row of the append-only system_logs table.
type SystemLog struct {
	ID           int64     `db:"id"            json:"id"`
	Level        LogLevel  `db:"level"         json:"level"`
	Module       string    `db:"module"        json:"module"`
	Message      string    `db:"message"       json:"message"`
	Details      JSONValue `db:"details"       json:"details,omitempty"`
	WorkflowID   *int64    `db:"workflow_id"   json:"workflow_id,omitempty"`
	WorkflowType *string   `db:"workflow_type" json:"workflow_type,omitempty"`
	EventID      *string   `db:"event_id"      json:"event_id,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}

// ContentPatch is a partial content update. Nil fields are left untouched.
type ContentPatch struct {
	Title       *string    `json:"title,omitempty"`
	Body        *string    `json:"body,omitempty"`
	Summary     *string    `json:"summary,omitempty"`
	URL         *string    `json:"url,omitempty"`
	Source      *string    `json:"source,omitempty"`
	Platform    *string    `json:"platform,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	PublishDate *time.Time `json:"publish_date,omitempty"`
	Keywords    *[]string  `json:"keywords,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
}

// Empty reports whether the patch carries no changes.
func (p *ContentPatch) Empty() bool {
	return p.Title == nil && p.Body == nil && p.Summary == nil && p.URL == nil && p.Source == nil &&
		p.Platform == nil && p.Status == nil && p.Score == nil && p.PublishDate == nil &&
		p.Keywords == nil && p.Tags == nil
}

// ContentFilter narrows content listings. Keyword matches the title.
type ContentFilter struct {
	Source   string
	Platform string
	Status   string
	Keyword  string
	Limit    int
	Offset   int
}

// PublishHistoryFilter narrows publish history listings. Keyword matches the title;
// From and To bound publish_time inclusively.
type PublishHistoryFilter struct {
	WorkflowID   *int64
	WorkflowType string
	Platform     string
	Status       string
	Keyword      string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// SystemLogFilter narrows system log listings.
type SystemLogFilter struct {
	WorkflowID *int64
	Level      LogLevel
	Module     string
	Keyword    string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
