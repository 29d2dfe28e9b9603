package persistence

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

// Log snapshot limits embedded in publish history metadata.
const (
	TextLogLimit = 30
	RawLogLimit  = 200
)

const logTimeLayout = "2006-01-02 15:04:05"

// formatLogLines renders the last TextLogLimit entries as
// "[time][LEVEL] module :: message {details}".
func formatLogLines(logs []domain.RecordedLog, loc *time.Location) []string {
	tail := lastN(logs, TextLogLimit)
	lines := make([]string, 0, len(tail))
	for _, l := range tail {
		var b strings.Builder
		b.WriteString("[")
		b.WriteString(l.Timestamp.In(loc).Format(logTimeLayout))
		b.WriteString("][")
		b.WriteString(strings.ToUpper(string(l.Level)))
		b.WriteString("] ")
		b.WriteString(l.Module)
		b.WriteString(" :: ")
		b.WriteString(l.Message)
		if l.Details != nil {
			if details, err := json.Marshal(l.Details); err == nil {
				b.WriteString(" ")
				b.Write(details)
			}
		}
		lines = append(lines, b.String())
	}
	return lines
}

// rawLogEntries keeps the last RawLogLimit entries as structured maps.
func rawLogEntries(logs []domain.RecordedLog, loc *time.Location) []map[string]any {
	tail := lastN(logs, RawLogLimit)
	entries := make([]map[string]any, 0, len(tail))
	for _, l := range tail {
		entries = append(entries, map[string]any{
			"timestamp": l.Timestamp.In(loc).Format(logTimeLayout),
			"level":     string(l.Level),
			"module":    l.Module,
			"message":   l.Message,
			"details":   l.Details,
		})
	}
	return entries
}

func lastN(logs []domain.RecordedLog, n int) []domain.RecordedLog {
	if len(logs) > n {
		return logs[len(logs)-n:]
	}
	return logs
}
