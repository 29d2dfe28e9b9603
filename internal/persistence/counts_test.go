package persistence_test

import (
	"testing"

	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/persistence"
)

func TestEffectiveCounts(t *testing.T) {
	tests := []struct {
		name   string
		record domain.RecordedPublish
		want   persistence.Counts
	}{
		{
			name:   "published with explicit success",
			record: domain.RecordedPublish{Status: "published", ArticleCount: domain.IntPtr(5), SuccessCount: domain.IntPtr(3)},
			want:   persistence.Counts{Articles: 5, Success: 3, Fail: 2},
		},
		{
			name:   "published defaults success to articles",
			record: domain.RecordedPublish{Status: "published", ArticleCount: domain.IntPtr(4)},
			want:   persistence.Counts{Articles: 4, Success: 4},
		},
		{
			name:   "published success above articles clamps fail",
			record: domain.RecordedPublish{Status: "published", ArticleCount: domain.IntPtr(2), SuccessCount: domain.IntPtr(3)},
			want:   persistence.Counts{Articles: 2, Success: 3},
		},
		{
			name:   "article count falls back to success count",
			record: domain.RecordedPublish{Status: "published", SuccessCount: domain.IntPtr(6)},
			want:   persistence.Counts{Articles: 6, Success: 6},
		},
		{
			name:   "failed with explicit fail",
			record: domain.RecordedPublish{Status: "failed", ArticleCount: domain.IntPtr(5), FailCount: domain.IntPtr(1)},
			want:   persistence.Counts{Articles: 5, Fail: 1},
		},
		{
			name:   "failed defaults fail to articles",
			record: domain.RecordedPublish{Status: "failed", ArticleCount: domain.IntPtr(5), SuccessCount: domain.IntPtr(2)},
			want:   persistence.Counts{Articles: 5, Fail: 5},
		},
		{
			name:   "other status fails everything",
			record: domain.RecordedPublish{Status: "pending", ArticleCount: domain.IntPtr(3), SuccessCount: domain.IntPtr(3)},
			want:   persistence.Counts{Articles: 3, Fail: 3},
		},
		{
			name:   "no counts",
			record: domain.RecordedPublish{Status: "published"},
			want:   persistence.Counts{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := persistence.EffectiveCounts(&tt.record)
			if got != tt.want {
				t.Errorf("EffectiveCounts() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
