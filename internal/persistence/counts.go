package persistence

import "github.com/jonesrussell/north-cloud/orchestrator/internal/domain"

// Counts are the article, success and fail numbers stored for a publish.
type Counts struct {
	Articles int
	Success  int
	Fail     int
}

// EffectiveCounts derives stored counts from a recorded publish.
//
// The article count is ArticleCount, else SuccessCount, else 0. A "published" record
// succeeds SuccessCount (else all articles) and fails the remainder. A "failed" record
// succeeds nothing and fails FailCount (else all articles). Any other status fails all
// articles.
func EffectiveCounts(p *domain.RecordedPublish) Counts {
	articles := 0
	switch {
	case p.ArticleCount != nil:
		articles = *p.ArticleCount
	case p.SuccessCount != nil:
		articles = *p.SuccessCount
	}

	switch p.Status {
	case domain.PublishStatusPublished:
		success := articles
		if p.SuccessCount != nil {
			success = *p.SuccessCount
		}
		return Counts{Articles: articles, Success: success, Fail: max(articles-success, 0)}
	case domain.PublishStatusFailed:
		fail := articles
		if p.FailCount != nil {
			fail = *p.FailCount
		}
		return Counts{Articles: articles, Fail: fail}
	default:
		return Counts{Articles: articles, Fail: max(articles, 0)}
	}
}
