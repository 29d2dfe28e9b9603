package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/orchestrator/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/orchestrator/internal/domain"
)

// web-digest config keys and defaults.
const (
	DefaultItemSelector = "article a, h2 a"
	DefaultChannel      = "orchestrator:digest"
	DefaultMaxItems     = 20

	maxBodyBytes = 5 << 20
	// UserAgent identifies page fetches.
	UserAgent   = "north-cloud-orchestrator/1.0"
	stateItems  = "items"
	stateSource = "source"
)

var (
	// ErrMissingURL is returned when web-digest has no config.url.
	ErrMissingURL = errors.New("config.url is required")

	errRetryableStatus = errors.New("retryable status")
)

// DigestItem is one extracted link.
type DigestItem struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type digestMessage struct {
	WorkflowID int64        `json:"workflow_id"`
	EventID    string       `json:"event_id"`
	Title      string       `json:"title"`
	Source     string       `json:"source"`
	Items      []DigestItem `json:"items"`
	Generated  string       `json:"generated_at"`
}

type webDigest struct {
	deps Dependencies
}

func (d *webDigest) fetch(ctx context.Context, rc *RunContext) error {
	cfg, err := decodeWebDigestConfig(rc.Event.Payload)
	if err != nil {
		return err
	}
	if cfg.URL == "" {
		return ErrMissingURL
	}
	pageURL, err := url.Parse(cfg.URL)
	if err != nil || pageURL.Host == "" {
		return &domain.ValidationError{Field: "config.url", Message: fmt.Sprintf("%q is not an absolute URL", cfg.URL)}
	}
	rawURL, selector, maxItems := cfg.URL, cfg.ItemSelector, cfg.MaxItems

	var doc *goquery.Document
	attempts := 0
	retryCfg := d.deps.Retry
	retryCfg.IsRetryable = func(err error) bool {
		return errors.Is(err, errRetryableStatus) || retry.DefaultIsRetryable(err)
	}
	err = retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		if d.deps.FetchLimiter != nil {
			if waitErr := d.deps.FetchLimiter.Wait(ctx); waitErr != nil {
				return retry.Permanent(fmt.Errorf("fetch rate limit: %w", waitErr))
			}
		}
		attempts++
		var fetchErr error
		doc, fetchErr = d.fetchDocument(ctx, pageURL.String())
		return fetchErr
	})
	if err != nil {
		rc.Recorder.Error("fetch", "failed to fetch page", map[string]any{"url": rawURL, "attempts": attempts})
		return err
	}

	items := extractItems(doc, selector, pageURL, maxItems)
	source := pageURL.Hostname()
	for _, item := range items {
		rc.Recorder.AddContent(domain.RecordedContent{
			Title:    item.Title,
			URL:      item.URL,
			Source:   source,
			Platform: "web",
			Tags:     []string{string(domain.TypeWebDigest)},
			Metadata: map[string]any{"page_url": pageURL.String(), "selector": selector},
		})
	}

	rc.State[stateItems] = items
	rc.State[stateSource] = source

	if len(items) == 0 {
		rc.Recorder.Warn("fetch", "no items matched selector", map[string]any{"selector": selector})
		return nil
	}
	rc.Recorder.Info("fetch", fmt.Sprintf("extracted %d items", len(items)), map[string]any{"attempts": attempts})
	return nil
}

func (d *webDigest) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := d.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %d", errRetryableStatus, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, retry.Permanent(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to parse HTML: %w", err))
	}
	return doc, nil
}

// extractItems returns up to maxItems links matched by selector, deduplicated by URL.
func extractItems(doc *goquery.Document, selector string, base *url.URL, maxItems int) []DigestItem {
	items := []DigestItem{}
	seen := map[string]bool{}

	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if maxItems > 0 && len(items) >= maxItems {
			return false
		}

		href, exists := s.Attr("href")
		title := strings.Join(strings.Fields(s.Text()), " ")
		if !exists || href == "" || title == "" {
			return true
		}

		link, err := base.Parse(href)
		if err != nil || seen[link.String()] {
			return true
		}
		seen[link.String()] = true
		items = append(items, DigestItem{Title: title, URL: link.String()})
		return true
	})

	return items
}

func (d *webDigest) publish(ctx context.Context, rc *RunContext) error {
	items, _ := rc.State[stateItems].([]DigestItem)
	source, _ := rc.State[stateSource].(string)
	cfg, err := decodeWebDigestConfig(rc.Event.Payload)
	if err != nil {
		return err
	}
	channel, title := cfg.Channel, cfg.Title
	if title == "" {
		title = "Digest of " + source
	}

	if len(items) == 0 {
		rc.Recorder.Info("publish", "nothing to publish", nil)
		return nil
	}
	if d.deps.Redis == nil {
		rc.Recorder.Warn("publish", "redis is not configured, digest not published", map[string]any{"channel": channel})
		return nil
	}

	payload, err := json.Marshal(digestMessage{
		WorkflowID: rc.WorkflowID,
		EventID:    rc.Event.ID,
		Title:      title,
		Source:     source,
		Items:      items,
		Generated:  rc.Event.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal digest: %w", err)
	}

	var receivers int64
	err = d.guard(func() error {
		var pubErr error
		receivers, pubErr = d.deps.Redis.Publish(ctx, channel, payload).Result()
		return pubErr
	})
	if err != nil {
		rc.Recorder.AddPublish(domain.RecordedPublish{
			Title:        title,
			Platform:     "redis",
			Status:       domain.PublishStatusFailed,
			ArticleCount: domain.IntPtr(len(items)),
			ErrorMessage: err.Error(),
			Metadata:     map[string]any{"channel": channel},
		})
		return fmt.Errorf("publish digest: %w", err)
	}

	rc.Recorder.AddPublish(domain.RecordedPublish{
		Title:        title,
		Platform:     "redis",
		Status:       domain.PublishStatusPublished,
		ArticleCount: domain.IntPtr(len(items)),
		SuccessCount: domain.IntPtr(len(items)),
		Metadata:     map[string]any{"channel": channel, "receivers": receivers},
	})
	rc.Logger.Debug("Digest published", logger.String("channel", channel), logger.Int64("receivers", receivers))
	return nil
}

// guard runs fn through the shared publish breaker when one is configured.
func (d *webDigest) guard(fn func() error) error {
	if d.deps.PublishBreaker == nil {
		return fn()
	}
	return d.deps.PublishBreaker.Execute(fn)
}
