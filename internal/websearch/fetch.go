package websearch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// maxFetchURLs bounds how many result URLs are fetched.
	maxFetchURLs = 3

	// fetchRetries is the per-URL retry count after the first attempt.
	fetchRetries = 1

	// contentWindow is the character cap applied to fetched page text.
	contentWindow = 2000

	// maxFetchBodyBytes bounds how much of a page body is read.
	maxFetchBodyBytes = 2 << 20

	// defaultFetchTimeout bounds a single page fetch.
	defaultFetchTimeout = 8 * time.Second
)

// PageContent is the fetched (or snippet-fallback) content for one
// search result. Content is empty when every fetch attempt failed; the
// snippet is always preserved.
type PageContent struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Content string `json:"content"`
}

// Fetcher retrieves page content for search results. Fetches run in
// parallel across URLs with a shared rate limiter; the returned slice
// preserves search-result ranking order, not fetch-completion order.
type Fetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher. A non-positive timeout selects the
// default single-digit-seconds fetch timeout.
func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		// Modest ceiling so bursts of enrichment calls stay polite to
		// the fetched sites.
		limiter: rate.NewLimiter(rate.Limit(10), maxFetchURLs),
		logger:  logger,
	}
}

// Fetch retrieves content for up to the top maxFetchURLs results. Every
// listed result appears in the output: per-URL failures degrade to
// snippet-only entries rather than dropping the result.
func (f *Fetcher) Fetch(ctx context.Context, results []SearchResult) []PageContent {
	if len(results) == 0 {
		return nil
	}
	top := results
	if len(top) > maxFetchURLs {
		top = top[:maxFetchURLs]
	}

	contents := make([]PageContent, len(top))
	var g errgroup.Group
	g.SetLimit(maxFetchURLs)
	for i, result := range top {
		g.Go(func() error {
			contents[i] = f.fetchOne(ctx, result)
			return nil
		})
	}
	// Workers only report nil; rank order is preserved by index.
	_ = g.Wait()
	return contents
}

func (f *Fetcher) fetchOne(ctx context.Context, result SearchResult) PageContent {
	content := PageContent{
		URL:     result.Link,
		Title:   result.Title,
		Snippet: result.Snippet,
	}
	if result.Link == "" {
		return content
	}

	for attempt := 0; attempt <= fetchRetries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return content
		}
		text, err := f.fetchText(ctx, result.Link)
		if err == nil {
			content.Content = truncate(text, contentWindow)
			return content
		}
		f.logger.Debug("page fetch failed",
			"url", result.Link, "attempt", attempt+1, "error", err)
	}
	// Snippet-only fallback.
	return content
}

// fetchText downloads a page and extracts readable text, preferring
// readability article extraction with a plain DOM-text fallback.
func (f *Fetcher) fetchText(ctx context.Context, pageURL string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating fetch request: %w", err)
	}
	req.Header.Set("User-Agent", "websters-query-api/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodyBytes))
	if err != nil {
		return "", fmt.Errorf("reading page body: %w", err)
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing page URL: %w", err)
	}

	if article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL); err == nil {
		if text := normalizeWhitespace(article.TextContent); text != "" {
			return text, nil
		}
	}

	// Readability rejects non-article pages; fall back to stripped DOM text.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("parsing page HTML: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	text := normalizeWhitespace(doc.Find("body").Text())
	if text == "" {
		return "", fmt.Errorf("no readable text in page")
	}
	return text, nil
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
