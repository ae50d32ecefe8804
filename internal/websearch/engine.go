package websearch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"

	"github.com/websters/query-api/internal/answer"
)

// SearchProvider executes a web search from keywords. Satisfied by
// *SerperClient; defined here so tests can substitute a fake.
type SearchProvider interface {
	Search(ctx context.Context, keywords, preferredSources []string, maxResults int) ([]SearchResult, error)
}

// ContentFetcher retrieves page content for search results in rank
// order. Satisfied by *Fetcher.
type ContentFetcher interface {
	Fetch(ctx context.Context, results []SearchResult) []PageContent
}

// Engine runs the enrichment stages: keyword synthesis, search
// execution, content fetch, and answer synthesis. The search-necessity
// decision (Decide) is a separate entry point used only by the
// combined-query flow.
type Engine struct {
	g         *genkit.Genkit
	modelName string
	provider  SearchProvider
	fetcher   ContentFetcher
	logger    *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(g *genkit.Genkit, modelName string, provider SearchProvider, fetcher ContentFetcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		g:         g,
		modelName: modelName,
		provider:  provider,
		fetcher:   fetcher,
		logger:    logger,
	}
}

// EnrichmentRequest describes one enrichment run. Keywords, when
// supplied, are used verbatim and skip synthesis. Strategy, when set,
// switches synthesis to supplement-the-database framing (the
// combined-query flow).
type EnrichmentRequest struct {
	Query            string
	LocalContext     string
	PreferredSources []string
	Keywords         []string
	MaxResults       int
	Concise          bool

	Strategy     *Strategy
	MaxSentences int
}

// EnrichmentResult is the enrichment output: the keywords actually
// used, the organic results, the synthesized (and cleaned) text, and
// how many sources contributed content (snippet-only fallbacks count
// as fetched).
type EnrichmentResult struct {
	Keywords       []string       `json:"synthesized_keywords"`
	Results        []SearchResult `json:"web_search_results"`
	EnrichedText   string         `json:"enriched_response"`
	SourcesFetched int            `json:"sources_fetched"`
}

// Performed reports whether a search actually produced an enriched
// answer, as opposed to degrading to the no-results message.
func (r EnrichmentResult) Performed() bool {
	return r.SourcesFetched > 0 && r.EnrichedText != "" && r.EnrichedText != NoResultsMessage
}

// Enrich runs the enrichment stages. Provider errors and credential
// absence degrade to the no-results message; the only errors returned
// are context cancellations surfaced through generation.
func (e *Engine) Enrich(ctx context.Context, req EnrichmentRequest) (EnrichmentResult, error) {
	keywords := req.Keywords
	if len(keywords) == 0 && req.Strategy != nil {
		keywords = req.Strategy.SearchTerms
	}
	if len(keywords) == 0 {
		keywords = e.synthesizeKeywords(ctx, req.Query, req.LocalContext)
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	results, err := e.provider.Search(ctx, keywords, req.PreferredSources, maxResults)
	if err != nil {
		e.logger.Warn("web search failed, continuing without results", "error", err)
		results = nil
	}
	if len(results) == 0 {
		return EnrichmentResult{
			Keywords:     keywords,
			Results:      []SearchResult{},
			EnrichedText: NoResultsMessage,
		}, nil
	}

	contents := e.fetcher.Fetch(ctx, results)
	enriched := answer.CleanText(e.synthesize(ctx, req, contents))

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	e.logger.Debug("web enrichment complete",
		"keywords", keywords,
		"results", len(results),
		"sources_fetched", len(contents))

	return EnrichmentResult{
		Keywords:       keywords,
		Results:        results,
		EnrichedText:   enriched,
		SourcesFetched: len(contents),
	}, nil
}

// Citations converts search results into persistable citations: the
// snippet plus source attribution as text, URL metadata, and a score
// derived from rank (position 1 scores highest).
func Citations(results []SearchResult) []answer.Citation {
	citations := make([]answer.Citation, 0, len(results))
	for _, result := range results {
		var text string
		if result.Title != "" {
			text = fmt.Sprintf("%s\n\nSource: %s\nURL: %s", result.Snippet, result.Title, result.Link)
		} else {
			text = fmt.Sprintf("%s\nURL: %s", result.Snippet, result.Link)
		}
		position := result.Position
		if position == 0 {
			position = 1
		}
		citations = append(citations, answer.Citation{
			Text: text,
			Metadata: map[string]any{
				"source_type":   answer.OriginWebSearch,
				"source_origin": answer.OriginWebSearch,
				"url":           result.Link,
				"title":         result.Title,
				"position":      result.Position,
				"snippet":       result.Snippet,
			},
			Score: 1.0 - float64(position)/10,
		})
	}
	return citations
}
