// Package query orchestrates the exposed operations: basic and
// preference-aware local queries, the single-call combined flow, and
// the standalone enrichment flow, with fire-and-forget chat
// persistence.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/websters/query-api/internal/answer"
	"github.com/websters/query-api/internal/chat"
	"github.com/websters/query-api/internal/knowledge"
	"github.com/websters/query-api/internal/preferences"
	"github.com/websters/query-api/internal/rag"
	"github.com/websters/query-api/internal/websearch"
)

const (
	// sampleWindow caps the passage excerpt embedded in the suggested
	// search context of the two-step flow.
	sampleWindow = 300

	// persistTimeout bounds the background chat writes.
	persistTimeout = 10 * time.Second
)

// Retriever is the local-pipeline capability the service needs;
// satisfied by *rag.Pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, req rag.Request) ([]knowledge.Passage, error)
	Synthesize(ctx context.Context, req rag.Request, passages []knowledge.Passage) (rag.Result, error)
}

// WebEngine is the enrichment capability; satisfied by
// *websearch.Engine.
type WebEngine interface {
	Decide(ctx context.Context, query, localContext string) websearch.Strategy
	Enrich(ctx context.Context, req websearch.EnrichmentRequest) (websearch.EnrichmentResult, error)
}

// History is the chat persistence capability; satisfied by
// *chat.Store.
type History interface {
	Save(ctx context.Context, userID, query, localAnswer string, citations []answer.Citation, metadata map[string]any) (*chat.Message, error)
	AttachWebAnswer(ctx context.Context, userID string, id uuid.UUID, webAnswer string, citations []answer.Citation) (*chat.Message, error)
}

// Request is a query against the local index. UserID is the already
// verified caller identity; empty means anonymous, which skips
// persistence.
type Request struct {
	Query   string            `json:"query"`
	TopK    int               `json:"top_k,omitempty"`
	Filters knowledge.Filters `json:"filters,omitzero"`
	UserID  string            `json:"-"`
}

// BasicResult is the local-only answer with its citations.
type BasicResult struct {
	Answer    string            `json:"response"`
	Citations []answer.Citation `json:"citations"`
}

// LocalResult is phase 1 of the two-step flow: the local answer plus
// everything the caller needs to decide on, and parameterize, a
// follow-up enrichment call.
type LocalResult struct {
	Answer                 string            `json:"response"`
	Citations              []answer.Citation `json:"citations"`
	WebSearchEligible      bool              `json:"web_search_eligible"`
	SuggestedSearchContext string            `json:"suggested_search_context"`
	PreferredSources       []string          `json:"preferred_sources"`
	SearchInstructions     []string          `json:"search_instructions"`
}

// CombinedResult is the single-call local+web answer.
type CombinedResult struct {
	Answer             string            `json:"response"`
	Citations          []answer.Citation `json:"citations"`
	LocalAnswer        string            `json:"local_response"`
	WebAnswer          string            `json:"web_response,omitempty"`
	WebSearchPerformed bool              `json:"web_search_performed"`
	QueryType          string            `json:"query_type"`
	Reasoning          string            `json:"reasoning"`
	Keywords           []string          `json:"search_keywords,omitempty"`
	SourcesFetched     int               `json:"sources_fetched"`
}

// EnrichRequest is phase 2 of the two-step flow. Keywords,
// LocalContext, and PreferredSources are optional caller overrides;
// MessageID (with UserID) targets the one-time chat update.
type EnrichRequest struct {
	Query            string    `json:"query"`
	LocalContext     string    `json:"local_context,omitempty"`
	Keywords         []string  `json:"keywords,omitempty"`
	PreferredSources []string  `json:"preferred_sources,omitempty"`
	MaxResults       int       `json:"max_results,omitempty"`
	Concise          bool      `json:"concise,omitempty"`
	MessageID        uuid.UUID `json:"message_id,omitzero"`
	UserID           string    `json:"-"`
}

// EnrichResult is the enrichment output plus the stored-citation form
// of the results and whether the targeted chat message was updated.
type EnrichResult struct {
	Keywords       []string                 `json:"synthesized_keywords"`
	Results        []websearch.SearchResult `json:"web_search_results"`
	EnrichedText   string                   `json:"enriched_response"`
	SourcesFetched int                      `json:"sources_fetched"`
	Citations      []answer.Citation        `json:"web_citations"`
	MessageUpdated bool                     `json:"message_updated"`
}

// Service wires the pipeline stages together. All dependencies are
// read-only after construction; Service is safe for concurrent use.
type Service struct {
	local   Retriever
	prefs   *preferences.Preferences
	web     WebEngine
	history History
	logger  *slog.Logger

	// MaxWebResults bounds enrichment result sets when a request does
	// not say otherwise. Zero means the engine default. Set before the
	// Service handles traffic.
	MaxWebResults int

	persisting sync.WaitGroup
}

// New creates a Service. prefs may be nil (no preferences configured);
// history may be nil (persistence disabled).
func New(local Retriever, prefs *preferences.Preferences, web WebEngine, history History, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		local:   local,
		prefs:   prefs,
		web:     web,
		history: history,
		logger:  logger,
	}
}

// Wait blocks until in-flight background persistence completes. Called
// on shutdown.
func (s *Service) Wait() {
	s.persisting.Wait()
}

// Query answers from the local index only: no preference resolution,
// no web search, no persistence.
func (s *Service) Query(ctx context.Context, req Request) (*BasicResult, error) {
	res, err := s.runLocal(ctx, req, "")
	if err != nil {
		return nil, err
	}
	return &BasicResult{
		Answer:    res.Answer,
		Citations: answer.LocalCitations(res.Passages),
	}, nil
}

// QueryLocal is phase 1 of the two-step flow: preference-aware local
// answer, web-search eligibility, and the suggested context for a
// follow-up enrichment call. The exchange is persisted in the
// background for authenticated callers.
func (s *Service) QueryLocal(ctx context.Context, req Request) (*LocalResult, error) {
	passages, err := s.local.Retrieve(ctx, rag.Request{Query: req.Query, TopK: req.TopK, Filters: req.Filters})
	if err != nil {
		return nil, err
	}

	instruction, _ := s.prefs.Instruction(passages)
	metaCtx := s.prefs.Context(passages)

	res, err := s.local.Synthesize(ctx, rag.Request{Query: req.Query, Instruction: instruction}, passages)
	if err != nil {
		return nil, err
	}

	citations := answer.LocalCitations(passages)
	s.persistSave(req, res.Answer, citations)

	return &LocalResult{
		Answer:                 res.Answer,
		Citations:              citations,
		WebSearchEligible:      metaCtx.WebSearchEligible(),
		SuggestedSearchContext: suggestedContext(metaCtx, passages),
		PreferredSources:       metaCtx.PreferredSources,
		SearchInstructions:     metaCtx.SearchInstructions,
	}, nil
}

// QueryCombined is the single-call flow: local answer, search-necessity
// decision, optional enrichment, combined response. Web failures never
// fail the call; the caller always gets at least the local answer.
func (s *Service) QueryCombined(ctx context.Context, req Request) (*CombinedResult, error) {
	passages, err := s.local.Retrieve(ctx, rag.Request{Query: req.Query, TopK: req.TopK, Filters: req.Filters})
	if err != nil {
		return nil, err
	}

	instruction, format := s.prefs.Instruction(passages)
	metaCtx := s.prefs.Context(passages)

	local, err := s.local.Synthesize(ctx, rag.Request{Query: req.Query, Instruction: instruction}, passages)
	if err != nil {
		return nil, err
	}

	strategy := s.web.Decide(ctx, req.Query, local.ContextBlock)

	var enriched websearch.EnrichmentResult
	if strategy.NeedsWebSearch {
		enriched, err = s.web.Enrich(ctx, websearch.EnrichmentRequest{
			Query:            req.Query,
			LocalContext:     local.ContextBlock,
			PreferredSources: metaCtx.PreferredSources,
			MaxResults:       s.MaxWebResults,
			Strategy:         &strategy,
			MaxSentences:     format.MaxContextSentences,
		})
		if err != nil {
			s.logger.Warn("web enrichment failed, returning local answer", "error", err)
			enriched = websearch.EnrichmentResult{}
		}
	} else {
		s.logger.Debug("web search skipped", "reasoning", strategy.Reasoning)
	}

	combined := answer.Combine(answer.Input{
		LocalAnswer:   local.Answer,
		LocalPassages: passages,
		WebAnswer:     enriched.EnrichedText,
		WebPerformed:  enriched.Performed(),
		WebSources:    webSources(enriched.Results),
		QueryType:     strategy.QueryType,
	})

	s.persistCombined(req, local.Answer, answer.LocalCitations(passages), enriched)

	return &CombinedResult{
		Answer:             combined.Answer,
		Citations:          combined.Citations,
		LocalAnswer:        local.Answer,
		WebAnswer:          enriched.EnrichedText,
		WebSearchPerformed: enriched.Performed(),
		QueryType:          strategy.QueryType,
		Reasoning:          strategy.Reasoning,
		Keywords:           enriched.Keywords,
		SourcesFetched:     enriched.SourcesFetched,
	}, nil
}

// Enrich is phase 2 of the two-step flow. When MessageID is set the
// web answer is also attached to that chat message; ownership and
// one-time violations are surfaced, other persistence failures are
// logged and reported through MessageUpdated only.
func (s *Service) Enrich(ctx context.Context, req EnrichRequest) (*EnrichResult, error) {
	if req.Query == "" {
		return nil, rag.ErrEmptyQuery
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = s.MaxWebResults
	}
	enriched, err := s.web.Enrich(ctx, websearch.EnrichmentRequest{
		Query:            req.Query,
		LocalContext:     req.LocalContext,
		PreferredSources: req.PreferredSources,
		Keywords:         req.Keywords,
		MaxResults:       maxResults,
		Concise:          req.Concise,
	})
	if err != nil {
		return nil, fmt.Errorf("running enrichment: %w", err)
	}

	result := &EnrichResult{
		Keywords:       enriched.Keywords,
		Results:        enriched.Results,
		EnrichedText:   enriched.EnrichedText,
		SourcesFetched: enriched.SourcesFetched,
		Citations:      websearch.Citations(enriched.Results),
	}

	if req.MessageID != uuid.Nil && enriched.Performed() {
		if s.history == nil || req.UserID == "" {
			return nil, chat.ErrForbidden
		}
		_, err := s.history.AttachWebAnswer(ctx, req.UserID, req.MessageID, enriched.EnrichedText, result.Citations)
		switch {
		case err == nil:
			result.MessageUpdated = true
		case errors.Is(err, chat.ErrNotFound), errors.Is(err, chat.ErrForbidden), errors.Is(err, chat.ErrAlreadyEnriched):
			return nil, err
		default:
			s.logger.Warn("attaching web answer failed", "message_id", req.MessageID, "error", err)
		}
	}
	return result, nil
}

// persistSave records a local exchange in the background. Failures are
// logged, never surfaced: the response is already computed.
func (s *Service) persistSave(req Request, localAnswer string, citations []answer.Citation) {
	s.persist(req, func(ctx context.Context) error {
		_, err := s.history.Save(ctx, req.UserID, req.Query, localAnswer, citations, filtersMetadata(req.Filters))
		return err
	})
}

// persistCombined records the exchange and, when enrichment produced a
// web answer, attaches it in the same background task.
func (s *Service) persistCombined(req Request, localAnswer string, citations []answer.Citation, enriched websearch.EnrichmentResult) {
	s.persist(req, func(ctx context.Context) error {
		msg, err := s.history.Save(ctx, req.UserID, req.Query, localAnswer, citations, filtersMetadata(req.Filters))
		if err != nil {
			return err
		}
		if !enriched.Performed() {
			return nil
		}
		_, err = s.history.AttachWebAnswer(ctx, req.UserID, msg.ID, enriched.EnrichedText, websearch.Citations(enriched.Results))
		return err
	})
}

func (s *Service) persist(req Request, fn func(ctx context.Context) error) {
	if s.history == nil || req.UserID == "" {
		return
	}
	s.persisting.Add(1)
	go func() {
		defer s.persisting.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn("persisting chat message failed", "user_id", req.UserID, "error", err)
		}
	}()
}

func (s *Service) runLocal(ctx context.Context, req Request, instruction string) (rag.Result, error) {
	passages, err := s.local.Retrieve(ctx, rag.Request{Query: req.Query, TopK: req.TopK, Filters: req.Filters})
	if err != nil {
		return rag.Result{}, err
	}
	return s.local.Synthesize(ctx, rag.Request{Query: req.Query, Instruction: instruction}, passages)
}

// suggestedContext is the short hint handed to the caller for a
// follow-up enrichment call: the metadata summary plus an excerpt of
// the top passage.
func suggestedContext(metaCtx preferences.MetadataContext, passages []knowledge.Passage) string {
	if len(passages) == 0 {
		return metaCtx.Summary
	}
	sample := passages[0].Text
	if len(sample) > sampleWindow {
		sample = sample[:sampleWindow] + "..."
	}
	if metaCtx.Summary == "" {
		return "Sample: " + sample
	}
	return metaCtx.Summary + " | Sample: " + sample
}

func webSources(results []websearch.SearchResult) []answer.WebSource {
	sources := make([]answer.WebSource, 0, len(results))
	for _, result := range results {
		sources = append(sources, answer.WebSource{URL: result.Link, Title: result.Title})
	}
	return sources
}

func filtersMetadata(filters knowledge.Filters) map[string]any {
	if filters.IsZero() {
		return nil
	}
	return map[string]any{"filters": filters.Map()}
}
