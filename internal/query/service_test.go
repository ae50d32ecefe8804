package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/websters/query-api/internal/answer"
	"github.com/websters/query-api/internal/chat"
	"github.com/websters/query-api/internal/knowledge"
	"github.com/websters/query-api/internal/log"
	"github.com/websters/query-api/internal/preferences"
	"github.com/websters/query-api/internal/rag"
	"github.com/websters/query-api/internal/websearch"
)

type mockRetriever struct {
	passages    []knowledge.Passage
	retrieveErr error
	synthErr    error
	lastSynth   rag.Request
}

func (m *mockRetriever) Retrieve(_ context.Context, _ rag.Request) ([]knowledge.Passage, error) {
	if m.retrieveErr != nil {
		return nil, m.retrieveErr
	}
	return m.passages, nil
}

func (m *mockRetriever) Synthesize(_ context.Context, req rag.Request, passages []knowledge.Passage) (rag.Result, error) {
	m.lastSynth = req
	if m.synthErr != nil {
		return rag.Result{}, m.synthErr
	}
	return rag.Result{
		Answer:       "local answer",
		Passages:     passages,
		ContextBlock: rag.ContextBlock(passages),
	}, nil
}

type mockWeb struct {
	strategy    websearch.Strategy
	enrichment  websearch.EnrichmentResult
	enrichErr   error
	decideCalls int
	enrichCalls int
	lastEnrich  websearch.EnrichmentRequest
}

func (m *mockWeb) Decide(_ context.Context, _, _ string) websearch.Strategy {
	m.decideCalls++
	return m.strategy
}

func (m *mockWeb) Enrich(_ context.Context, req websearch.EnrichmentRequest) (websearch.EnrichmentResult, error) {
	m.enrichCalls++
	m.lastEnrich = req
	if m.enrichErr != nil {
		return websearch.EnrichmentResult{}, m.enrichErr
	}
	return m.enrichment, nil
}

type savedCall struct {
	userID      string
	query       string
	localAnswer string
	citations   []answer.Citation
	metadata    map[string]any
}

type attachCall struct {
	userID    string
	id        uuid.UUID
	webAnswer string
	citations []answer.Citation
}

// mockHistory is mutex-guarded: persistence runs on background
// goroutines.
type mockHistory struct {
	mu        sync.Mutex
	saveErr   error
	attachErr error
	savedID   uuid.UUID
	saves     []savedCall
	attaches  []attachCall
}

func (m *mockHistory) Save(_ context.Context, userID, query, localAnswer string, citations []answer.Citation, metadata map[string]any) (*chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, savedCall{userID, query, localAnswer, citations, metadata})
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	if m.savedID == uuid.Nil {
		m.savedID = uuid.New()
	}
	return &chat.Message{ID: m.savedID, UserID: userID}, nil
}

func (m *mockHistory) AttachWebAnswer(_ context.Context, userID string, id uuid.UUID, webAnswer string, citations []answer.Citation) (*chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attaches = append(m.attaches, attachCall{userID, id, webAnswer, citations})
	if m.attachErr != nil {
		return nil, m.attachErr
	}
	return &chat.Message{ID: id, UserID: userID, WebEnriched: true}, nil
}

func (m *mockHistory) savedCalls() []savedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]savedCall(nil), m.saves...)
}

func (m *mockHistory) attachCalls() []attachCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]attachCall(nil), m.attaches...)
}

func testPassages() []knowledge.Passage {
	return []knowledge.Passage{
		{
			Text:     "events.app_open: fired on app launch with session parameters",
			Metadata: map[string]any{"category": "apps", "platform": "ios", "datatype": "apps.ios"},
			Score:    0.9,
		},
		{
			Text:     "events.session_end: fired when the app is backgrounded",
			Metadata: map[string]any{"category": "apps", "platform": "ios", "datatype": "apps.ios"},
			Score:    0.8,
		},
	}
}

func testPrefs() *preferences.Preferences {
	return &preferences.Preferences{
		ByCategory: map[string]map[string]preferences.Source{
			"apps": {"ios": {
				Instruction:      "Focus on mobile app event payloads.",
				PreferredSources: []string{"developer.apple.com", "firebase.google.com"},
			}},
		},
		Default: preferences.Source{Instruction: "Answer from the indexed documentation."},
	}
}

func newTestService(retriever *mockRetriever, web *mockWeb, history *mockHistory, prefs *preferences.Preferences) *Service {
	var h History
	if history != nil {
		h = history
	}
	return New(retriever, prefs, web, h, log.NewNop())
}

func TestQuery_Basic(t *testing.T) {
	history := &mockHistory{}
	svc := newTestService(&mockRetriever{passages: testPassages()}, &mockWeb{}, history, testPrefs())

	result, err := svc.Query(context.Background(), Request{Query: "what app events do we track?", UserID: "alice"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if result.Answer != "local answer" {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(result.Citations) != 2 {
		t.Fatalf("got %d citations", len(result.Citations))
	}
	if result.Citations[0].Metadata["source_origin"] != answer.OriginLocalDatabase {
		t.Errorf("citation metadata = %+v", result.Citations[0].Metadata)
	}

	svc.Wait()
	if len(history.savedCalls()) != 0 {
		t.Error("basic query must not persist")
	}
}

func TestQuery_IndexUnavailable(t *testing.T) {
	svc := newTestService(&mockRetriever{retrieveErr: rag.ErrIndexUnavailable}, &mockWeb{}, nil, nil)

	if _, err := svc.Query(context.Background(), Request{Query: "anything"}); !errors.Is(err, rag.ErrIndexUnavailable) {
		t.Errorf("err = %v, want ErrIndexUnavailable", err)
	}
}

func TestQueryLocal(t *testing.T) {
	retriever := &mockRetriever{passages: testPassages()}
	history := &mockHistory{}
	svc := newTestService(retriever, &mockWeb{}, history, testPrefs())

	result, err := svc.QueryLocal(context.Background(), Request{
		Query:   "what app events do we track?",
		Filters: knowledge.Filters{Category: "apps"},
		UserID:  "alice",
	})
	if err != nil {
		t.Fatalf("QueryLocal failed: %v", err)
	}

	if !result.WebSearchEligible {
		t.Error("WebSearchEligible = false with matching preferences")
	}
	if len(result.PreferredSources) != 2 {
		t.Errorf("preferred sources = %v", result.PreferredSources)
	}
	if !strings.Contains(retriever.lastSynth.Instruction, "Focus on mobile app event payloads.") {
		t.Errorf("instruction = %q", retriever.lastSynth.Instruction)
	}
	if !strings.Contains(result.SuggestedSearchContext, "Categories: apps") ||
		!strings.Contains(result.SuggestedSearchContext, "Sample: events.app_open") {
		t.Errorf("suggested context = %q", result.SuggestedSearchContext)
	}

	svc.Wait()
	saves := history.savedCalls()
	if len(saves) != 1 {
		t.Fatalf("got %d saves, want 1", len(saves))
	}
	if saves[0].userID != "alice" || saves[0].localAnswer != "local answer" {
		t.Errorf("save = %+v", saves[0])
	}
	filters, ok := saves[0].metadata["filters"].(map[string]any)
	if !ok || filters["category"] != "apps" {
		t.Errorf("metadata = %+v", saves[0].metadata)
	}
}

func TestQueryLocal_NoPreferences(t *testing.T) {
	svc := newTestService(&mockRetriever{passages: testPassages()}, &mockWeb{}, nil, nil)

	result, err := svc.QueryLocal(context.Background(), Request{Query: "what app events do we track?"})
	if err != nil {
		t.Fatalf("QueryLocal failed: %v", err)
	}
	if result.WebSearchEligible {
		t.Error("eligible without preferences")
	}
	if len(result.PreferredSources) != 0 {
		t.Errorf("preferred sources = %v", result.PreferredSources)
	}
}

func TestQueryLocal_AnonymousSkipsPersistence(t *testing.T) {
	history := &mockHistory{}
	svc := newTestService(&mockRetriever{passages: testPassages()}, &mockWeb{}, history, testPrefs())

	if _, err := svc.QueryLocal(context.Background(), Request{Query: "anything"}); err != nil {
		t.Fatalf("QueryLocal failed: %v", err)
	}
	svc.Wait()
	if len(history.savedCalls()) != 0 {
		t.Error("anonymous query must not persist")
	}
}

func TestQueryCombined_WithWebSearch(t *testing.T) {
	web := &mockWeb{
		strategy: websearch.Strategy{
			NeedsWebSearch: true,
			Reasoning:      "conceptual terms present",
			SearchTerms:    []string{"app lifecycle events"},
			QueryType:      answer.QueryTypeHowTo,
		},
		enrichment: websearch.EnrichmentResult{
			Keywords:       []string{"app lifecycle events"},
			Results:        []websearch.SearchResult{{Title: "Lifecycle docs", Link: "https://example.com", Snippet: "s", Position: 1}},
			EnrichedText:   "web supplement",
			SourcesFetched: 1,
		},
	}
	history := &mockHistory{}
	svc := newTestService(&mockRetriever{passages: testPassages()}, web, history, testPrefs())

	result, err := svc.QueryCombined(context.Background(), Request{Query: "how do app lifecycle events work?", UserID: "alice"})
	if err != nil {
		t.Fatalf("QueryCombined failed: %v", err)
	}

	if !result.WebSearchPerformed {
		t.Error("WebSearchPerformed = false")
	}
	if !strings.Contains(result.Answer, "**CORE METHODS:**\nlocal answer") ||
		!strings.Contains(result.Answer, "**ADDITIONAL TECHNIQUES:**\nweb supplement") {
		t.Errorf("combined answer = %q", result.Answer)
	}
	// Synthetic web citation first, then the two local ones.
	if len(result.Citations) != 3 || result.Citations[0].Score != 1.0 {
		t.Errorf("citations = %+v", result.Citations)
	}
	if web.lastEnrich.Strategy == nil || web.lastEnrich.Strategy.QueryType != answer.QueryTypeHowTo {
		t.Errorf("enrich request = %+v", web.lastEnrich)
	}
	if len(web.lastEnrich.PreferredSources) != 2 {
		t.Errorf("enrich preferred sources = %v", web.lastEnrich.PreferredSources)
	}

	svc.Wait()
	if saves := history.savedCalls(); len(saves) != 1 {
		t.Fatalf("got %d saves", len(saves))
	}
	attaches := history.attachCalls()
	if len(attaches) != 1 || attaches[0].webAnswer != "web supplement" {
		t.Fatalf("attaches = %+v", attaches)
	}
}

func TestQueryCombined_DecisionSkips(t *testing.T) {
	web := &mockWeb{strategy: websearch.Strategy{
		NeedsWebSearch: false,
		Reasoning:      "purely internal schema question",
		QueryType:      answer.QueryTypeFactual,
	}}
	history := &mockHistory{}
	svc := newTestService(&mockRetriever{passages: testPassages()}, web, history, testPrefs())

	result, err := svc.QueryCombined(context.Background(), Request{Query: "what columns do we have?", UserID: "alice"})
	if err != nil {
		t.Fatalf("QueryCombined failed: %v", err)
	}

	if web.enrichCalls != 0 {
		t.Error("enrichment must not run when the decision skips")
	}
	if result.Answer != "local answer" {
		t.Errorf("answer = %q, want local answer verbatim", result.Answer)
	}
	if result.WebSearchPerformed {
		t.Error("WebSearchPerformed = true")
	}

	svc.Wait()
	if len(history.attachCalls()) != 0 {
		t.Error("no web answer to attach")
	}
}

func TestQueryCombined_ZeroResultsFallsBackToLocal(t *testing.T) {
	web := &mockWeb{
		strategy: websearch.Strategy{NeedsWebSearch: true, QueryType: answer.QueryTypeFactual},
		enrichment: websearch.EnrichmentResult{
			Keywords:     []string{"term"},
			Results:      []websearch.SearchResult{},
			EnrichedText: websearch.NoResultsMessage,
		},
	}
	svc := newTestService(&mockRetriever{passages: testPassages()}, web, nil, testPrefs())

	result, err := svc.QueryCombined(context.Background(), Request{Query: "anything"})
	if err != nil {
		t.Fatalf("QueryCombined failed: %v", err)
	}
	if result.Answer != "local answer" {
		t.Errorf("answer = %q, want local-only fallback", result.Answer)
	}
	if result.WebSearchPerformed || result.SourcesFetched != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestQueryCombined_EnrichErrorDegrades(t *testing.T) {
	web := &mockWeb{
		strategy:  websearch.Strategy{NeedsWebSearch: true, QueryType: answer.QueryTypeFactual},
		enrichErr: errors.New("engine failure"),
	}
	svc := newTestService(&mockRetriever{passages: testPassages()}, web, nil, testPrefs())

	result, err := svc.QueryCombined(context.Background(), Request{Query: "anything"})
	if err != nil {
		t.Fatalf("web failure must not fail the call: %v", err)
	}
	if result.Answer != "local answer" {
		t.Errorf("answer = %q", result.Answer)
	}
}

func TestEnrich(t *testing.T) {
	web := &mockWeb{enrichment: websearch.EnrichmentResult{
		Keywords:       []string{"ga4 events"},
		Results:        []websearch.SearchResult{{Title: "GA4 docs", Link: "https://example.com", Snippet: "snippet", Position: 1}},
		EnrichedText:   "enriched",
		SourcesFetched: 1,
	}}
	svc := newTestService(&mockRetriever{}, web, nil, nil)

	result, err := svc.Enrich(context.Background(), EnrichRequest{
		Query:    "ga4 events",
		Keywords: []string{"ga4"},
		Concise:  true,
	})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	if result.EnrichedText != "enriched" || result.SourcesFetched != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Citations) != 1 || !strings.Contains(result.Citations[0].Text, "Source: GA4 docs") {
		t.Errorf("citations = %+v", result.Citations)
	}
	if !web.lastEnrich.Concise || web.lastEnrich.Strategy != nil {
		t.Errorf("enrich request = %+v", web.lastEnrich)
	}
	if result.MessageUpdated {
		t.Error("MessageUpdated = true without a message id")
	}
}

func TestEnrich_EmptyQuery(t *testing.T) {
	svc := newTestService(&mockRetriever{}, &mockWeb{}, nil, nil)
	if _, err := svc.Enrich(context.Background(), EnrichRequest{}); !errors.Is(err, rag.ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestEnrich_AttachesToMessage(t *testing.T) {
	web := &mockWeb{enrichment: websearch.EnrichmentResult{
		Results:        []websearch.SearchResult{{Title: "Docs", Link: "https://example.com", Snippet: "s", Position: 1}},
		EnrichedText:   "enriched",
		SourcesFetched: 1,
	}}
	history := &mockHistory{}
	svc := newTestService(&mockRetriever{}, web, history, nil)

	id := uuid.New()
	result, err := svc.Enrich(context.Background(), EnrichRequest{
		Query:     "ga4 events",
		MessageID: id,
		UserID:    "alice",
	})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if !result.MessageUpdated {
		t.Error("MessageUpdated = false")
	}
	attaches := history.attachCalls()
	if len(attaches) != 1 || attaches[0].id != id || attaches[0].userID != "alice" {
		t.Errorf("attaches = %+v", attaches)
	}
}

func TestEnrich_OwnershipErrorsSurface(t *testing.T) {
	web := &mockWeb{enrichment: websearch.EnrichmentResult{
		Results:        []websearch.SearchResult{{Title: "Docs", Link: "https://example.com", Snippet: "s", Position: 1}},
		EnrichedText:   "enriched",
		SourcesFetched: 1,
	}}
	history := &mockHistory{attachErr: chat.ErrForbidden}
	svc := newTestService(&mockRetriever{}, web, history, nil)

	_, err := svc.Enrich(context.Background(), EnrichRequest{
		Query:     "ga4 events",
		MessageID: uuid.New(),
		UserID:    "mallory",
	})
	if !errors.Is(err, chat.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestEnrich_StorageFailureDoesNotFail(t *testing.T) {
	web := &mockWeb{enrichment: websearch.EnrichmentResult{
		Results:        []websearch.SearchResult{{Title: "Docs", Link: "https://example.com", Snippet: "s", Position: 1}},
		EnrichedText:   "enriched",
		SourcesFetched: 1,
	}}
	history := &mockHistory{attachErr: errors.New("db down")}
	svc := newTestService(&mockRetriever{}, web, history, nil)

	result, err := svc.Enrich(context.Background(), EnrichRequest{
		Query:     "ga4 events",
		MessageID: uuid.New(),
		UserID:    "alice",
	})
	if err != nil {
		t.Fatalf("storage failure must not fail enrichment: %v", err)
	}
	if result.MessageUpdated {
		t.Error("MessageUpdated = true after failed write")
	}
	if result.EnrichedText != "enriched" {
		t.Errorf("enriched text = %q", result.EnrichedText)
	}
}

func TestEnrich_NoResultsSkipsAttach(t *testing.T) {
	web := &mockWeb{enrichment: websearch.EnrichmentResult{
		Results:      []websearch.SearchResult{},
		EnrichedText: websearch.NoResultsMessage,
	}}
	history := &mockHistory{}
	svc := newTestService(&mockRetriever{}, web, history, nil)

	result, err := svc.Enrich(context.Background(), EnrichRequest{
		Query:     "obscure",
		MessageID: uuid.New(),
		UserID:    "alice",
	})
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if result.MessageUpdated || len(history.attachCalls()) != 0 {
		t.Error("no-results enrichment must not touch the stored message")
	}
}
