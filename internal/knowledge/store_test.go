package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/websters/query-api/internal/sqlc"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockEmbedder implements ai.Embedder for testing
type mockEmbedder struct {
	delay         time.Duration // Simulate processing delay
	embedErr      error         // Error to return
	returnEmpty   bool          // Return empty embeddings
	embeddings    []float32     // Custom embeddings to return
	callCount     int           // Track number of calls
	lastInputText string        // Track last input for verification
}

func (m *mockEmbedder) Name() string {
	return "mock-embedder"
}

func (m *mockEmbedder) Register(r api.Registry) {
	// No-op for testing
}

func (m *mockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++

	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		m.lastInputText = req.Input[0].Content[0].Text
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.embedErr != nil {
		return nil, m.embedErr
	}

	if m.returnEmpty {
		return &ai.EmbedResponse{
			Embeddings: []*ai.Embedding{{Embedding: []float32{}}},
		}, nil
	}

	embeddings := m.embeddings
	if embeddings == nil {
		embeddings = []float32{0.1, 0.2, 0.3}
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: embeddings}},
	}, nil
}

// mockQuerier implements Querier for testing
type mockQuerier struct {
	// Error configuration
	upsertErr     error
	searchErr     error
	searchAllErr  error
	countErr      error
	countAllErr   error
	deleteErr     error
	listValuesErr error

	// Return values
	searchResults    []sqlc.SearchDocumentsRow
	searchAllResults []sqlc.SearchDocumentsAllRow
	countResult      int64
	countAllResult   int64
	listValuesResult map[string][]string

	// Call tracking
	upsertCalls         int
	searchCalls         int
	searchAllCalls      int
	countCalls          int
	countAllCalls       int
	deleteCalls         int
	lastDeletedID       string
	lastUpsertParams    sqlc.UpsertDocumentParams
	lastSearchParams    sqlc.SearchDocumentsParams
	lastSearchAllParams sqlc.SearchDocumentsAllParams
	lastCountFilter     []byte
	listedKeys          []string
}

func (m *mockQuerier) UpsertDocument(ctx context.Context, arg sqlc.UpsertDocumentParams) error {
	m.upsertCalls++
	m.lastUpsertParams = arg
	return m.upsertErr
}

func (m *mockQuerier) SearchDocuments(ctx context.Context, arg sqlc.SearchDocumentsParams) ([]sqlc.SearchDocumentsRow, error) {
	m.searchCalls++
	m.lastSearchParams = arg
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.searchResults, nil
}

func (m *mockQuerier) SearchDocumentsAll(ctx context.Context, arg sqlc.SearchDocumentsAllParams) ([]sqlc.SearchDocumentsAllRow, error) {
	m.searchAllCalls++
	m.lastSearchAllParams = arg
	if m.searchAllErr != nil {
		return nil, m.searchAllErr
	}
	return m.searchAllResults, nil
}

func (m *mockQuerier) CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error) {
	m.countCalls++
	m.lastCountFilter = filterMetadata
	return m.countResult, m.countErr
}

func (m *mockQuerier) CountDocumentsAll(ctx context.Context) (int64, error) {
	m.countAllCalls++
	return m.countAllResult, m.countAllErr
}

func (m *mockQuerier) DeleteDocument(ctx context.Context, id string) error {
	m.deleteCalls++
	m.lastDeletedID = id
	return m.deleteErr
}

func (m *mockQuerier) ListDistinctMetadataValues(ctx context.Context, key string) ([]string, error) {
	m.listedKeys = append(m.listedKeys, key)
	if m.listValuesErr != nil {
		return nil, m.listValuesErr
	}
	return m.listValuesResult[key], nil
}

// ============================================================================
// Constructor Tests
// ============================================================================

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		logger *slog.Logger
	}{
		{name: "with custom logger", logger: slog.Default()},
		{name: "with nil logger (uses default)", logger: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			querier := &mockQuerier{}
			embed := &mockEmbedder{}

			store := New(querier, embed, tt.logger)
			if store == nil {
				t.Fatal("New returned nil")
			}
			if store.queries != querier {
				t.Error("querier not set correctly")
			}
			if store.embedder == nil {
				t.Error("embedder should not be nil")
			}
			if store.logger == nil {
				t.Error("logger should never be nil (should use default)")
			}
		})
	}
}

// ============================================================================
// Store.Add Tests
// ============================================================================

func TestStore_Add_Success(t *testing.T) {
	querier := &mockQuerier{}
	embed := &mockEmbedder{embeddings: []float32{0.5, 0.6, 0.7}}

	store := New(querier, embed, nil)
	ctx := context.Background()

	doc := Document{
		ID:      "doc-1",
		Content: "Hollow Knight: Silksong released on September 4, 2025.",
		Metadata: map[string]any{
			"category":    "games",
			"source_type": "news",
			"tags":        []string{"release", "metroidvania"},
		},
		CreatedAt: time.Date(2025, 9, 4, 12, 0, 0, 0, time.UTC),
	}

	if err := store.Add(ctx, doc); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if embed.callCount != 1 {
		t.Errorf("embedder called %d times, want 1", embed.callCount)
	}
	if embed.lastInputText != doc.Content {
		t.Errorf("embedded %q, want %q", embed.lastInputText, doc.Content)
	}
	if querier.upsertCalls != 1 {
		t.Errorf("upsert called %d times, want 1", querier.upsertCalls)
	}
	if querier.lastUpsertParams.ID != doc.ID {
		t.Errorf("upserted ID %q, want %q", querier.lastUpsertParams.ID, doc.ID)
	}
	if querier.lastUpsertParams.Embedding == nil {
		t.Fatal("upserted embedding is nil")
	}

	var stored map[string]any
	if err := json.Unmarshal(querier.lastUpsertParams.Metadata, &stored); err != nil {
		t.Fatalf("stored metadata is not valid JSON: %v", err)
	}
	if stored["category"] != "games" {
		t.Errorf("stored category = %v, want games", stored["category"])
	}
}

func TestStore_Add_Validation(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{name: "missing ID", doc: Document{Content: "text"}},
		{name: "missing content", doc: Document{ID: "doc-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			querier := &mockQuerier{}
			store := New(querier, &mockEmbedder{}, nil)

			if err := store.Add(context.Background(), tt.doc); err == nil {
				t.Fatal("Add should fail validation")
			}
			if querier.upsertCalls != 0 {
				t.Error("upsert should not be called on validation failure")
			}
		})
	}
}

func TestStore_Add_EmbedError(t *testing.T) {
	embedErr := errors.New("embedding service unavailable")
	querier := &mockQuerier{}
	store := New(querier, &mockEmbedder{embedErr: embedErr}, nil)

	err := store.Add(context.Background(), Document{ID: "doc-1", Content: "text"})
	if !errors.Is(err, embedErr) {
		t.Fatalf("Add error = %v, want wrapped %v", err, embedErr)
	}
	if querier.upsertCalls != 0 {
		t.Error("upsert should not be called when embedding fails")
	}
}

func TestStore_Add_EmptyEmbedding(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{returnEmpty: true}, nil)

	if err := store.Add(context.Background(), Document{ID: "doc-1", Content: "text"}); err == nil {
		t.Fatal("Add should fail on empty embedding")
	}
}

// ============================================================================
// Store.Search Tests
// ============================================================================

func searchRow(id, content string, metadata map[string]any, score float64) sqlc.SearchDocumentsRow {
	raw, _ := json.Marshal(metadata)
	return sqlc.SearchDocumentsRow{ID: id, Content: content, Metadata: raw, Similarity: score}
}

func TestStore_Search_Filtered(t *testing.T) {
	querier := &mockQuerier{
		searchResults: []sqlc.SearchDocumentsRow{
			searchRow("doc-1", "Silksong shipped on 2025-09-04.", map[string]any{"category": "games"}, 0.91),
			searchRow("doc-2", "Team Cherry announced the date at gamescom.", map[string]any{"category": "games"}, 0.84),
		},
	}
	store := New(querier, &mockEmbedder{}, nil)

	passages, err := store.Search(context.Background(), "silksong release date",
		WithTopK(10),
		WithFilters(Filters{Category: "games", Tags: []string{"release"}}))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if querier.searchCalls != 1 || querier.searchAllCalls != 0 {
		t.Fatalf("filtered search path not taken: searchCalls=%d searchAllCalls=%d",
			querier.searchCalls, querier.searchAllCalls)
	}
	if querier.lastSearchParams.ResultLimit != 10 {
		t.Errorf("result limit = %d, want 10", querier.lastSearchParams.ResultLimit)
	}

	var filter map[string]any
	if err := json.Unmarshal(querier.lastSearchParams.FilterMetadata, &filter); err != nil {
		t.Fatalf("filter is not valid JSON: %v", err)
	}
	if filter["category"] != "games" {
		t.Errorf("filter category = %v, want games", filter["category"])
	}
	tags, ok := filter["tags"].([]any)
	if !ok || len(tags) != 1 || tags[0] != "release" {
		t.Errorf("filter tags = %v, want [release]", filter["tags"])
	}

	if len(passages) != 2 {
		t.Fatalf("got %d passages, want 2", len(passages))
	}
	if passages[0].Text != "Silksong shipped on 2025-09-04." {
		t.Errorf("unexpected first passage text: %q", passages[0].Text)
	}
	if passages[0].Score != 0.91 {
		t.Errorf("first passage score = %v, want 0.91", passages[0].Score)
	}
	if passages[0].Metadata["category"] != "games" {
		t.Errorf("passage metadata not normalized: %v", passages[0].Metadata)
	}
}

func TestStore_Search_Unfiltered(t *testing.T) {
	querier := &mockQuerier{
		searchAllResults: []sqlc.SearchDocumentsAllRow{
			{ID: "doc-1", Content: "some passage", Metadata: []byte(`{}`), Similarity: 0.7},
		},
	}
	store := New(querier, &mockEmbedder{}, nil)

	passages, err := store.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if querier.searchAllCalls != 1 || querier.searchCalls != 0 {
		t.Fatalf("unfiltered search path not taken: searchCalls=%d searchAllCalls=%d",
			querier.searchCalls, querier.searchAllCalls)
	}
	if querier.lastSearchAllParams.ResultLimit != DefaultTopK {
		t.Errorf("default result limit = %d, want %d", querier.lastSearchAllParams.ResultLimit, DefaultTopK)
	}
	if len(passages) != 1 {
		t.Fatalf("got %d passages, want 1", len(passages))
	}
}

func TestStore_Search_TopKClamped(t *testing.T) {
	querier := &mockQuerier{}
	store := New(querier, &mockEmbedder{}, nil)

	if _, err := store.Search(context.Background(), "q", WithTopK(500)); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if querier.lastSearchAllParams.ResultLimit != MaxTopK {
		t.Errorf("result limit = %d, want clamped to %d", querier.lastSearchAllParams.ResultLimit, MaxTopK)
	}

	if _, err := store.Search(context.Background(), "q", WithTopK(0)); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if querier.lastSearchAllParams.ResultLimit != DefaultTopK {
		t.Errorf("result limit = %d, want default %d on non-positive top_k", querier.lastSearchAllParams.ResultLimit, DefaultTopK)
	}
}

func TestStore_Search_EmbedError(t *testing.T) {
	embedErr := errors.New("quota exhausted")
	store := New(&mockQuerier{}, &mockEmbedder{embedErr: embedErr}, nil)

	if _, err := store.Search(context.Background(), "q"); !errors.Is(err, embedErr) {
		t.Fatalf("Search error = %v, want wrapped %v", err, embedErr)
	}
}

func TestStore_Search_QueryError(t *testing.T) {
	queryErr := errors.New("connection refused")
	store := New(&mockQuerier{searchAllErr: queryErr}, &mockEmbedder{}, nil)

	if _, err := store.Search(context.Background(), "q"); !errors.Is(err, queryErr) {
		t.Fatalf("Search error = %v, want wrapped %v", err, queryErr)
	}
}

func TestStore_Search_Timeout(t *testing.T) {
	store := New(&mockQuerier{}, &mockEmbedder{delay: 200 * time.Millisecond}, nil)

	_, err := store.Search(context.Background(), "q", WithTimeout(20*time.Millisecond))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Search error = %v, want deadline exceeded", err)
	}
}

func TestStore_Search_MalformedMetadataTolerated(t *testing.T) {
	querier := &mockQuerier{
		searchAllResults: []sqlc.SearchDocumentsAllRow{
			{ID: "bad", Content: "passage", Metadata: []byte(`{not json`), Similarity: 0.5},
		},
	}
	store := New(querier, &mockEmbedder{}, nil)

	passages, err := store.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(passages) != 1 {
		t.Fatalf("got %d passages, want 1", len(passages))
	}
	if passages[0].Metadata == nil {
		t.Error("metadata should be an empty map, not nil")
	}
	if len(passages[0].Metadata) != 0 {
		t.Errorf("metadata should be empty, got %v", passages[0].Metadata)
	}
}

// ============================================================================
// Store.Count Tests
// ============================================================================

func TestStore_Count(t *testing.T) {
	querier := &mockQuerier{countResult: 42, countAllResult: 100}
	store := New(querier, &mockEmbedder{}, nil)
	ctx := context.Background()

	n, err := store.Count(ctx, Filters{Platform: "steam"})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 42 {
		t.Errorf("filtered count = %d, want 42", n)
	}
	var filter map[string]any
	if err := json.Unmarshal(querier.lastCountFilter, &filter); err != nil {
		t.Fatalf("count filter is not valid JSON: %v", err)
	}
	if filter["platform"] != "steam" {
		t.Errorf("count filter = %v, want platform=steam", filter)
	}

	n, err = store.Count(ctx, Filters{})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 100 {
		t.Errorf("total count = %d, want 100", n)
	}
	if querier.countAllCalls != 1 {
		t.Errorf("countAll called %d times, want 1", querier.countAllCalls)
	}
}

func TestStore_Count_Error(t *testing.T) {
	countErr := errors.New("db down")
	store := New(&mockQuerier{countAllErr: countErr}, &mockEmbedder{}, nil)

	if _, err := store.Count(context.Background(), Filters{}); !errors.Is(err, countErr) {
		t.Fatalf("Count error = %v, want wrapped %v", err, countErr)
	}
}

// ============================================================================
// Store.Delete Tests
// ============================================================================

func TestStore_Delete(t *testing.T) {
	querier := &mockQuerier{}
	store := New(querier, &mockEmbedder{}, nil)

	if err := store.Delete(context.Background(), "doc-9"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if querier.lastDeletedID != "doc-9" {
		t.Errorf("deleted ID = %q, want doc-9", querier.lastDeletedID)
	}
}

// ============================================================================
// Store.ListFilterValues Tests
// ============================================================================

func TestStore_ListFilterValues(t *testing.T) {
	querier := &mockQuerier{
		listValuesResult: map[string][]string{
			"category":    {"games", "movies"},
			"platform":    {"pc", "switch"},
			"source_type": {"news", "review"},
		},
	}
	store := New(querier, &mockEmbedder{}, nil)

	fv, err := store.ListFilterValues(context.Background())
	if err != nil {
		t.Fatalf("ListFilterValues failed: %v", err)
	}
	if len(fv.Categories) != 2 || fv.Categories[0] != "games" {
		t.Errorf("categories = %v", fv.Categories)
	}
	if len(fv.Platforms) != 2 || len(fv.SourceTypes) != 2 {
		t.Errorf("platforms = %v, source types = %v", fv.Platforms, fv.SourceTypes)
	}
	if len(querier.listedKeys) != 3 {
		t.Errorf("listed keys = %v, want 3 lookups", querier.listedKeys)
	}
}

// ============================================================================
// Filters Tests
// ============================================================================

func TestFilters_Containment(t *testing.T) {
	tests := []struct {
		name    string
		filters Filters
		want    map[string]any
	}{
		{
			name:    "empty",
			filters: Filters{},
			want:    map[string]any{},
		},
		{
			name:    "scalars only",
			filters: Filters{Category: "games", Platform: "pc", SourceType: "news"},
			want:    map[string]any{"category": "games", "platform": "pc", "source_type": "news"},
		},
		{
			name:    "tags",
			filters: Filters{Tags: []string{"indie", "release"}},
			want:    map[string]any{"tags": []string{"indie", "release"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filters.containment()
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(tt.want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("containment() = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestFilters_IsZero(t *testing.T) {
	if !(Filters{}).IsZero() {
		t.Error("empty Filters should be zero")
	}
	if (Filters{Tags: []string{"x"}}).IsZero() {
		t.Error("Filters with tags should not be zero")
	}
}
