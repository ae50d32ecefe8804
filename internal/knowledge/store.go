package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"

	"github.com/websters/query-api/internal/sqlc"
)

// Querier defines the database operations Store needs. The interface is
// defined here, by the consumer, so tests can substitute a mock without
// a database (similar to http.RoundTripper, io.Reader).
type Querier interface {
	// UpsertDocument inserts or updates a document
	UpsertDocument(ctx context.Context, arg sqlc.UpsertDocumentParams) error

	// SearchDocuments performs filtered vector search
	SearchDocuments(ctx context.Context, arg sqlc.SearchDocumentsParams) ([]sqlc.SearchDocumentsRow, error)

	// SearchDocumentsAll performs unfiltered vector search
	SearchDocumentsAll(ctx context.Context, arg sqlc.SearchDocumentsAllParams) ([]sqlc.SearchDocumentsAllRow, error)

	// CountDocuments counts documents matching filter
	CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error)

	// CountDocumentsAll counts all documents
	CountDocumentsAll(ctx context.Context) (int64, error)

	// DeleteDocument deletes a document by ID
	DeleteDocument(ctx context.Context, id string) error

	// ListDistinctMetadataValues lists distinct scalar values for a metadata key
	ListDistinctMetadataValues(ctx context.Context, key string) ([]string, error)
}

// Store manages the document index: embedding generation on write,
// vector similarity search on read.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Store.
//
// Example (production):
//
//	store := knowledge.New(sqlc.New(pool), embedder, logger)
//
// Example (testing):
//
//	store := knowledge.New(mockQuerier, mockEmbedder, logger)
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// embed generates a vector embedding for the given text, truncated to
// VectorDimension dimensions.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Add indexes a document. The content is embedded and upserted, so
// re-adding an existing ID refreshes both content and vector.
func (s *Store) Add(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document ID is required")
	}
	if doc.Content == "" {
		return fmt.Errorf("document %q has no content", doc.ID)
	}

	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embedding document %q: %w", doc.ID, err)
	}

	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
	}

	err = s.queries.UpsertDocument(ctx, sqlc.UpsertDocumentParams{
		ID:        doc.ID,
		Content:   doc.Content,
		Embedding: &embedding,
		Metadata:  metadataJSON,
		CreatedAt: pgtype.Timestamptz{Time: doc.CreatedAt, Valid: !doc.CreatedAt.IsZero()},
	})
	if err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}

	s.logger.Debug("indexed document", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search embeds the query and returns the most similar passages, ordered
// by descending similarity. Filters combine conjunctively; an empty
// Filters value searches the whole index. A per-search timeout bounds
// the embed-and-scan round trip.
//
// Example:
//
//	passages, err := store.Search(ctx, "release dates",
//	    knowledge.WithTopK(10),
//	    knowledge.WithFilters(knowledge.Filters{Category: "games"}))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Passage, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	queryEmbedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// filterJSON is always produced by json.Marshal and bound as a
	// query parameter, so the @> containment check cannot be injected
	// into.
	if containment := cfg.filters.containment(); len(containment) > 0 {
		filterJSON, marshalErr := json.Marshal(containment)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshaling filter: %w", marshalErr)
		}
		rows, searchErr := s.queries.SearchDocuments(queryCtx, sqlc.SearchDocumentsParams{
			QueryEmbedding: &queryEmbedding,
			FilterMetadata: filterJSON,
			ResultLimit:    int32(cfg.topK),
		})
		if searchErr != nil {
			if errors.Is(searchErr, context.DeadlineExceeded) {
				return nil, fmt.Errorf("search timeout: %w", searchErr)
			}
			return nil, fmt.Errorf("filtered search: %w", searchErr)
		}
		return s.rowsToPassages(rows), nil
	}

	rows, err := s.queries.SearchDocumentsAll(queryCtx, sqlc.SearchDocumentsAllParams{
		QueryEmbedding: &queryEmbedding,
		ResultLimit:    int32(cfg.topK),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search timeout: %w", err)
		}
		return nil, fmt.Errorf("search: %w", err)
	}
	return s.rowsToPassagesAll(rows), nil
}

// Count returns the number of documents matching the filters, or the
// total document count when the filters are empty.
func (s *Store) Count(ctx context.Context, filters Filters) (int, error) {
	var count int64
	var err error

	if containment := filters.containment(); len(containment) > 0 {
		filterJSON, marshalErr := json.Marshal(containment)
		if marshalErr != nil {
			return 0, fmt.Errorf("marshaling filter: %w", marshalErr)
		}
		count, err = s.queries.CountDocuments(ctx, filterJSON)
	} else {
		count, err = s.queries.CountDocumentsAll(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}

	// Overflow guard for 32-bit platforms.
	if count > math.MaxInt {
		return 0, fmt.Errorf("document count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// Delete removes a document from the index.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if err := s.queries.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("deleting document %q: %w", docID, err)
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// FilterValues holds the distinct metadata values present in the index,
// used to advertise the valid filter vocabulary to clients.
type FilterValues struct {
	Categories  []string `json:"categories"`
	Platforms   []string `json:"platforms"`
	SourceTypes []string `json:"source_types"`
}

// ListFilterValues returns the distinct categories, platforms, and
// source types currently present in document metadata.
func (s *Store) ListFilterValues(ctx context.Context) (FilterValues, error) {
	var fv FilterValues
	var err error

	if fv.Categories, err = s.queries.ListDistinctMetadataValues(ctx, "category"); err != nil {
		return FilterValues{}, fmt.Errorf("listing categories: %w", err)
	}
	if fv.Platforms, err = s.queries.ListDistinctMetadataValues(ctx, "platform"); err != nil {
		return FilterValues{}, fmt.Errorf("listing platforms: %w", err)
	}
	if fv.SourceTypes, err = s.queries.ListDistinctMetadataValues(ctx, "source_type"); err != nil {
		return FilterValues{}, fmt.Errorf("listing source types: %w", err)
	}
	return fv, nil
}

// rowsToPassages converts filtered search rows into normalized passages.
func (s *Store) rowsToPassages(rows []sqlc.SearchDocumentsRow) []Passage {
	passages := make([]Passage, 0, len(rows))
	for _, row := range rows {
		passages = append(passages, Passage{
			Text:     row.Content,
			Metadata: s.parseMetadata(row.ID, row.Metadata),
			Score:    row.Similarity,
		})
	}
	return passages
}

// rowsToPassagesAll converts unfiltered search rows into normalized passages.
func (s *Store) rowsToPassagesAll(rows []sqlc.SearchDocumentsAllRow) []Passage {
	passages := make([]Passage, 0, len(rows))
	for _, row := range rows {
		passages = append(passages, Passage{
			Text:     row.Content,
			Metadata: s.parseMetadata(row.ID, row.Metadata),
			Score:    row.Similarity,
		})
	}
	return passages
}

// parseMetadata decodes a metadata column, tolerating malformed JSON so
// one bad row cannot fail a whole search.
func (s *Store) parseMetadata(docID string, raw []byte) map[string]any {
	var metadata map[string]any
	if err := json.Unmarshal(raw, &metadata); err != nil {
		s.logger.Warn("failed to parse document metadata", "document_id", docID, "error", err)
		return map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return metadata
}
