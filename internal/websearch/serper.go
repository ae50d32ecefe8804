package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// serperEndpoint is the Serper search API URL.
	serperEndpoint = "https://google.serper.dev/search"

	// maxSiteRestrictions caps the "site:" clauses added to a query.
	maxSiteRestrictions = 2

	// maxQueryKeywords caps how many keywords form the search query.
	maxQueryKeywords = 2

	// DefaultMaxResults is the organic-result cap when the caller does
	// not specify one.
	DefaultMaxResults = 5
)

// SearchResult is one organic web search result.
type SearchResult struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

// SerperClient is a minimal client for the Serper search API.
type SerperClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSerperClient creates a client. An empty apiKey is valid and puts
// the client in degraded mode: every search returns no results.
func NewSerperClient(apiKey string, logger *slog.Logger) *SerperClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SerperClient{
		apiKey:     apiKey,
		endpoint:   serperEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type serperRequest struct {
	Query    string `json:"q"`
	Num      int    `json:"num"`
	Geo      string `json:"gl"`
	Language string `json:"hl"`
}

type serperResponse struct {
	Organic []SearchResult `json:"organic"`
}

// Search issues a query built from the keywords, optionally restricted
// to up to maxSiteRestrictions preferred domains. A missing credential
// yields no results and no error; a provider failure is returned as an
// error for the engine to degrade on.
func (c *SerperClient) Search(ctx context.Context, keywords, preferredSources []string, maxResults int) ([]SearchResult, error) {
	if c.apiKey == "" {
		c.logger.Warn("search provider credential missing, skipping web search")
		return nil, nil
	}
	if len(keywords) == 0 {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	query := buildSearchQuery(keywords, preferredSources)
	c.logger.Debug("executing web search", "query", query, "max_results", maxResults)

	payload, err := json.Marshal(serperRequest{
		Query:    query,
		Num:      maxResults,
		Geo:      "us",
		Language: "en",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return parsed.Organic, nil
}

// buildSearchQuery joins the leading keywords and appends OR-joined
// site restrictions for up to two preferred domains.
func buildSearchQuery(keywords, preferredSources []string) string {
	terms := keywords
	if len(terms) > maxQueryKeywords {
		terms = terms[:maxQueryKeywords]
	}
	query := strings.Join(terms, " ")

	if len(preferredSources) > 0 {
		sites := preferredSources
		if len(sites) > maxSiteRestrictions {
			sites = sites[:maxSiteRestrictions]
		}
		clauses := make([]string, 0, len(sites))
		for _, site := range sites {
			clauses = append(clauses, "site:"+site)
		}
		query += " " + strings.Join(clauses, " OR ")
	}
	return query
}
