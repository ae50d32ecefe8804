package websearch

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/websters/query-api/internal/answer"
)

// decisionContextWindow bounds the local-context excerpt shown to the
// decision step.
const decisionContextWindow = 500

// Strategy is the search-necessity decision: whether to search at all,
// and if so how. Produced once per combined query, consumed
// immediately, never persisted.
type Strategy struct {
	NeedsWebSearch   bool     `json:"needs_web_search"`
	Reasoning        string   `json:"reasoning"`
	SearchTerms      []string `json:"search_terms"`
	QueryType        string   `json:"query_type"`
	FocusAreas       []string `json:"focus_areas"`
	AvoidDuplicating []string `json:"avoid_duplicating"`
}

const decisionPrompt = `You are analyzing a query about proprietary event data collected from various platforms (social media, e-commerce, apps, etc.).

Query: %s
Database Context: %s...

This database contains INTERNAL event data that is not publicly available. Determine if this query would benefit from web search supplementation.

DEFAULT TO web search (needs_web_search: true) UNLESS the query is PURELY about internal capabilities with NO conceptual terms that need explanation.

SKIP web search (set needs_web_search: false) ONLY if the query is:
- Purely technical about data schema/fields ("What columns do we have for X?")
- Simple yes/no about data collection ("Do we track user login times?")
- Internal data format questions ("How is timestamp stored?")
- Questions with zero conceptual terms that could benefit from context

Classify query_type as one of: factual, comparison, recent_events, how_to, troubleshooting.`

// Decide runs the search-necessity decision against the query and a
// truncated view of the local context. Any failure defaults
// conservatively to needing web search; this sub-decision never blocks
// the pipeline.
func (e *Engine) Decide(ctx context.Context, query, localContext string) Strategy {
	prompt := fmt.Sprintf(decisionPrompt, query, truncate(localContext, decisionContextWindow))

	resp, err := genkit.Generate(ctx, e.g,
		ai.WithModelName(e.modelName),
		ai.WithPrompt(prompt),
		ai.WithOutputType(Strategy{}),
	)
	if err != nil {
		e.logger.Warn("search decision failed, defaulting to web search", "error", err)
		return fallbackStrategy(query, "Error in analysis - defaulting to web search")
	}

	var strategy Strategy
	if err := resp.Output(&strategy); err != nil {
		e.logger.Warn("search decision output unparsable, defaulting to web search", "error", err)
		return fallbackStrategy(query, "Fallback - defaulting to web search for safety")
	}

	if !validQueryType(strategy.QueryType) {
		strategy.QueryType = answer.QueryTypeFactual
	}
	if len(strategy.SearchTerms) == 0 {
		strategy.SearchTerms = []string{query}
	}
	return strategy
}

func fallbackStrategy(query, reasoning string) Strategy {
	return Strategy{
		NeedsWebSearch: true,
		Reasoning:      reasoning,
		SearchTerms:    []string{query},
		QueryType:      answer.QueryTypeFactual,
		FocusAreas:     []string{"additional context"},
	}
}

func validQueryType(queryType string) bool {
	switch queryType {
	case answer.QueryTypeFactual, answer.QueryTypeComparison, answer.QueryTypeRecentEvents,
		answer.QueryTypeHowTo, answer.QueryTypeTroubleshooting:
		return true
	}
	return false
}
