package websearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/websters/query-api/internal/answer"
)

const (
	// NoResultsMessage is returned when the search yields no results.
	NoResultsMessage = "No web results found for the given query."

	// noContentMessage is returned when synthesis has nothing to work with.
	noContentMessage = "No web content available for synthesis."

	// sourceExcerptWindow caps the per-source content shown to the synthesizer.
	sourceExcerptWindow = 800
)

const concisePrompt = `Based on the web sources below, provide a CONCISE answer to the query.

Query: %s

Web Sources:
%s

Requirements:
- Answer in 2-3 sentences maximum
- Focus on the most relevant information
- Include specific details or values when available
- Cite source numbers [1], [2], etc.

Answer:`

const fullPrompt = `Based on the web sources below, provide a comprehensive answer to the query.

Query: %s

Web Sources:
%s

Requirements:
- Provide specific technical details
- Highlight best practices or recommendations
- Cite sources with [1], [2], etc.
- Structure with clear sections if needed

Answer:`

// queryTypeRoles frame the supplement synthesis by query type.
var queryTypeRoles = map[string]string{
	answer.QueryTypeFactual:         "You are a technical research assistant. Provide factual information and explanations.",
	answer.QueryTypeComparison:      "You are a comparison specialist. Focus on differences, pros/cons, and trade-offs.",
	answer.QueryTypeRecentEvents:    "You are a technology news researcher. Focus on recent developments and updates.",
	answer.QueryTypeHowTo:           "You are a technical guide. Focus on practical steps and best practices.",
	answer.QueryTypeTroubleshooting: "You are a problem-solving expert. Focus on solutions and fixes.",
}

// synthesize produces the enriched answer from fetched content. On
// synthesis failure it falls back to a bullet list of title/snippet
// pairs rather than failing the pipeline.
func (e *Engine) synthesize(ctx context.Context, req EnrichmentRequest, contents []PageContent) string {
	if len(contents) == 0 {
		return noContentMessage
	}

	sourcesText := buildSourcesText(contents)

	var prompt string
	switch {
	case req.Strategy != nil:
		prompt = e.supplementPrompt(req, sourcesText)
	case req.Concise:
		prompt = fmt.Sprintf(concisePrompt, req.Query, sourcesText)
	default:
		prompt = fmt.Sprintf(fullPrompt, req.Query, sourcesText)
	}

	resp, err := genkit.Generate(ctx, e.g,
		ai.WithModelName(e.modelName),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		e.logger.Warn("web synthesis failed, falling back to snippets", "error", err)
		return snippetFallback(contents)
	}
	return strings.TrimSpace(resp.Text())
}

// supplementPrompt frames synthesis as supplementing the database
// answer rather than answering from scratch: query-type role, domain
// priorities, focus areas, duplication avoidance, and a sentence cap.
func (e *Engine) supplementPrompt(req EnrichmentRequest, sourcesText string) string {
	strategy := req.Strategy

	role, ok := queryTypeRoles[strategy.QueryType]
	if !ok {
		role = queryTypeRoles[answer.QueryTypeFactual]
	}

	var domainConstraint string
	if len(req.PreferredSources) > 0 {
		domains := req.PreferredSources
		if len(domains) > 3 {
			domains = domains[:3]
		}
		domainConstraint = fmt.Sprintf("Prioritize information from: %s. ", strings.Join(domains, ", "))
	}

	focus := "additional context and recent information"
	if len(strategy.FocusAreas) > 0 {
		focus = strings.Join(strategy.FocusAreas, ", ")
	}
	avoid := "basic information already covered"
	if len(strategy.AvoidDuplicating) > 0 {
		avoid = strings.Join(strategy.AvoidDuplicating, ", ")
	}

	maxSentences := req.MaxSentences
	if maxSentences <= 0 {
		maxSentences = 3
	}

	return fmt.Sprintf(`%s Your role is to SUPPLEMENT the existing database information, not replace it. %sFocus on: %s. Avoid repeating: %s. Keep response to %d sentences maximum.

Search terms: %s
Original query: %s
Database already covers: %s...

Web Sources:
%s

Use the web sources to find supplementary information. Focus on what the database might be missing or outdated information. Cite source numbers [1], [2], etc.

Answer:`,
		role, domainConstraint, focus, avoid, maxSentences,
		strings.Join(strategy.SearchTerms, " "), req.Query,
		truncate(req.LocalContext, 400), sourcesText)
}

// buildSourcesText renders the per-source excerpts in rank order,
// numbered from 1 so ordinal citations line up.
func buildSourcesText(contents []PageContent) string {
	var sb strings.Builder
	for i, content := range contents {
		fmt.Fprintf(&sb, "\nSource %d: %s\n", i+1, content.Title)
		if content.Content != "" {
			sb.WriteString(truncate(content.Content, sourceExcerptWindow))
			sb.WriteString("...\n")
		} else {
			sb.WriteString(content.Snippet)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func snippetFallback(contents []PageContent) string {
	var sb strings.Builder
	sb.WriteString("Web search results:\n")
	for _, content := range contents {
		fmt.Fprintf(&sb, "- %s: %s\n", content.Title, content.Snippet)
	}
	return sb.String()
}
