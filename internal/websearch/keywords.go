package websearch

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// maxKeywords caps synthesized or extracted search keywords.
const maxKeywords = 3

// stopwords are dropped during fallback keyword extraction.
var stopwords = map[string]struct{}{
	"what": {}, "is": {}, "are": {}, "the": {}, "how": {}, "to": {},
	"in": {}, "for": {}, "of": {}, "and": {}, "or": {}, "a": {}, "an": {},
}

const keywordPrompt = `Generate 2-3 concise search keywords for finding technical documentation.

Query: %s
Context: %s

Requirements:
- Focus on the MOST specific technology/platform
- Use short terms (2-4 words max)
- Prioritize product/vendor names

Return ONLY keywords, one per line, no numbering.`

// synthesizeKeywords derives search keywords from the query and local
// context. Without context, or when synthesis fails, it falls back to
// stopword-filtered tokens from the raw query.
func (e *Engine) synthesizeKeywords(ctx context.Context, query, localContext string) []string {
	if localContext == "" {
		return extractKeyTerms(query)
	}

	prompt := fmt.Sprintf(keywordPrompt, query, truncate(localContext, 300))
	resp, err := genkit.Generate(ctx, e.g,
		ai.WithModelName(e.modelName),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		e.logger.Warn("keyword synthesis failed, falling back to key terms", "error", err)
		return extractKeyTerms(query)
	}

	var keywords []string
	for _, line := range strings.Split(resp.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			keywords = append(keywords, line)
		}
		if len(keywords) == maxKeywords {
			break
		}
	}
	if len(keywords) == 0 {
		return extractKeyTerms(query)
	}
	return keywords
}

// extractKeyTerms lowercases and tokenizes the query, dropping
// stopwords and tokens of length <= 2. An all-stopword query falls back
// to the query itself as a single term.
func extractKeyTerms(query string) []string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if _, stop := stopwords[word]; stop || len(word) <= 2 {
			continue
		}
		terms = append(terms, word)
		if len(terms) == maxKeywords {
			break
		}
	}
	if len(terms) == 0 {
		return []string{query}
	}
	return terms
}
