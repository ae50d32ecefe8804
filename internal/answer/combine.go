package answer

import (
	"fmt"
	"strings"

	"github.com/websters/query-api/internal/knowledge"
)

// WebSource is a URL annotation carried on the synthetic web citation.
type WebSource struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Input describes one combination: the local answer with its passages,
// and optionally a web answer with the flag saying whether a search was
// actually performed.
type Input struct {
	LocalAnswer   string
	LocalPassages []knowledge.Passage

	WebAnswer     string
	WebPerformed  bool
	WebSources    []WebSource
	WebModelLabel string // provider label recorded on the web citation

	QueryType string
}

// Result is the combined answer plus its ordered citation list.
type Result struct {
	Answer    string
	Citations []Citation
}

// Combine merges a local answer with an optional web answer.
//
// When no web search was performed (skipped by the decision stage,
// zero results, or an empty synthesized text) the combined answer is
// the local answer verbatim and citations are the local citations only.
// Otherwise the two answers land under query-type-specific section
// labels and a single synthetic web citation is prepended as the
// highest-priority source.
func Combine(in Input) Result {
	webText := strings.TrimSpace(in.WebAnswer)
	webUsed := in.WebPerformed && webText != ""

	citations := make([]Citation, 0, len(in.LocalPassages)+1)
	if webUsed {
		citations = append(citations, webCitation(in, webText))
	}
	citations = append(citations, LocalCitations(in.LocalPassages)...)

	if !webUsed {
		return Result{Answer: in.LocalAnswer, Citations: citations}
	}

	labels, ok := sectionLabels[in.QueryType]
	if !ok {
		labels = defaultLabels
	}
	combined := fmt.Sprintf("**%s:**\n%s\n\n**%s:**\n%s",
		labels[0], in.LocalAnswer, labels[1], webText)

	return Result{Answer: combined, Citations: citations}
}

// LocalCitations converts retrieved passages into citations tagged with
// the local-database origin. Passage metadata is copied, not shared.
func LocalCitations(passages []knowledge.Passage) []Citation {
	citations := make([]Citation, 0, len(passages))
	for _, passage := range passages {
		metadata := make(map[string]any, len(passage.Metadata)+1)
		for k, v := range passage.Metadata {
			metadata[k] = v
		}
		metadata["source_origin"] = OriginLocalDatabase
		citations = append(citations, Citation{
			Text:     passage.Text,
			Metadata: metadata,
			Score:    passage.Score,
		})
	}
	return citations
}

// webCitation builds the synthetic citation representing the whole web
// answer, carrying the extracted URL annotations.
func webCitation(in Input, webText string) Citation {
	label := in.WebModelLabel
	if label == "" {
		label = "web_search"
	}
	sources := in.WebSources
	if sources == nil {
		sources = []WebSource{}
	}
	return Citation{
		Text: webText,
		Metadata: map[string]any{
			"source_type":   OriginWebSearch,
			"source_origin": OriginWebSearch,
			"category":      "web",
			"platform":      label,
			"description":   "Current web information retrieved via live search",
			"web_sources":   sources,
		},
		Score: 1.0,
	}
}
