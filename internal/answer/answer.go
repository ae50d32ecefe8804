// Package answer merges local and web answers into one response and
// carries the citation model shared by the pipeline and the chat store.
package answer

// Citation is a scored source reference attached to an answer: the
// source text, its metadata, and a relevance score.
type Citation struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// SourceOrigin values recorded in citation metadata.
const (
	OriginLocalDatabase = "local_database"
	OriginWebSearch     = "web_search"
)

// Query-type tags steering section labels and search-prompt framing.
const (
	QueryTypeFactual         = "factual"
	QueryTypeComparison      = "comparison"
	QueryTypeRecentEvents    = "recent_events"
	QueryTypeHowTo           = "how_to"
	QueryTypeTroubleshooting = "troubleshooting"
)

// sectionLabels maps a query type to the (local, web) section headers
// used when a web answer is appended.
var sectionLabels = map[string][2]string{
	QueryTypeRecentEvents: {"DATABASE CONTEXT", "RECENT DEVELOPMENTS"},
	QueryTypeComparison:   {"FOUNDATIONAL INFORMATION", "COMPARATIVE ANALYSIS"},
	QueryTypeHowTo:        {"CORE METHODS", "ADDITIONAL TECHNIQUES"},
}

var defaultLabels = [2]string{"DATABASE INFORMATION", "SUPPLEMENTARY WEB INFORMATION"}
