package answer

import (
	"strings"
	"testing"

	"github.com/websters/query-api/internal/knowledge"
)

func localPassages() []knowledge.Passage {
	return []knowledge.Passage{
		{Text: "schema passage", Metadata: map[string]any{"category": "games"}, Score: 0.9},
		{Text: "sample passage", Metadata: map[string]any{"category": "games"}, Score: 0.7},
	}
}

func TestCombine_NoWebAnswerPassthrough(t *testing.T) {
	local := "The database tracks app_open and session_end events.\n\nWith trailing newlines preserved.  "

	tests := []struct {
		name string
		in   Input
	}{
		{name: "search skipped", in: Input{LocalAnswer: local, LocalPassages: localPassages()}},
		{name: "search performed but empty text", in: Input{
			LocalAnswer: local, LocalPassages: localPassages(),
			WebPerformed: true, WebAnswer: "   ",
		}},
		{name: "web text without performed flag", in: Input{
			LocalAnswer: local, LocalPassages: localPassages(),
			WebAnswer: "stray text from a skipped search",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Combine(tt.in)

			// Byte-identical passthrough, including whitespace.
			if result.Answer != local {
				t.Errorf("answer = %q, want local answer verbatim", result.Answer)
			}
			if len(result.Citations) != 2 {
				t.Fatalf("got %d citations, want 2 local", len(result.Citations))
			}
			for _, c := range result.Citations {
				if c.Metadata["source_origin"] != OriginLocalDatabase {
					t.Errorf("citation origin = %v", c.Metadata["source_origin"])
				}
			}
		})
	}
}

func TestCombine_WithWebAnswer(t *testing.T) {
	result := Combine(Input{
		LocalAnswer:   "local part",
		LocalPassages: localPassages(),
		WebAnswer:     "web part",
		WebPerformed:  true,
		WebSources:    []WebSource{{URL: "https://example.com/a", Title: "A"}},
		QueryType:     QueryTypeFactual,
	})

	if !strings.Contains(result.Answer, "**DATABASE INFORMATION:**\nlocal part") {
		t.Errorf("local section missing: %q", result.Answer)
	}
	if !strings.Contains(result.Answer, "**SUPPLEMENTARY WEB INFORMATION:**\nweb part") {
		t.Errorf("web section missing: %q", result.Answer)
	}

	if len(result.Citations) != 3 {
		t.Fatalf("got %d citations, want web + 2 local", len(result.Citations))
	}

	// Synthetic web citation is prepended with top priority.
	web := result.Citations[0]
	if web.Metadata["source_origin"] != OriginWebSearch {
		t.Errorf("first citation origin = %v, want web", web.Metadata["source_origin"])
	}
	if web.Score != 1.0 {
		t.Errorf("web citation score = %v, want 1.0", web.Score)
	}
	sources, ok := web.Metadata["web_sources"].([]WebSource)
	if !ok || len(sources) != 1 || sources[0].URL != "https://example.com/a" {
		t.Errorf("web_sources = %v", web.Metadata["web_sources"])
	}
	if result.Citations[1].Text != "schema passage" {
		t.Errorf("local citations out of order: %v", result.Citations[1].Text)
	}
}

func TestCombine_SectionLabelsByQueryType(t *testing.T) {
	tests := []struct {
		queryType  string
		localLabel string
		webLabel   string
	}{
		{QueryTypeRecentEvents, "DATABASE CONTEXT", "RECENT DEVELOPMENTS"},
		{QueryTypeComparison, "FOUNDATIONAL INFORMATION", "COMPARATIVE ANALYSIS"},
		{QueryTypeHowTo, "CORE METHODS", "ADDITIONAL TECHNIQUES"},
		{QueryTypeFactual, "DATABASE INFORMATION", "SUPPLEMENTARY WEB INFORMATION"},
		{QueryTypeTroubleshooting, "DATABASE INFORMATION", "SUPPLEMENTARY WEB INFORMATION"},
		{"", "DATABASE INFORMATION", "SUPPLEMENTARY WEB INFORMATION"},
	}

	for _, tt := range tests {
		t.Run("type_"+tt.queryType, func(t *testing.T) {
			result := Combine(Input{
				LocalAnswer:  "L",
				WebAnswer:    "W",
				WebPerformed: true,
				QueryType:    tt.queryType,
			})
			localIdx := strings.Index(result.Answer, "**"+tt.localLabel+":**")
			webIdx := strings.Index(result.Answer, "**"+tt.webLabel+":**")
			if localIdx < 0 || webIdx < 0 {
				t.Fatalf("labels missing for %q: %q", tt.queryType, result.Answer)
			}
			if localIdx > webIdx {
				t.Errorf("local section should precede web section: %q", result.Answer)
			}
		})
	}
}

func TestLocalCitations_CopiesMetadata(t *testing.T) {
	passages := localPassages()
	citations := LocalCitations(passages)

	citations[0].Metadata["mutated"] = true
	if _, ok := passages[0].Metadata["mutated"]; ok {
		t.Error("citation metadata must not alias passage metadata")
	}
	if _, ok := passages[0].Metadata["source_origin"]; ok {
		t.Error("tagging citations must not modify the passage")
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "markdown link keeps label",
			in:   "See [the docs](https://example.com/docs) for details.",
			want: "See the docs for details.",
		},
		{
			name: "bare url removed",
			in:   "Released today https://example.com/news story.",
			want: "Released today story.",
		},
		{
			name: "parenthetical url removed",
			in:   "It shipped (see https://example.com) last week.",
			want: "It shipped last week.",
		},
		{
			name: "domain parenthetical removed",
			in:   "Per the store page (store.steampowered.com) the price is $20.",
			want: "Per the store page the price is $20.",
		},
		{
			name: "plain text untouched",
			in:   "No links here at all.",
			want: "No links here at all.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
