package preferences

import (
	"fmt"
	"sort"
	"strings"

	"github.com/websters/query-api/internal/knowledge"
)

const (
	// maxInstructionSources caps the domains named in the instruction suffix.
	maxInstructionSources = 3

	// maxPreferredSources caps the standalone preferred-source list.
	maxPreferredSources = 5

	// maxSummaryDatatypes caps datatypes shown in the context summary.
	maxSummaryDatatypes = 3
)

// MetadataContext is the per-query aggregate over retrieved passages:
// the deduplicated metadata value sets, the matched preferred external
// sources and search instructions, and a short human-readable summary.
// It is ephemeral, recomputed for every query.
type MetadataContext struct {
	Categories         []string `json:"categories"`
	Platforms          []string `json:"platforms"`
	Datatypes          []string `json:"datatypes"`
	Tags               []string `json:"tags"`
	PreferredSources   []string `json:"preferred_sources"`
	SearchInstructions []string `json:"search_instructions"`
	Summary            string   `json:"context_summary"`
}

// WebSearchEligible reports whether the retrieved passages matched any
// preferred external sources. It gates whether a caller is invited to
// proceed to web enrichment.
func (m MetadataContext) WebSearchEligible() bool {
	return len(m.PreferredSources) > 0
}

// Instruction resolves the retrieved passages against the preference
// tree and returns the instruction string plus response-format hints.
//
// Category matches resolve first (more specific), then platform
// matches. Matched instructions join in match order, deduplicated;
// matched sources are appended as a "Preferred sources: ..." suffix
// capped at maxInstructionSources. With no match the default
// instruction applies; with nil preferences both return values are
// empty.
//
// Resolution is order-independent: aggregated metadata sets are walked
// in sorted order, so the same passage set yields the same output
// regardless of retrieval order.
func (p *Preferences) Instruction(passages []knowledge.Passage) (string, Format) {
	if p == nil {
		return "", Format{}
	}

	agg := aggregate(passages)

	var instructions, sources []string
	for _, category := range agg.categories {
		catPrefs, ok := p.ByCategory[category]
		if !ok {
			continue
		}
		// Datatype subtypes refine within the category.
		for _, subtype := range agg.subtypes {
			src, ok := catPrefs[subtype]
			if !ok {
				continue
			}
			instructions = appendUnique(instructions, src.Instruction)
			sources = append(sources, src.PreferredSources...)
		}
	}
	for _, platform := range agg.platforms {
		src, ok := p.ByPlatform[platform]
		if !ok {
			continue
		}
		instructions = appendUnique(instructions, src.Instruction)
		sources = append(sources, src.PreferredSources...)
	}

	instruction := strings.Join(instructions, " ")
	if instruction == "" {
		instruction = p.Default.Instruction
	}

	if unique := dedupe(sources, maxInstructionSources); len(unique) > 0 {
		instruction += fmt.Sprintf(" Preferred sources: %s", strings.Join(unique, ", "))
	}

	return instruction, p.format()
}

// Context aggregates passage metadata into a MetadataContext, resolving
// preferred sources and search instructions against the preference
// tree. Nil preferences still produce the metadata sets and summary,
// just with no matched sources, so the query is never web-search
// eligible.
func (p *Preferences) Context(passages []knowledge.Passage) MetadataContext {
	agg := aggregate(passages)

	var sources, searchInstructions []string
	if p != nil {
		for _, category := range agg.categories {
			catPrefs, ok := p.ByCategory[category]
			if !ok {
				continue
			}
			for _, subtype := range agg.subtypes {
				src, ok := catPrefs[subtype]
				if !ok {
					continue
				}
				sources = append(sources, src.PreferredSources...)
				searchInstructions = appendUnique(searchInstructions, src.Instruction)
			}
		}
		for _, platform := range agg.platforms {
			src, ok := p.ByPlatform[platform]
			if !ok {
				continue
			}
			sources = append(sources, src.PreferredSources...)
			searchInstructions = appendUnique(searchInstructions, src.Instruction)
		}
	}

	var summary []string
	if len(agg.categories) > 0 {
		summary = append(summary, "Categories: "+strings.Join(agg.categories, ", "))
	}
	if len(agg.platforms) > 0 {
		summary = append(summary, "Platforms: "+strings.Join(agg.platforms, ", "))
	}
	if len(agg.datatypes) > 0 {
		shown := agg.datatypes
		if len(shown) > maxSummaryDatatypes {
			shown = shown[:maxSummaryDatatypes]
		}
		summary = append(summary, "Data types: "+strings.Join(shown, ", "))
	}

	return MetadataContext{
		Categories:         agg.categories,
		Platforms:          agg.platforms,
		Datatypes:          agg.datatypes,
		Tags:               agg.tags,
		PreferredSources:   dedupe(sources, maxPreferredSources),
		SearchInstructions: searchInstructions,
		Summary:            strings.Join(summary, " | "),
	}
}

// format returns the response-format hints with defaults filled in.
func (p *Preferences) format() Format {
	f := p.Format
	if f.MaxContextSentences == 0 {
		f.MaxContextSentences = DefaultMaxContextSentences
	}
	if f.DataFocusRatio == 0 && f.ContextRatio == 0 {
		f.DataFocusRatio = 80
		f.ContextRatio = 20
	}
	return f
}

// aggregated holds the sorted, deduplicated metadata value sets drawn
// from a passage list. Sorted order makes downstream resolution
// independent of passage retrieval order.
type aggregated struct {
	categories []string
	platforms  []string
	datatypes  []string
	subtypes   []string
	tags       []string
}

func aggregate(passages []knowledge.Passage) aggregated {
	categories := map[string]struct{}{}
	platforms := map[string]struct{}{}
	datatypes := map[string]struct{}{}
	subtypes := map[string]struct{}{}
	tags := map[string]struct{}{}

	for _, passage := range passages {
		if v := metadataString(passage.Metadata, "category"); v != "" {
			categories[v] = struct{}{}
		}
		if v := metadataString(passage.Metadata, "platform"); v != "" {
			platforms[v] = struct{}{}
		}
		if v := metadataString(passage.Metadata, "datatype"); v != "" {
			datatypes[v] = struct{}{}
			// "category.subtype" refines per-category preference tables.
			if _, subtype, ok := strings.Cut(v, "."); ok && subtype != "" {
				subtypes[subtype] = struct{}{}
			}
		}
		for _, tag := range metadataStrings(passage.Metadata, "tags") {
			tags[tag] = struct{}{}
		}
	}

	return aggregated{
		categories: sortedKeys(categories),
		platforms:  sortedKeys(platforms),
		datatypes:  sortedKeys(datatypes),
		subtypes:   sortedKeys(subtypes),
		tags:       sortedKeys(tags),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// metadataString reads a string-valued metadata key, tolerating absence
// and non-string values.
func metadataString(metadata map[string]any, key string) string {
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}

// metadataStrings reads a string-list metadata key. JSON decoding
// yields []any, so both []string and []any are accepted.
func metadataStrings(metadata map[string]any, key string) []string {
	switch v := metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// appendUnique appends s to list unless it is empty or already present.
func appendUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// dedupe removes duplicates preserving first-seen order and caps the
// result at limit.
func dedupe(list []string, limit int) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
