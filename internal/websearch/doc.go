// Package websearch implements the web-search decision and enrichment
// engine: keyword synthesis, the search-necessity decision, search
// execution against the Serper API, and parallel content fetch followed
// by answer synthesis.
//
// The engine degrades instead of failing: a missing provider credential
// or a provider error yields an empty result list, a failed page fetch
// falls back to the result's snippet, and a failed synthesis falls back
// to a bullet list of title/snippet pairs. No stage propagates an
// unhandled failure past the engine boundary.
package websearch
