package answer

import (
	"regexp"
	"strings"
)

// Patterns applied by CleanText, in order. URL stripping runs before
// the generic parenthetical cleanups so that "(see https://x)" collapses
// fully.
var (
	markdownLinkRe   = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)
	urlParentheticRe = regexp.MustCompile(`\([^)]*https?://[^)]*\)`)
	bareURLRe        = regexp.MustCompile(`https?://[^\s\)\]\,]+`)
	domainParenRe    = regexp.MustCompile(`\([^)]*\.(?:com|org|net)[^)]*\)`)
	trailingParenRe  = regexp.MustCompile(`\.\s*\([^)]*\)`)
	trailingBrackRe  = regexp.MustCompile(`\.\s*\[[^\]]*\]`)
	multiSpaceRe     = regexp.MustCompile(`\s+`)
	spaceDotRe       = regexp.MustCompile(`\s+\.`)
	multiDotRe       = regexp.MustCompile(`\.+`)
	spaceCloseRe     = regexp.MustCompile(`\s+\)`)
	openSpaceRe      = regexp.MustCompile(`\(\s+`)
)

// CleanText strips inline citations, markdown links, and bare URLs from
// a synthesized answer, then normalizes the whitespace and punctuation
// the removals leave behind. Applied to web answers before they are
// returned or persisted, since the chat UI renders plain text.
func CleanText(text string) string {
	cleaned := markdownLinkRe.ReplaceAllString(text, "$1")
	cleaned = urlParentheticRe.ReplaceAllString(cleaned, "")
	cleaned = bareURLRe.ReplaceAllString(cleaned, "")
	cleaned = domainParenRe.ReplaceAllString(cleaned, "")
	cleaned = trailingParenRe.ReplaceAllString(cleaned, ".")
	cleaned = trailingBrackRe.ReplaceAllString(cleaned, ".")
	cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
	cleaned = spaceDotRe.ReplaceAllString(cleaned, ".")
	cleaned = multiDotRe.ReplaceAllString(cleaned, ".")
	cleaned = spaceCloseRe.ReplaceAllString(cleaned, ")")
	cleaned = openSpaceRe.ReplaceAllString(cleaned, "(")
	return strings.TrimSpace(cleaned)
}
