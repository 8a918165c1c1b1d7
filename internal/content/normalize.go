// Package content implements the pure text-processing stage that runs after
// a page's text has been pulled out of the browser: cleaning, quality
// scoring, CAPTCHA-content heuristics, structured extraction, deduplication,
// type detection, and semantic chunking. Nothing in this package touches a
// live page; callers that need DOM access (CAPTCHA element probing) pass in
// a small callback instead of a *rod.Page, so these functions stay bare Go
// and easy to test in isolation.
package content

import (
	"regexp"
	"strings"
)

// maxTextLenForRegex bounds how much of a document the regex-based stages
// below will scan. Like internal/ratelimit's (smaller) body cap, long documents get
// truncated before matching rather than handed whole to a pattern, since a
// few KB is enough to answer every question these patterns ask.
const maxTextLenForRegex = 200 * 1024

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	reNavWords   = regexp.MustCompile(`(?i)\b(Home|Login|Sign Up|Menu|Search|More|Categories|Topics|Latest|Hot)\b`)
	reFooter     = regexp.MustCompile(`(?im)\b(©|Copyright|All rights reserved|Privacy Policy|Terms of Service)\b[^\n]{0,500}`)
	reEllipsis   = regexp.MustCompile(`\.{3,}`)
	reSpaceBeforePunct = regexp.MustCompile(`\s+([.!?])`)
)

// Normalize cleans raw extracted text: collapses whitespace, strips common
// navigation chrome and footer boilerplate, tidies punctuation, and drops
// empty lines. It is the Go equivalent of a JS-in-page cleanup pass, done
// here instead so it works uniformly across every ExtractType.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	capped := text
	if len(capped) > maxTextLenForRegex {
		capped = capped[:maxTextLenForRegex]
	}

	out := reWhitespace.ReplaceAllString(capped, " ")
	out = reNavWords.ReplaceAllString(out, "")
	out = reFooter.ReplaceAllString(out, "")
	out = reEllipsis.ReplaceAllString(out, "...")
	out = reSpaceBeforePunct.ReplaceAllString(out, "$1")

	return joinNonEmptyLines(out)
}

func joinNonEmptyLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// normalizeForHash lowercases and collapses whitespace, matching the
// deduplicator's definition of "the same content" regardless of case or
// incidental spacing differences between two fetches of the same page.
func normalizeForHash(text string) string {
	capped := text
	if len(capped) > maxTextLenForRegex {
		capped = capped[:maxTextLenForRegex]
	}
	return reWhitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(capped)), " ")
}
