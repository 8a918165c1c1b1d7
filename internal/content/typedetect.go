package content

import (
	"regexp"
	"strings"

	"github.com/corvidlabs/helmsman/internal/types"
)

// contentTypePatterns scores vocabulary characteristic of each content kind.
// Each kind's three pattern groups mirror the distinct topical/structural/
// role vocabulary a human would use to recognize the kind at a glance.
var contentTypePatterns = map[types.ContentKind][]*regexp.Regexp{
	types.KindNews: {
		regexp.MustCompile(`(?i)\b(breaking|news|report|article|headline)\b`),
		regexp.MustCompile(`(?i)\b(published|updated|posted)\b`),
		regexp.MustCompile(`(?i)\b(journalist|reporter|correspondent)\b`),
	},
	types.KindForum: {
		regexp.MustCompile(`(?i)\b(post|thread|topic|discussion)\b`),
		regexp.MustCompile(`(?i)\b(reply|comment|user|member)\b`),
		regexp.MustCompile(`(?i)\b(forum|board|community)\b`),
	},
	types.KindFinancial: {
		regexp.MustCompile(`(?i)\b(stock|share|price|market|trading)\b`),
		regexp.MustCompile(`(?i)\b(earnings|revenue|profit|loss)\b`),
		regexp.MustCompile(`(?i)\b(investment|portfolio|dividend)\b`),
	},
	types.KindEcommerce: {
		regexp.MustCompile(`(?i)\b(price|buy|sell|product|shopping)\b`),
		regexp.MustCompile(`(?i)\b(cart|checkout|payment|shipping)\b`),
		regexp.MustCompile(`(?i)\b(review|rating|customer)\b`),
	},
	types.KindBlog: {
		regexp.MustCompile(`(?i)\b(blog|post|author|published)\b`),
		regexp.MustCompile(`(?i)\b(opinion|thoughts|insights)\b`),
		regexp.MustCompile(`(?i)\b(categories|tags|archive)\b`),
	},
}

// contentKindOrder fixes iteration order so that, on an exact score tie
// between two kinds, the result is deterministic rather than map-order
// dependent.
var contentKindOrder = []types.ContentKind{
	types.KindNews, types.KindForum, types.KindFinancial, types.KindEcommerce, types.KindBlog,
}

// DetectType scores text against each kind's vocabulary and returns the
// best match plus a confidence in [0, 1]. Falls back to (general, 0) when
// no pattern matches at all.
func DetectType(text string) (types.ContentKind, float64) {
	if text == "" {
		return types.KindGeneral, 0.0
	}

	capped := text
	if len(capped) > maxTextLenForRegex {
		capped = capped[:maxTextLenForRegex]
	}
	lower := strings.ToLower(capped)

	bestKind := types.KindGeneral
	bestScore := 0
	for _, kind := range contentKindOrder {
		score := 0
		for _, p := range contentTypePatterns[kind] {
			score += len(p.FindAllString(lower, -1))
		}
		if score > bestScore {
			bestScore = score
			bestKind = kind
		}
	}

	if bestScore == 0 {
		return types.KindGeneral, 0.0
	}

	wordCount := len(strings.Fields(capped))
	if wordCount == 0 {
		return bestKind, 0.0
	}

	confidence := float64(bestScore) / (float64(wordCount) / 100.0)
	if confidence > 1.0 {
		confidence = 1.0
	}
	return bestKind, confidence
}
