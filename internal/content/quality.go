package content

import (
	"regexp"
	"strings"

	"github.com/corvidlabs/helmsman/internal/types"
)

// meaningfulPatterns are topical-vocabulary hints that nudge the quality
// score up when present; a page of nav chrome and boilerplate won't match
// any of these, while an article or report almost always will.
var meaningfulPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(article|news|report|analysis|study|research|data|information)\b`),
	regexp.MustCompile(`(?i)\b(company|business|market|stock|investment|finance)\b`),
	regexp.MustCompile(`(?i)\b(price|value|growth|revenue|profit|earnings)\b`),
}

// Quality scores extracted text on a 0-1 scale combining length, word
// density, vocabulary diversity, and topical-content signals, and flags
// whether the text clears the bar for "worth keeping".
func Quality(text string) types.QualityMetrics {
	if text == "" {
		return types.QualityMetrics{}
	}

	words := strings.Fields(text)
	wordCount := len(words)
	lineCount := len(strings.Split(text, "\n"))
	charCount := len([]rune(text))

	var score float64
	switch {
	case charCount > 500:
		score += 0.3
	case charCount > 100:
		score += 0.1
	}

	switch {
	case wordCount > 50:
		score += 0.2
	case wordCount > 10:
		score += 0.1
	}

	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[strings.ToLower(w)] = struct{}{}
	}
	switch {
	case len(unique) > 20:
		score += 0.2
	case len(unique) > 5:
		score += 0.1
	}

	capped := text
	if len(capped) > maxTextLenForRegex {
		capped = capped[:maxTextLenForRegex]
	}
	for _, p := range meaningfulPatterns {
		if p.MatchString(capped) {
			score += 0.3
			break
		}
	}

	if score > 1.0 {
		score = 1.0
	}

	meaningful := charCount > 100 && wordCount > 10 && score > 0.3

	return types.QualityMetrics{
		WordCount:  wordCount,
		LineCount:  lineCount,
		CharCount:  charCount,
		Score:      score,
		Meaningful: meaningful,
	}
}
