package content

import (
	"regexp"
	"strings"

	"github.com/corvidlabs/helmsman/internal/types"
)

// ForumElements is the structured payload for types.KindForum.
type ForumElements struct {
	Topics []string `json:"topics"`
	Users  []string `json:"users"`
}

// NewsElements is the structured payload for types.KindNews.
type NewsElements struct {
	Headlines []string `json:"headlines"`
	Dates     []string `json:"dates"`
}

// FinancialElements is the structured payload for types.KindFinancial.
type FinancialElements struct {
	StockSymbols []string `json:"stock_symbols"`
	Prices       []string `json:"prices"`
	Percentages  []string `json:"percentages"`
}

var (
	reTopicLine = regexp.MustCompile(`(?m)^([A-Z][^\n]{0,300})$`)
	reUserMention = regexp.MustCompile(`@([a-zA-Z0-9_]+)`)
	reDate       = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b|\b\w+ \d{1,2}, \d{4}\b`)
	reStockSymbol = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
	rePrice       = regexp.MustCompile(`\$\d+\.?\d*|\d+\.?\d*\s{0,3}(?:USD|INR|Rs)`)
	rePercentage  = regexp.MustCompile(`\d+\.?\d*%`)
)

// StructuredExtract pulls kind-specific elements out of already-normalized
// text. It returns nil for kinds with no structured extraction defined
// (general, ecommerce, blog), matching the source system's "only forum,
// news, and financial have dedicated extractors" scope.
func StructuredExtract(text string, kind types.ContentKind) interface{} {
	if text == "" {
		return nil
	}

	capped := text
	if len(capped) > maxTextLenForRegex {
		capped = capped[:maxTextLenForRegex]
	}

	switch kind {
	case types.KindForum:
		return extractForum(capped)
	case types.KindNews:
		return extractNews(capped)
	case types.KindFinancial:
		return extractFinancial(capped)
	default:
		return nil
	}
}

func extractForum(text string) ForumElements {
	var topics []string
	for _, m := range reTopicLine.FindAllStringSubmatch(text, -1) {
		topic := strings.TrimSpace(m[1])
		if len(topic) > 10 {
			topics = append(topics, topic)
		}
	}

	userSet := make(map[string]struct{})
	for _, m := range reUserMention.FindAllStringSubmatch(text, -1) {
		userSet[m[1]] = struct{}{}
	}

	return ForumElements{Topics: topics, Users: uniqueKeys(userSet)}
}

func extractNews(text string) NewsElements {
	var headlines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) <= 20 || len(trimmed) >= 200 {
			continue
		}
		if strings.HasPrefix(trimmed, "http") || strings.HasPrefix(trimmed, "www") ||
			strings.HasPrefix(trimmed, "©") || strings.HasPrefix(trimmed, "Copyright") {
			continue
		}
		headlines = append(headlines, trimmed)
		if len(headlines) == 10 {
			break
		}
	}

	dateSet := make(map[string]struct{})
	for _, d := range reDate.FindAllString(text, -1) {
		dateSet[d] = struct{}{}
	}

	return NewsElements{Headlines: headlines, Dates: uniqueKeys(dateSet)}
}

func extractFinancial(text string) FinancialElements {
	symbolSet := make(map[string]struct{})
	for _, s := range reStockSymbol.FindAllString(text, -1) {
		symbolSet[s] = struct{}{}
	}

	priceSet := make(map[string]struct{})
	for _, p := range rePrice.FindAllString(text, -1) {
		priceSet[p] = struct{}{}
	}

	pctSet := make(map[string]struct{})
	for _, p := range rePercentage.FindAllString(text, -1) {
		pctSet[p] = struct{}{}
	}

	return FinancialElements{
		StockSymbols: uniqueKeys(symbolSet),
		Prices:       uniqueKeys(priceSet),
		Percentages:  uniqueKeys(pctSet),
	}
}

func uniqueKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
