package content

import (
	"regexp"
	"sort"
	"strings"

	"github.com/corvidlabs/helmsman/internal/types"
)

// boundaryKind names one of the structural patterns chunk boundaries are
// drawn from. Kept distinct from types.ContentKind (the document-level
// classification) since a single document mixes several boundary kinds.
type boundaryKind string

const (
	boundaryParagraph boundaryKind = "paragraph"
	boundarySentence  boundaryKind = "sentence"
	boundaryHeading   boundaryKind = "heading"
	boundaryListItem  boundaryKind = "list_item"
	boundaryQuote     boundaryKind = "quote"
)

// chunkingPatterns locates each boundary kind. Bounded repetition
// (`{0,N}` instead of bare `*`/`+`) throughout, matching internal/
// ratelimit/detector.go's ReDoS-safe style.
var chunkingPatterns = map[boundaryKind]*regexp.Regexp{
	boundaryParagraph: regexp.MustCompile(`\n\s{0,20}\n`),
	boundarySentence:  regexp.MustCompile(`[.!?]{1,5}\s{1,10}`),
	boundaryHeading:   regexp.MustCompile(`\n\s{0,20}#{1,6}\s{1,10}`),
	boundaryListItem:  regexp.MustCompile(`\n\s{0,20}[-*•]\s{1,10}`),
	boundaryQuote:     regexp.MustCompile(`\n\s{0,20}>\s{1,10}`),
}

// chunkRules are a content kind's sizing and boundary preferences, ported
// from the source chunker's CONTENT_TYPE_RULES table.
type chunkRules struct {
	minSize             int
	maxSize             int
	preferredBoundaries []boundaryKind
	preserveStructure   bool
}

var contentTypeChunkRules = map[types.ContentKind]chunkRules{
	types.KindNews: {
		minSize: 100, maxSize: 1000,
		preferredBoundaries: []boundaryKind{boundaryParagraph, boundarySentence},
		preserveStructure:   true,
	},
	types.KindForum: {
		minSize: 50, maxSize: 500,
		preferredBoundaries: []boundaryKind{boundaryParagraph, boundaryListItem},
		preserveStructure:   true,
	},
	types.KindFinancial: {
		minSize: 200, maxSize: 800,
		preferredBoundaries: []boundaryKind{boundaryParagraph, boundarySentence},
		preserveStructure:   true,
	},
	types.KindBlog: {
		minSize: 150, maxSize: 1200,
		preferredBoundaries: []boundaryKind{boundaryParagraph, boundaryHeading},
		preserveStructure:   true,
	},
	types.KindGeneral: {
		minSize: 100, maxSize: 1000,
		preferredBoundaries: []boundaryKind{boundaryParagraph, boundarySentence},
		preserveStructure:   false,
	},
}

type boundary struct {
	pos        int
	kind       boundaryKind
	confidence float64
}

// ChunkContent splits content along semantic boundaries appropriate to
// kind, dropping boundaries below confidenceThreshold and re-splitting any
// resulting chunk that exceeds the kind's max chunk size. Unknown kinds
// fall back to the general rule set. Quote and bullet boundaries outside a
// kind's preferred list are simply never looked for, not rejected.
func ChunkContent(content string, kind types.ContentKind, confidenceThreshold float64) []types.Chunk {
	if content == "" {
		return nil
	}

	rules, ok := contentTypeChunkRules[kind]
	if !ok {
		rules = contentTypeChunkRules[types.KindGeneral]
	}

	boundaries := findBoundaries(content, rules)
	return buildChunks(content, boundaries, rules, confidenceThreshold)
}

func findBoundaries(content string, rules chunkRules) []boundary {
	var boundaries []boundary
	for _, kind := range rules.preferredBoundaries {
		pattern, ok := chunkingPatterns[kind]
		if !ok {
			continue
		}
		for _, loc := range pattern.FindAllStringIndex(content, -1) {
			start := loc[0]
			boundaries = append(boundaries, boundary{
				pos:        start,
				kind:       kind,
				confidence: boundaryConfidence(content, start, kind),
			})
		}
	}

	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].pos < boundaries[j].pos })
	return boundaries
}

var reSentencePunct = regexp.MustCompile(`[.!?]`)

func boundaryConfidence(content string, position int, kind boundaryKind) float64 {
	confidence := 0.5

	switch kind {
	case boundaryParagraph:
		confidence += 0.3
	case boundarySentence:
		confidence += 0.2
	case boundaryHeading:
		confidence += 0.4
	}

	contextStart := position - 50
	if contextStart < 0 {
		contextStart = 0
	}
	contextEnd := position + 50
	if contextEnd > len(content) {
		contextEnd = len(content)
	}
	context := content[contextStart:contextEnd]

	wordsBefore := len(strings.Fields(content[:position]))
	wordsAfter := len(strings.Fields(content[position:]))
	if wordsBefore > 10 && wordsAfter > 10 {
		confidence += 0.1
	}

	if reSentencePunct.MatchString(context) {
		confidence += 0.1
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func buildChunks(content string, boundaries []boundary, rules chunkRules, confidenceThreshold float64) []types.Chunk {
	var chunks []types.Chunk
	start := 0

	for _, b := range boundaries {
		if b.confidence < confidenceThreshold {
			continue
		}

		chunkText := strings.TrimSpace(content[start:b.pos])
		if len(chunkText) < rules.minSize {
			continue
		}

		if len(chunkText) > rules.maxSize {
			chunks = append(chunks, splitLargeChunk(chunkText, start, rules)...)
		} else {
			chunks = append(chunks, newChunk(chunkText, string(b.kind), start, b.pos, b.confidence, rules.preserveStructure))
		}

		start = b.pos
	}

	if start < len(content) {
		remaining := strings.TrimSpace(content[start:])
		if len(remaining) >= rules.minSize {
			chunks = append(chunks, newChunk(remaining, "remaining", start, len(content), 0.5, rules.preserveStructure))
		}
	}

	return chunks
}

// splitLargeChunk breaks an oversized chunk into maxSize-bounded pieces,
// preferring to end each piece on a sentence boundary within the back half
// of its window rather than cutting mid-sentence.
func splitLargeChunk(text string, startIndex int, rules chunkRules) []types.Chunk {
	var chunks []types.Chunk
	current := 0

	for current < len(text) {
		end := current + rules.maxSize
		if end > len(text) {
			end = len(text)
		}

		best := end
		floor := current + rules.maxSize/2
		for i := end - 1; i > floor && i < len(text); i-- {
			if text[i] == '.' || text[i] == '!' || text[i] == '?' {
				best = i + 1
				break
			}
		}

		piece := strings.TrimSpace(text[current:best])
		if len(piece) >= rules.minSize {
			chunk := newChunk(piece, "split", startIndex+current, startIndex+best, 0.6, rules.preserveStructure)
			chunks = append(chunks, chunk)
		}

		current = best
	}

	return chunks
}

func newChunk(text, chunkType string, start, end int, confidence float64, preserveStructure bool) types.Chunk {
	return types.Chunk{
		Content:           text,
		ChunkType:         chunkType,
		StartIndex:        start,
		EndIndex:          end,
		Confidence:        confidence,
		Size:              len(text),
		WordCount:         len(strings.Fields(text)),
		PreserveStructure: preserveStructure,
	}
}
