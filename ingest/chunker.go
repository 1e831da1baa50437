// Package ingest turns raw text into indexed entities: hierarchical
// small-to-big chunking, sentence records for the agent's fine-grained
// tools, and cooperative embed-and-store indexing.
//
// Text extraction (PDF, HTML, markdown) is not this package's job — an
// external ingestion pipeline hands over plain text.
package ingest

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default token budgets for the two chunk granularities. Tokens are
// approximated as whitespace-separated words.
const (
	DefaultSmallChunkSize  = 175
	DefaultParentChunkSize = 512
)

// ChunkPair couples a small, precision-friendly sentence run with its
// context-expanded parent span. The parent's sentence span always contains
// the small's. Sentences holds the small span's individual sentences.
type ChunkPair struct {
	Small     string
	Parent    string
	Sentences []string
}

// HierarchicalChunker implements small-to-big chunking: sentence-bounded
// small units for matching, symmetric window-expanded parents for serving.
type HierarchicalChunker struct {
	smallSize  int
	parentSize int
}

// ChunkerOption configures a HierarchicalChunker.
type ChunkerOption func(*HierarchicalChunker)

// WithSmallChunkSize sets the small chunk token budget. Default 175.
func WithSmallChunkSize(n int) ChunkerOption {
	return func(c *HierarchicalChunker) { c.smallSize = n }
}

// WithParentChunkSize sets the parent chunk token budget. Default 512.
func WithParentChunkSize(n int) ChunkerOption {
	return func(c *HierarchicalChunker) { c.parentSize = n }
}

// NewHierarchicalChunker creates a chunker with the given options.
func NewHierarchicalChunker(opts ...ChunkerOption) *HierarchicalChunker {
	c := &HierarchicalChunker{
		smallSize:  DefaultSmallChunkSize,
		parentSize: DefaultParentChunkSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var sentenceDelim = regexp.MustCompile(`[.!?]+`)

// SplitSentences tokenizes text into sentences on runs of [.!?] followed by
// whitespace (or end of text), re-attaching the delimiter to the preceding
// sentence so punctuation is never dropped. Text without any delimiter is a
// single sentence.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	start := 0
	for _, m := range sentenceDelim.FindAllStringIndex(text, -1) {
		end := m[1]
		if end < len(text) {
			r, _ := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(r) {
				continue // delimiter inside a token (e.g. "3.14"), not a boundary
			}
		}
		s := strings.TrimSpace(text[start:end])
		if s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// approxTokens estimates token count as whitespace-separated words.
func approxTokens(s string) int {
	return len(strings.Fields(s))
}

// Split chunks text into small/parent pairs. Consecutive sentences
// accumulate into a small chunk until the next one would exceed the small
// budget; a single sentence longer than the budget still forms its own chunk
// — sentences are never split. Each parent then grows outward from its small
// span one sentence at a time, alternating left and right, admitting a
// neighbor only while the parent budget holds.
func (c *HierarchicalChunker) Split(text string) []ChunkPair {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	tokens := make([]int, len(sentences))
	for i, s := range sentences {
		tokens[i] = approxTokens(s)
	}

	// Group sentences into small spans [start, end).
	type span struct{ start, end, tokens int }
	var smalls []span
	cur := span{start: 0}
	for i := range sentences {
		if cur.end > cur.start && cur.tokens+tokens[i] > c.smallSize {
			smalls = append(smalls, cur)
			cur = span{start: i}
		}
		cur.end = i + 1
		cur.tokens += tokens[i]
	}
	smalls = append(smalls, cur)

	pairs := make([]ChunkPair, 0, len(smalls))
	for _, sm := range smalls {
		left, right := sm.start-1, sm.end
		total := sm.tokens
		leftOpen, rightOpen := left >= 0, right < len(sentences)
		takeLeft := true

		for leftOpen || rightOpen {
			if takeLeft && leftOpen {
				if total+tokens[left] <= c.parentSize {
					total += tokens[left]
					left--
					leftOpen = left >= 0
				} else {
					leftOpen = false
				}
			} else if rightOpen {
				if total+tokens[right] <= c.parentSize {
					total += tokens[right]
					right++
					rightOpen = right < len(sentences)
				} else {
					rightOpen = false
				}
			}
			takeLeft = !takeLeft
		}

		pairs = append(pairs, ChunkPair{
			Small:     strings.Join(sentences[sm.start:sm.end], " "),
			Parent:    strings.Join(sentences[left+1:right], " "),
			Sentences: sentences[sm.start:sm.end],
		})
	}
	return pairs
}
