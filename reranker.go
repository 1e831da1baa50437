package contexture

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Reranker re-scores search results for improved precision. The returned
// slice must be sorted by RerankScore descending and trimmed to topK.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []SearchResult, topK int) ([]SearchResult, error)
}

// CrossEncoderReranker scores each (query, document) pair jointly: a
// deterministic lexical boost on the fused base score, then a short model
// probe interpreted as a crude but monotone cross-encoder. A model failure
// on one document zeroes that document only; the batch continues.
type CrossEncoderReranker struct {
	generator Generator
	maxTopK   int
	logger    *slog.Logger
}

var _ Reranker = (*CrossEncoderReranker)(nil)

// RerankerOption configures a CrossEncoderReranker.
type RerankerOption func(*CrossEncoderReranker)

// WithRerankerMaxTopK caps how many candidates are sent to the model per
// call regardless of the requested topK. Default 10.
func WithRerankerMaxTopK(n int) RerankerOption {
	return func(r *CrossEncoderReranker) { r.maxTopK = n }
}

// WithRerankerLogger sets a structured logger.
func WithRerankerLogger(l *slog.Logger) RerankerOption {
	return func(r *CrossEncoderReranker) { r.logger = l }
}

// NewCrossEncoderReranker creates a reranker over the generator.
func NewCrossEncoderReranker(generator Generator, opts ...RerankerOption) *CrossEncoderReranker {
	r := &CrossEncoderReranker{generator: generator, maxTopK: 10, logger: nopLogger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Rerank scores the top candidates and returns them sorted by RerankScore
// descending.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, results []SearchResult, topK int) ([]SearchResult, error) {
	if topK <= 0 || topK > r.maxTopK {
		topK = r.maxTopK
	}
	if len(results) > topK {
		results = results[:topK]
	}

	out := make([]SearchResult, len(results))
	copy(out, results)

	for i := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		base := out[i].Score * lexicalBoost(query, out[i].Content)

		modelScore, err := r.probe(ctx, query, out[i].Content)
		if err != nil {
			r.logger.Warn("reranker: model probe failed, zeroing document", "id", out[i].ID, "error", err)
			out[i].RerankScore = 0
			continue
		}
		out[i].RerankScore = base * modelScore
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return out, nil
}

// probe asks the model for a relevance verdict and maps the short
// continuation to a score: affirmative → 1.0, anything else → 0.05.
func (r *CrossEncoderReranker) probe(ctx context.Context, query, doc string) (float64, error) {
	prompt := fmt.Sprintf("Query: %s Document: %s Relevant:", query, doc)
	resp, err := r.generator.Generate(ctx, prompt, GenerateOptions{
		MaxNewTokens: 8,
		Temperature:  0,
	})
	if err != nil {
		return 0, err
	}
	verdict := strings.ToLower(resp)
	if strings.Contains(verdict, "true") || strings.Contains(verdict, "yes") {
		return 1.0, nil
	}
	return 0.05, nil
}

// lexicalBoost is the deterministic tie-break: a full case-insensitive
// phrase match doubles the score; otherwise each matched query word longer
// than three characters contributes proportionally, up to ×1.5.
func lexicalBoost(query, content string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	c := strings.ToLower(content)
	if q == "" {
		return 1.0
	}
	if strings.Contains(c, q) {
		return 2.0
	}

	words := strings.Fields(q)
	if len(words) == 0 {
		return 1.0
	}
	matched := 0
	for _, w := range words {
		if len([]rune(w)) > 3 && strings.Contains(c, w) {
			matched++
		}
	}
	if matched == 0 {
		return 1.0
	}
	return 1 + (float64(matched)/float64(len(words)))*0.5
}
