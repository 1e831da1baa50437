package contexture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Stage identifies a pipeline state for progress reporting.
type Stage string

const (
	StageClassify Stage = "classify"
	StageHyde     Stage = "hyde"
	StageEmbed    Stage = "embed"
	StageSearch   Stage = "search"
	StageRerank   Stage = "rerank"
	StageRepack   Stage = "repack"
	StageCompress Stage = "compress"
)

// Progress receives each pipeline stage as it starts. A nil Progress is
// ignored.
type Progress func(stage Stage)

// Answer modes.
const (
	ModeDirect = "direct"
	ModeRAG    = "rag"
)

// Source identifies one chunk that contributed to the answer context.
type Source struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Answer is the pipeline's terminal output. Mode "direct" carries no
// context; mode "rag" carries the compressed context and its sources. An
// empty Context in rag mode means retrieval found nothing above threshold —
// the caller should fall back to unaugmented generation.
type Answer struct {
	Mode    string   `json:"mode"`
	Context string   `json:"context,omitempty"`
	Sources []Source `json:"sources,omitempty"`
}

// Pipeline sequences classification, HyDE expansion, hybrid search,
// reranking, repacking, and compression into one query-answering flow.
// Transitions are linear: once retrieval is chosen there is no branching.
type Pipeline struct {
	index      Index
	embedder   Embedder
	generator  Generator
	classifier *QueryClassifier
	hyde       *Hyde
	reranker   Reranker
	compressor *Compressor
	sparse     *SparseEncoder
	topK       int
	rerankTopK int
	logger     *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithTopK sets the retrieval breadth (candidates fetched from the index).
// Default 20.
func WithTopK(n int) PipelineOption {
	return func(p *Pipeline) { p.topK = n }
}

// WithRerankTopK sets how many candidates are reranked. Default 10.
func WithRerankTopK(n int) PipelineOption {
	return func(p *Pipeline) { p.rerankTopK = n }
}

// WithClassifier injects a custom classifier. By default one is built over
// the pipeline's embedder.
func WithClassifier(c *QueryClassifier) PipelineOption {
	return func(p *Pipeline) { p.classifier = c }
}

// WithHyde injects a custom HyDE expander.
func WithHyde(h *Hyde) PipelineOption {
	return func(p *Pipeline) { p.hyde = h }
}

// WithPipelineReranker injects a custom reranker.
func WithPipelineReranker(r Reranker) PipelineOption {
	return func(p *Pipeline) { p.reranker = r }
}

// WithCompressor injects a custom compressor.
func WithCompressor(c *Compressor) PipelineOption {
	return func(p *Pipeline) { p.compressor = c }
}

// WithSparseEncoder injects a custom sparse encoder. Must match the encoder
// used at indexing time or sparse scores are meaningless.
func WithSparseEncoder(e *SparseEncoder) PipelineOption {
	return func(p *Pipeline) { p.sparse = e }
}

// WithPipelineLogger sets a structured logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline wires a pipeline over an index and externally supplied models.
// All stage components default to the standard implementations and can be
// replaced via options.
func NewPipeline(index Index, embedder Embedder, generator Generator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		index:      index,
		embedder:   embedder,
		generator:  generator,
		topK:       20,
		rerankTopK: 10,
		logger:     nopLogger,
	}
	for _, o := range opts {
		o(p)
	}
	if p.classifier == nil {
		p.classifier = NewQueryClassifier(embedder, WithClassifierLogger(p.logger))
	}
	if p.hyde == nil {
		p.hyde = NewHyde(generator, WithHydeLogger(p.logger))
	}
	if p.reranker == nil {
		p.reranker = NewCrossEncoderReranker(generator,
			WithRerankerMaxTopK(p.rerankTopK), WithRerankerLogger(p.logger))
	}
	if p.compressor == nil {
		p.compressor = NewCompressor(generator, WithCompressorLogger(p.logger))
	}
	if p.sparse == nil {
		p.sparse = NewSparseEncoder()
	}
	return p
}

// Run answers one query. Each external model call is a suspension point and
// checks ctx. Store failures degrade to an empty retrieval; only model
// unavailability is fatal.
func (p *Pipeline) Run(ctx context.Context, query string, progress Progress) (Answer, error) {
	start := time.Now()
	report := func(s Stage) {
		if progress != nil {
			progress(s)
		}
	}

	report(StageClassify)
	if !p.classifier.IsRetrievalNeeded(ctx, query) {
		p.logger.Debug("pipeline: direct mode", "query", query, "duration", time.Since(start))
		return Answer{Mode: ModeDirect}, nil
	}

	report(StageHyde)
	hypothetical, err := p.hyde.Expand(ctx, query)
	if err != nil {
		return Answer{}, err
	}

	report(StageEmbed)
	embs, err := p.embedder.Embed(ctx, []string{hypothetical})
	if err != nil {
		return Answer{}, fmt.Errorf("embed query: %w", err)
	}
	if len(embs) == 0 {
		return Answer{}, fmt.Errorf("embed query: %w", ErrModelUnavailable)
	}
	// The hypothetical answer drives the dense half; the raw query keeps
	// the sparse half so keyword intent survives expansion.
	sparseQuery := p.sparse.Encode(query)

	report(StageSearch)
	results, err := p.index.SearchHybrid(ctx, embs[0], sparseQuery, p.topK)
	if err != nil {
		var serr *StoreError
		if errors.As(err, &serr) {
			p.logger.Error("pipeline: index backend failed, degrading to empty retrieval", "backend", serr.Backend, "error", serr.Err)
			return Answer{Mode: ModeRAG}, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Answer{}, err
		}
		p.logger.Error("pipeline: search failed, degrading to empty retrieval", "error", err)
		return Answer{Mode: ModeRAG}, nil
	}
	if len(results) == 0 {
		p.logger.Debug("pipeline: empty retrieval", "query", query)
		return Answer{Mode: ModeRAG}, nil
	}
	results = p.applyBoosts(ctx, results)

	report(StageRerank)
	results, err = p.reranker.Rerank(ctx, query, results, p.rerankTopK)
	if err != nil {
		return Answer{}, fmt.Errorf("rerank: %w", err)
	}

	report(StageRepack)
	results = ReverseRepack(results)

	report(StageCompress)
	var ctxBuilder strings.Builder
	sources := make([]Source, 0, len(results))
	for i, r := range results {
		if i > 0 {
			ctxBuilder.WriteString("\n\n")
		}
		ctxBuilder.WriteString(r.Content)
		sources = append(sources, Source{ID: r.ID, Metadata: r.Metadata})
	}
	compressed := p.compressor.Compress(ctx, ctxBuilder.String(), query)

	p.logger.Debug("pipeline: rag answer", "query", query, "sources", len(sources), "duration", time.Since(start))
	return Answer{Mode: ModeRAG, Context: compressed, Sources: sources}, nil
}

// applyBoosts folds user relevance feedback into the fused scores and
// re-sorts. Absence of the FeedbackStore capability, or a lookup failure,
// leaves the ranking untouched.
func (p *Pipeline) applyBoosts(ctx context.Context, results []SearchResult) []SearchResult {
	fs, ok := p.index.(FeedbackStore)
	if !ok {
		return results
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	boosts, err := fs.GetBoosts(ctx, ids)
	if err != nil || len(boosts) == 0 {
		return results
	}
	for i := range results {
		if b, ok := boosts[results[i].ID]; ok {
			results[i].Score *= b
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}
