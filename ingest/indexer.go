package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/contexture-ai/contexture"
)

// Indexer provides end-to-end indexing: chunk → embed → encode → store.
// Chunks are processed one at a time with a context check between them, so a
// long document never monopolizes a shared model runtime and cancellation
// takes effect promptly. Each chunk insert is atomic; a concurrent search
// sees either the old index or the fully written chunk.
type Indexer struct {
	index    contexture.Index
	embedder contexture.Embedder
	sparse   *contexture.SparseEncoder
	chunker  *HierarchicalChunker
	logger   *slog.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithChunker replaces the default hierarchical chunker.
func WithChunker(c *HierarchicalChunker) IndexerOption {
	return func(ix *Indexer) { ix.chunker = c }
}

// WithSparseEncoder replaces the default sparse encoder. Queries must use
// the same encoder configuration.
func WithSparseEncoder(e *contexture.SparseEncoder) IndexerOption {
	return func(ix *Indexer) { ix.sparse = e }
}

// WithIndexerLogger sets a structured logger.
func WithIndexerLogger(l *slog.Logger) IndexerOption {
	return func(ix *Indexer) { ix.logger = l }
}

// NewIndexer creates an Indexer with default chunking and sparse encoding.
func NewIndexer(index contexture.Index, embedder contexture.Embedder, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		index:    index,
		embedder: embedder,
		sparse:   contexture.NewSparseEncoder(),
		chunker:  NewHierarchicalChunker(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// IndexDocument chunks, embeds, and stores one document, returning the
// number of chunks written. The dense vector embeds the small content (the
// precision signal), the sparse vector encodes the parent content (the
// recall signal), and each small-span sentence is embedded individually for
// the agent's sentence-level tools.
func (ix *Indexer) IndexDocument(ctx context.Context, text string, metadata map[string]string) (int, error) {
	start := time.Now()
	pairs := ix.chunker.Split(text)
	if len(pairs) == 0 {
		return 0, nil
	}

	doc := contexture.Document{
		ID:        contexture.NewID(),
		Title:     metadata["title"],
		Source:    metadata["source"],
		Content:   text,
		Metadata:  metadata,
		CreatedAt: contexture.NowUnix(),
	}
	if err := ix.index.InsertDocument(ctx, doc); err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}

	for i, pair := range pairs {
		// Cooperative yield between chunks.
		if err := ctx.Err(); err != nil {
			return i, err
		}

		texts := make([]string, 0, len(pair.Sentences)+1)
		texts = append(texts, pair.Small)
		texts = append(texts, pair.Sentences...)

		embs, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return i, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		if len(embs) != len(texts) {
			return i, fmt.Errorf("embed chunk %d: got %d vectors for %d texts", i, len(embs), len(texts))
		}

		chunk := contexture.Chunk{
			ID:         contexture.NewID(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Small:      pair.Small,
			Content:    pair.Parent,
			Dense:      embs[0],
			Sparse:     ix.sparse.Encode(pair.Parent),
			Metadata:   metadata,
		}
		sentences := make([]contexture.Sentence, len(pair.Sentences))
		for j, s := range pair.Sentences {
			sentences[j] = contexture.Sentence{
				ID:        contexture.NewID(),
				ChunkID:   chunk.ID,
				Content:   s,
				Embedding: embs[j+1],
			}
		}

		if err := ix.index.InsertChunk(ctx, chunk, sentences); err != nil {
			return i, fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	ix.logger.Debug("ingest: document indexed",
		"doc_id", doc.ID, "chunks", len(pairs), "duration", time.Since(start))
	return len(pairs), nil
}
