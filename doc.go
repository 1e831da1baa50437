// Package contexture is a hybrid retrieval-and-reasoning engine for locally
// indexed document collections.
//
// It turns a user query into a ranked, compressed, citation-bearing context
// string — or a decision that no retrieval is needed at all. Indexing uses
// hierarchical small-to-big chunking; retrieval fuses dense (embedding) and
// sparse (hashing-trick) similarity, re-ranks with a cross-encoder-style
// model probe, repacks against positional bias, and compresses the result.
//
// # Quick Start
//
//	client := openaicompat.NewClient(apiKey, baseURL)
//	emb := openaicompat.NewEmbedding(client, embedModel, dims)
//	gen := openaicompat.NewGeneration(client, chatModel)
//	idx := sqlite.New("contexture.db")
//	_ = idx.Init(ctx)
//
//	indexer := ingest.NewIndexer(idx, emb)
//	_, _ = indexer.IndexDocument(ctx, text, map[string]string{"title": "notes"})
//
//	pipe := contexture.NewPipeline(idx, emb, gen)
//	answer, _ := pipe.Run(ctx, "What is Inled Group?", nil)
//
// # Core Interfaces
//
// The root package defines the contracts all components implement:
//
//   - [Embedder] — text-to-vector embedding, supplied externally
//   - [Generator] — text generation, supplied externally
//   - [Index] — vector storage with hybrid search (store/sqlite, store/postgres)
//   - [FeedbackStore], [SentenceSearcher], [KeywordScanner] — optional Index
//     capabilities discovered by type assertion
//
// # Two Consumers
//
// [Pipeline] runs the fixed classify → expand → search → rerank → repack →
// compress flow. [Agent] reasons iteratively over the same index through
// keyword_search, semantic_search and chunk_read tool calls instead.
package contexture
