package contexture

import "context"

// Index abstracts vector storage with hybrid dense+sparse search. Two
// backends ship with the module — store/sqlite (local embedded) and
// store/postgres (remote service) — and both honor the identical fusion
// semantics of HybridScore, so callers are backend-agnostic.
//
// Inserts are atomic per chunk: a concurrent reader sees either the old
// state or the fully written chunk, never a partial one.
type Index interface {
	// Init creates the backing schema.
	Init(ctx context.Context) error

	// InsertDocument stores the document record. Chunks are inserted
	// separately, one at a time, by InsertChunk.
	InsertDocument(ctx context.Context, doc Document) error

	// InsertChunk atomically stores one chunk together with its sentences.
	InsertChunk(ctx context.Context, chunk Chunk, sentences []Sentence) error

	// SearchHybrid scores every indexed chunk against the dense and sparse
	// query vectors using HybridScore, drops scores at or below the fusion
	// threshold, and returns the best `limit` results sorted descending.
	SearchHybrid(ctx context.Context, dense []float32, sparse map[uint32]float32, limit int) ([]SearchResult, error)

	// GetChunks returns the chunks with the given IDs, without vectors.
	GetChunks(ctx context.Context, ids []string) ([]Chunk, error)

	// ListDocuments returns all documents, newest first.
	ListDocuments(ctx context.Context) ([]Document, error)

	// DeleteDocument removes a document and cascades to its chunks,
	// sentences, and relevance boosts.
	DeleteDocument(ctx context.Context, id string) error

	Close() error
}

// SentenceSearcher is an optional Index capability for sentence-level
// semantic search. The agent's semantic_search tool discovers it via type
// assertion.
type SentenceSearcher interface {
	// AllSentences returns every indexed sentence with its embedding.
	AllSentences(ctx context.Context) ([]Sentence, error)
}

// KeywordScanner is an optional Index capability exposing the raw chunk text
// for keyword scoring. The agent's keyword_search tool discovers it via type
// assertion.
type KeywordScanner interface {
	// ScanChunks returns every chunk without vectors.
	ScanChunks(ctx context.Context) ([]Chunk, error)
}

// FeedbackStore is an optional Index capability holding per-chunk relevance
// boosts. Votes come from a consuming UI, never from the engine itself.
// Updates are read-modify-write without synchronization: last writer wins,
// acceptable because boosts are soft signals.
type FeedbackStore interface {
	// UpdateChunkRelevance applies one vote and returns the new state.
	// The boost record is created on the first vote.
	UpdateChunkRelevance(ctx context.Context, chunkID string, vote Vote) (RelevanceBoost, error)

	// GetBoosts returns the boost factor for each listed chunk that has
	// one; chunks never voted on are absent from the map.
	GetBoosts(ctx context.Context, chunkIDs []string) (map[string]float64, error)
}
