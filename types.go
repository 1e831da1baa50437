package contexture

// --- Domain types (database records) ---

// Document is a unit of ingested text. Chunks and sentences belong to exactly
// one document and are deleted with it.
type Document struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Source    string            `json:"source"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt int64             `json:"created_at"`
}

// Chunk is one indexed entity: a small sentence run plus its context-expanded
// parent span. Dense and Sparse are the retrieval vectors; Content (the
// parent) is what gets served to the generator, Small is what was embedded.
// The sentence span of Content always contains the sentence span of Small.
type Chunk struct {
	ID         string             `json:"id"`
	DocumentID string             `json:"document_id"`
	ChunkIndex int                `json:"chunk_index"`
	Small      string             `json:"small_content"`
	Content    string             `json:"content"`
	Dense      []float32          `json:"-"`
	Sparse     map[uint32]float32 `json:"-"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
}

// Sentence is a single sentence of a chunk's small span, embedded
// individually. The agent's fine-grained semantic and keyword tools operate
// on sentences rather than whole chunks.
type Sentence struct {
	ID        string    `json:"id"`
	ChunkID   string    `json:"chunk_id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
}

// SearchResult is a scored hit from hybrid search. Score is the fused
// dense+sparse score in [0, 1] (or exactly 0); RerankScore is set by the
// reranker and is zero until then.
type SearchResult struct {
	ID           string            `json:"id"`
	Score        float64           `json:"score"`
	Content      string            `json:"content"`
	SmallContent string            `json:"small_content"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RerankScore  float64           `json:"rerank_score,omitempty"`
}

// Vote is a user relevance judgement on a chunk.
type Vote string

const (
	VoteUp   Vote = "up"
	VoteDown Vote = "down"
)

// RelevanceBoost is the accumulated voting state for one chunk. Boost is a
// multiplicative ranking bias clamped to [MinBoost, MaxBoost]. Boosts are
// created by the first vote, never by indexing, and are deleted when the
// owning chunk's document is deleted.
type RelevanceBoost struct {
	ChunkID     string  `json:"chunk_id"`
	Boost       float64 `json:"boost"`
	Votes       int     `json:"votes"`
	LastVote    Vote    `json:"last_vote"`
	LastUpdated int64   `json:"last_updated"`
}
