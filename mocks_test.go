package contexture

import (
	"context"
	"hash/fnv"
	"strings"
)

// mockEmbedder returns deterministic bag-of-words vectors: each lowercased
// word hashes to a dimension, so texts sharing words have higher cosine
// similarity. Good enough to make centroid and retrieval tests meaningful
// without a real model.
type mockEmbedder struct {
	dim int
	err error
}

func newMockEmbedder(dim int) *mockEmbedder { return &mockEmbedder{dim: dim} }

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t, m.dim)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int { return m.dim }
func (m *mockEmbedder) Name() string    { return "mock" }

func hashEmbed(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(dim)]++
	}
	return vec
}

// mockGenerator returns canned responses in order, then repeats the last
// one. A non-nil err is returned on every call instead.
type mockGenerator struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (m *mockGenerator) Generate(_ context.Context, prompt string, _ GenerateOptions) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", nil
	}
	i := m.calls - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

func (m *mockGenerator) Name() string { return "mock" }

// generatorFunc adapts a function to the Generator interface for tests that
// need per-prompt behavior.
type generatorFunc func(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	return f(ctx, prompt, opts)
}

func (f generatorFunc) Name() string { return "func" }

// memoryIndex is an in-memory Index with all optional capabilities, enough
// for pipeline and agent tests.
type memoryIndex struct {
	docs      []Document
	chunks    []Chunk
	sentences []Sentence
	boosts    map[string]RelevanceBoost
	fusion    FusionParams

	searchErr error
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{boosts: make(map[string]RelevanceBoost), fusion: DefaultFusionParams()}
}

func (m *memoryIndex) Init(context.Context) error { return nil }

func (m *memoryIndex) InsertDocument(_ context.Context, doc Document) error {
	m.docs = append(m.docs, doc)
	return nil
}

func (m *memoryIndex) InsertChunk(_ context.Context, chunk Chunk, sentences []Sentence) error {
	m.chunks = append(m.chunks, chunk)
	m.sentences = append(m.sentences, sentences...)
	return nil
}

func (m *memoryIndex) SearchHybrid(_ context.Context, dense []float32, sparse map[uint32]float32, limit int) ([]SearchResult, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var results []SearchResult
	for _, c := range m.chunks {
		denseScore := CosineSimilarity(dense, c.Dense)
		sparseScore := NormalizedLogDot(sparse, c.Sparse)
		score := HybridScore(denseScore, sparseScore, m.fusion)
		if score <= m.fusion.Threshold {
			continue
		}
		results = append(results, SearchResult{
			ID:           c.ID,
			Score:        score,
			Content:      c.Content,
			SmallContent: c.Small,
			Metadata:     c.Metadata,
		})
	}
	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Score > results[i].Score {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *memoryIndex) GetChunks(_ context.Context, ids []string) ([]Chunk, error) {
	var out []Chunk
	for _, c := range m.chunks {
		for _, id := range ids {
			if c.ID == id {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (m *memoryIndex) ScanChunks(context.Context) ([]Chunk, error) {
	out := make([]Chunk, len(m.chunks))
	copy(out, m.chunks)
	return out, nil
}

func (m *memoryIndex) AllSentences(context.Context) ([]Sentence, error) {
	out := make([]Sentence, len(m.sentences))
	copy(out, m.sentences)
	return out, nil
}

func (m *memoryIndex) ListDocuments(context.Context) ([]Document, error) {
	out := make([]Document, len(m.docs))
	copy(out, m.docs)
	return out, nil
}

func (m *memoryIndex) DeleteDocument(_ context.Context, id string) error {
	var kept []Chunk
	for _, c := range m.chunks {
		if c.DocumentID == id {
			delete(m.boosts, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	m.chunks = kept
	var docs []Document
	for _, d := range m.docs {
		if d.ID != id {
			docs = append(docs, d)
		}
	}
	m.docs = docs
	return nil
}

func (m *memoryIndex) UpdateChunkRelevance(_ context.Context, chunkID string, vote Vote) (RelevanceBoost, error) {
	b := ApplyVote(m.boosts[chunkID], chunkID, vote, NowUnix())
	m.boosts[chunkID] = b
	return b, nil
}

func (m *memoryIndex) GetBoosts(_ context.Context, chunkIDs []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, id := range chunkIDs {
		if b, ok := m.boosts[id]; ok {
			out[id] = b.Boost
		}
	}
	return out, nil
}

func (m *memoryIndex) Close() error { return nil }

var (
	_ Index            = (*memoryIndex)(nil)
	_ SentenceSearcher = (*memoryIndex)(nil)
	_ KeywordScanner   = (*memoryIndex)(nil)
	_ FeedbackStore    = (*memoryIndex)(nil)
)
