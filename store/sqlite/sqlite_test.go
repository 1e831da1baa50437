package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/contexture-ai/contexture"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func insertTestChunk(t *testing.T, s *Store, id, docID string, dense []float32, sparse map[uint32]float32) {
	t.Helper()
	chunk := contexture.Chunk{
		ID:         id,
		DocumentID: docID,
		Small:      "small " + id,
		Content:    "content " + id,
		Dense:      dense,
		Sparse:     sparse,
		Metadata:   map[string]string{"origin": "test"},
	}
	sentences := []contexture.Sentence{
		{ID: id + "-s1", ChunkID: id, Content: "sentence one of " + id, Embedding: dense},
	}
	if err := s.InsertChunk(context.Background(), chunk, sentences); err != nil {
		t.Fatalf("InsertChunk(%s): %v", id, err)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	docs := []contexture.Document{
		{ID: "d1", Title: "Older", Source: "a", Content: "first", CreatedAt: 100},
		{ID: "d2", Title: "Newer", Source: "b", Content: "second", CreatedAt: 200,
			Metadata: map[string]string{"lang": "en"}},
	}
	for _, d := range docs {
		if err := s.InsertDocument(ctx, d); err != nil {
			t.Fatalf("InsertDocument: %v", err)
		}
	}

	got, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d documents, want 2", len(got))
	}
	if got[0].ID != "d2" || got[1].ID != "d1" {
		t.Errorf("documents not newest first: %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Metadata["lang"] != "en" {
		t.Errorf("metadata lost: %+v", got[0].Metadata)
	}
}

func TestSearchHybridRankingAndThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// "hit" aligns with the query in both spaces; "weak" only partially;
	// "noise" is orthogonal with no sparse overlap and falls below the
	// threshold.
	insertTestChunk(t, s, "hit", "d1", []float32{1, 0, 0}, map[uint32]float32{7: 1.5})
	insertTestChunk(t, s, "weak", "d1", []float32{0.5, 0.5, 0.7}, map[uint32]float32{7: 0.2})
	insertTestChunk(t, s, "noise", "d1", []float32{0, 0, 1}, map[uint32]float32{99: 1.0})

	results, err := s.SearchHybrid(ctx, []float32{1, 0, 0}, map[uint32]float32{7: 1.0}, 10)
	if err != nil {
		t.Fatalf("SearchHybrid: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (noise filtered): %+v", len(results), results)
	}
	if results[0].ID != "hit" {
		t.Errorf("top result = %s, want hit", results[0].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("results not sorted: %v <= %v", results[0].Score, results[1].Score)
	}
	if results[0].Metadata["origin"] != "test" {
		t.Errorf("metadata lost in search: %+v", results[0].Metadata)
	}
}

func TestSearchHybridLimit(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		insertTestChunk(t, s, id, "d1", []float32{1, 0}, map[uint32]float32{1: 1})
	}
	results, err := s.SearchHybrid(context.Background(), []float32{1, 0}, map[uint32]float32{1: 1}, 2)
	if err != nil {
		t.Fatalf("SearchHybrid: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want limit 2", len(results))
	}
}

func TestGetAndScanChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTestChunk(t, s, "c1", "d1", []float32{1}, nil)
	insertTestChunk(t, s, "c2", "d1", []float32{1}, nil)

	got, err := s.GetChunks(ctx, []string{"c2", "absent"})
	if err != nil {
		t.Fatalf("GetChunks: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c2" {
		t.Errorf("GetChunks = %+v, want just c2", got)
	}

	all, err := s.ScanChunks(ctx)
	if err != nil {
		t.Fatalf("ScanChunks: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ScanChunks = %d chunks, want 2", len(all))
	}

	none, err := s.GetChunks(ctx, nil)
	if err != nil || none != nil {
		t.Errorf("GetChunks(nil) = %v, %v, want nil, nil", none, err)
	}
}

func TestAllSentences(t *testing.T) {
	s := newTestStore(t)

	insertTestChunk(t, s, "c1", "d1", []float32{0.25, 0.75}, nil)
	sentences, err := s.AllSentences(context.Background())
	if err != nil {
		t.Fatalf("AllSentences: %v", err)
	}
	if len(sentences) != 1 {
		t.Fatalf("got %d sentences, want 1", len(sentences))
	}
	if sentences[0].ChunkID != "c1" || len(sentences[0].Embedding) != 2 {
		t.Errorf("unexpected sentence: %+v", sentences[0])
	}
}

func TestRelevanceVoting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b, err := s.UpdateChunkRelevance(ctx, "c1", contexture.VoteUp)
	if err != nil {
		t.Fatalf("UpdateChunkRelevance: %v", err)
	}
	if b.Votes != 1 || b.Boost <= 1.0 {
		t.Errorf("first upvote: %+v", b)
	}

	// Saturate upward: the boost must clamp at MaxBoost.
	for i := 0; i < 20; i++ {
		if b, err = s.UpdateChunkRelevance(ctx, "c1", contexture.VoteUp); err != nil {
			t.Fatalf("vote %d: %v", i, err)
		}
	}
	if b.Boost != contexture.MaxBoost {
		t.Errorf("boost = %v, want clamp at %v", b.Boost, contexture.MaxBoost)
	}
	if b.Votes != 21 {
		t.Errorf("votes = %d, want 21", b.Votes)
	}

	boosts, err := s.GetBoosts(ctx, []string{"c1", "unvoted"})
	if err != nil {
		t.Fatalf("GetBoosts: %v", err)
	}
	if len(boosts) != 1 || boosts["c1"] != contexture.MaxBoost {
		t.Errorf("GetBoosts = %v", boosts)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertDocument(ctx, contexture.Document{ID: "d1", Title: "t", Source: "s", Content: "c"}); err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	insertTestChunk(t, s, "c1", "d1", []float32{1}, map[uint32]float32{1: 1})
	if _, err := s.UpdateChunkRelevance(ctx, "c1", contexture.VoteUp); err != nil {
		t.Fatalf("UpdateChunkRelevance: %v", err)
	}

	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if docs, _ := s.ListDocuments(ctx); len(docs) != 0 {
		t.Errorf("documents remain: %+v", docs)
	}
	if chunks, _ := s.ScanChunks(ctx); len(chunks) != 0 {
		t.Errorf("chunks remain: %+v", chunks)
	}
	if sentences, _ := s.AllSentences(ctx); len(sentences) != 0 {
		t.Errorf("sentences remain: %+v", sentences)
	}
	if boosts, _ := s.GetBoosts(ctx, []string{"c1"}); len(boosts) != 0 {
		t.Errorf("boosts remain: %v", boosts)
	}
}
