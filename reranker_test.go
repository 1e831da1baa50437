package contexture

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRerankPhraseMatchWins(t *testing.T) {
	// The model affirms everything; ordering comes from the lexical boost.
	gen := generatorFunc(func(_ context.Context, _ string, _ GenerateOptions) (string, error) {
		return "true", nil
	})
	r := NewCrossEncoderReranker(gen)

	results := []SearchResult{
		{ID: "none", Score: 0.9, Content: "Completely unrelated text about gardening."},
		{ID: "phrase", Score: 0.9, Content: "Our refund policy allows returns within 30 days."},
		{ID: "partial", Score: 0.9, Content: "The policy document describes many procedures."},
	}
	out, err := r.Rerank(context.Background(), "refund policy", results, 3)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if out[0].ID != "phrase" {
		t.Errorf("top result = %s, want phrase", out[0].ID)
	}
	if out[1].ID != "partial" {
		t.Errorf("second result = %s, want partial", out[1].ID)
	}
	if out[2].ID != "none" {
		t.Errorf("last result = %s, want none", out[2].ID)
	}
}

func TestRerankModelVerdict(t *testing.T) {
	// Affirm only documents mentioning warranty.
	gen := generatorFunc(func(_ context.Context, prompt string, _ GenerateOptions) (string, error) {
		if strings.Contains(prompt, "warranty") {
			return "Yes, relevant.", nil
		}
		return "false", nil
	})
	r := NewCrossEncoderReranker(gen)

	results := []SearchResult{
		{ID: "rejected", Score: 1.0, Content: "Shipping takes five days."},
		{ID: "affirmed", Score: 1.0, Content: "The warranty covers two years."},
	}
	out, err := r.Rerank(context.Background(), "coverage period", results, 2)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if out[0].ID != "affirmed" {
		t.Errorf("affirmed document should rank first, got %s", out[0].ID)
	}
	// Rejected documents keep a small non-zero score.
	if out[1].RerankScore <= 0 {
		t.Errorf("rejected document score = %v, want > 0", out[1].RerankScore)
	}
}

func TestRerankPerDocumentFailure(t *testing.T) {
	calls := 0
	gen := generatorFunc(func(_ context.Context, _ string, _ GenerateOptions) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "true", nil
	})
	r := NewCrossEncoderReranker(gen)

	results := []SearchResult{
		{ID: "fails", Score: 1.0, Content: "alpha"},
		{ID: "works", Score: 0.5, Content: "beta"},
	}
	out, err := r.Rerank(context.Background(), "gamma", results, 2)
	if err != nil {
		t.Fatalf("one failing document must not fail the batch: %v", err)
	}
	if out[0].ID != "works" {
		t.Errorf("surviving document should rank first, got %s", out[0].ID)
	}
	for _, r := range out {
		if r.ID == "fails" && r.RerankScore != 0 {
			t.Errorf("failed document score = %v, want 0", r.RerankScore)
		}
	}
}

func TestRerankCapsTopK(t *testing.T) {
	gen := generatorFunc(func(_ context.Context, _ string, _ GenerateOptions) (string, error) {
		return "true", nil
	})
	r := NewCrossEncoderReranker(gen, WithRerankerMaxTopK(2))

	results := make([]SearchResult, 5)
	for i := range results {
		results[i] = SearchResult{ID: string(rune('a' + i)), Score: 1.0, Content: "x"}
	}
	out, err := r.Rerank(context.Background(), "q", results, 10)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("got %d results, want 2", len(out))
	}
}

func TestRerankDoesNotMutateInput(t *testing.T) {
	gen := generatorFunc(func(_ context.Context, _ string, _ GenerateOptions) (string, error) {
		return "true", nil
	})
	r := NewCrossEncoderReranker(gen)

	results := []SearchResult{
		{ID: "a", Score: 0.1, Content: "unrelated"},
		{ID: "b", Score: 0.9, Content: "also unrelated"},
	}
	if _, err := r.Rerank(context.Background(), "q", results, 2); err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if results[0].ID != "a" || results[0].RerankScore != 0 {
		t.Error("input slice was mutated")
	}
}
