package contexture

import (
	"context"
	"errors"
	"testing"
)

func TestClassifierQuestionPrefixForcesRetrieval(t *testing.T) {
	// The embedder errors, so only the regex path can return true.
	emb := newMockEmbedder(32)
	emb.err = errors.New("down")
	c := NewQueryClassifier(emb)

	tests := []struct {
		query string
		want  bool
	}{
		{"What is the refund policy?", true},
		{"  where is the office located", true},
		{"Cómo funciona la garantía?", true},
		{"pourquoi le ciel est bleu", true},
		{"Warum ist das so teuer?", true},
		{"Thanks, that was helpful!", false},
		{"whatever you say", false}, // "whatever" is not a bare question word
	}
	for _, tt := range tests {
		if got := c.IsRetrievalNeeded(context.Background(), tt.query); got != tt.want {
			t.Errorf("IsRetrievalNeeded(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestClassifierCentroidComparison(t *testing.T) {
	c := NewQueryClassifier(newMockEmbedder(256))

	// No question-word prefix, but heavy word overlap with the
	// informational exemplars.
	if !c.IsRetrievalNeeded(context.Background(), "the company was founded the billing process") {
		t.Error("informational-looking query classified as conversational")
	}
	// Overlaps the conversational exemplars instead.
	if c.IsRetrievalNeeded(context.Background(), "hello, nice to meet you, see you later!") {
		t.Error("greeting classified as needing retrieval")
	}
}

func TestClassifierEmbedFailureDefaultsToDirect(t *testing.T) {
	emb := newMockEmbedder(32)
	emb.err = errors.New("model unavailable")
	c := NewQueryClassifier(emb)

	if c.IsRetrievalNeeded(context.Background(), "tell me about the contract terms") {
		t.Error("embed failure should default to no retrieval")
	}
}

func TestClassifierInitializeOnce(t *testing.T) {
	emb := newMockEmbedder(32)
	c := NewQueryClassifier(emb)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	// Break the embedder afterwards; cached centroids must keep working.
	emb.err = errors.New("down")
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
}
