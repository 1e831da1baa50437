package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/contexture-ai/contexture"
)

func TestEmbedRestoresInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %s, want /embeddings", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header = %q", got)
		}
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		// Respond out of order; the client must restore input order.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{2, 2}},
				{"index": 0, "embedding": []float32{1, 1}},
			},
		})
	}))
	defer srv.Close()

	e := NewEmbedding(NewClient("key", srv.URL), "test-model", 2)
	vecs, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Errorf("order not restored: %v", vecs)
	}
	if e.Dimensions() != 2 {
		t.Errorf("Dimensions = %d, want 2", e.Dimensions())
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	}))
	defer srv.Close()

	e := NewEmbedding(NewClient("", srv.URL), "m", 2)
	if _, err := e.Embed(context.Background(), []string{"a"}); err == nil {
		t.Error("want error on vector count mismatch")
	}
}

func TestGenerateTemperaturePinnedWhenNotSampling(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hello"}},
			},
		})
	}))
	defer srv.Close()

	g := NewGeneration(NewClient("", srv.URL), "test-model")
	out, err := g.Generate(context.Background(), "hi", contexture.GenerateOptions{
		MaxNewTokens: 32,
		Temperature:  0.9,
		Sample:       false,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "hello" {
		t.Errorf("output = %q", out)
	}
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Errorf("temperature = %v, want pinned to 0", got.Temperature)
	}
	if got.MaxTokens != 32 {
		t.Errorf("max_tokens = %d, want 32", got.MaxTokens)
	}

	if _, err := g.Generate(context.Background(), "hi", contexture.GenerateOptions{Temperature: 0.9, Sample: true}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got.Temperature == nil || *got.Temperature != 0.9 {
		t.Errorf("sampling temperature = %v, want 0.9", got.Temperature)
	}
}

func TestNon200BecomesErrHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewGeneration(NewClient("", srv.URL), "m")
	_, err := g.Generate(context.Background(), "hi", contexture.GenerateOptions{})
	var httpErr *contexture.ErrHTTP
	if !errors.As(err, &httpErr) {
		t.Fatalf("want *contexture.ErrHTTP, got %v", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", httpErr.Status)
	}
}

func TestUnreachableServerIsModelUnavailable(t *testing.T) {
	g := NewGeneration(NewClient("", "http://127.0.0.1:1"), "m")
	_, err := g.Generate(context.Background(), "hi", contexture.GenerateOptions{})
	if !errors.Is(err, contexture.ErrModelUnavailable) {
		t.Errorf("want ErrModelUnavailable, got %v", err)
	}
}
