// Package openaicompat implements contexture.Embedder and
// contexture.Generator against any OpenAI-compatible API.
//
// Works with OpenAI, OpenRouter, Groq, Together, Fireworks, DeepSeek,
// Mistral, Ollama, vLLM, LM Studio, Azure OpenAI, and any other server
// that implements the /embeddings and /chat/completions endpoints.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/contexture-ai/contexture"
)

// Client holds the connection settings shared by the embedding and
// generation providers.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	name    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client, e.g. to set timeouts.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithName overrides the provider name reported by Name() (default "openai").
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// NewClient creates a client for an OpenAI-compatible API.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "http://localhost:11434/v1"). Endpoint paths are appended automatically.
func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// post marshals body, sends it to baseURL+path, and decodes the JSON
// response into out. Non-200 responses become *contexture.ErrHTTP.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", contexture.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &contexture.ErrHTTP{Status: resp.StatusCode, Body: string(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Embedding calls the /embeddings endpoint. dimensions is the expected
// vector size of the model, reported via Dimensions().
type Embedding struct {
	c          *Client
	model      string
	dimensions int
}

// NewEmbedding creates an embedding provider for the given model.
func NewEmbedding(c *Client, model string, dimensions int) *Embedding {
	return &Embedding{c: c, model: model, dimensions: dimensions}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text, in input order.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp embeddingResponse
	err := e.c.post(ctx, "/embeddings", embeddingRequest{Model: e.model, Input: texts}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// Index values restore input order if the server reordered.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Dimensions returns the configured embedding vector size.
func (e *Embedding) Dimensions() int { return e.dimensions }

// Name returns the provider name.
func (e *Embedding) Name() string { return e.c.name }

// Generation calls the /chat/completions endpoint with a single user
// message per request.
type Generation struct {
	c     *Client
	model string
}

// NewGeneration creates a text generation provider for the given model.
func NewGeneration(c *Client, model string) *Generation {
	return &Generation{c: c, model: model}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends prompt as a single user message and returns the first
// choice's content. When opts.Sample is false the request pins
// temperature to 0 for deterministic output.
func (g *Generation) Generate(ctx context.Context, prompt string, opts contexture.GenerateOptions) (string, error) {
	req := chatRequest{
		Model:     g.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: opts.MaxNewTokens,
	}
	temp := 0.0
	if opts.Sample {
		temp = opts.Temperature
	}
	req.Temperature = &temp

	var resp chatResponse
	if err := g.c.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completions: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Name returns the provider name.
func (g *Generation) Name() string { return g.c.name }

var (
	_ contexture.Embedder  = (*Embedding)(nil)
	_ contexture.Generator = (*Generation)(nil)
)
