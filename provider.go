package contexture

import "context"

// Embedder abstracts text embedding. The engine never trains or loads the
// model itself; an implementation is supplied by the caller.
type Embedder interface {
	// Embed returns embedding vectors for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
	// Name returns the provider name.
	Name() string
}

// GenerateOptions bound a single generation call.
type GenerateOptions struct {
	MaxNewTokens int
	Temperature  float64
	Sample       bool
}

// Generator abstracts text generation. Used by HyDE, the reranker, the
// compressor, and the agent.
type Generator interface {
	// Generate completes the prompt and returns the generated text.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	// Name returns the provider name.
	Name() string
}
