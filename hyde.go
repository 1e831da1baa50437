package contexture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Hyde expands a terse query into a hypothetical answer document. The
// generated text sits closer in embedding space to genuine answer passages
// than the bare query does, so it feeds the dense half of retrieval; the raw
// query still feeds the sparse half, preserving keyword intent.
type Hyde struct {
	generator    Generator
	maxNewTokens int
	temperature  float64
	logger       *slog.Logger
}

// HydeOption configures a Hyde expander.
type HydeOption func(*Hyde)

// WithHydeMaxNewTokens bounds the generated hypothetical. Default 128.
func WithHydeMaxNewTokens(n int) HydeOption {
	return func(h *Hyde) { h.maxNewTokens = n }
}

// WithHydeTemperature sets the sampling temperature. Default 0.7.
func WithHydeTemperature(t float64) HydeOption {
	return func(h *Hyde) { h.temperature = t }
}

// WithHydeLogger sets a structured logger.
func WithHydeLogger(l *slog.Logger) HydeOption {
	return func(h *Hyde) { h.logger = l }
}

// NewHyde creates a hypothetical-document expander over the generator.
func NewHyde(generator Generator, opts ...HydeOption) *Hyde {
	h := &Hyde{
		generator:    generator,
		maxNewTokens: 128,
		temperature:  0.7,
		logger:       nopLogger,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Expand generates a plausible answer to the query. A generator failure is
// surfaced to the caller — with no model there is nothing to embed.
func (h *Hyde) Expand(ctx context.Context, query string) (string, error) {
	prompt := fmt.Sprintf(
		"Write a comprehensive answer to the following question. Answer as if you knew all the relevant facts, in plain prose.\n\nQuestion: %s\n\nAnswer:",
		query,
	)
	out, err := h.generator.Generate(ctx, prompt, GenerateOptions{
		MaxNewTokens: h.maxNewTokens,
		Temperature:  h.temperature,
		Sample:       true,
	})
	if err != nil {
		return "", fmt.Errorf("hyde expand: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		// An empty hypothetical embeds as garbage; the raw query is a
		// better dense signal than nothing at all.
		return query, nil
	}
	h.logger.Debug("hyde: expanded query", "query_len", len(query), "expanded_len", len(out))
	return out, nil
}
