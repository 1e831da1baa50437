package contexture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Compressor abstractive-summarizes retrieved context down to what the query
// actually needs. Compression is an optimization, not a correctness step:
// any failure falls back to hard truncation of the raw context instead of
// propagating an error.
type Compressor struct {
	generator    Generator
	maxNewTokens int
	truncateAt   int
	logger       *slog.Logger
}

// CompressorOption configures a Compressor.
type CompressorOption func(*Compressor)

// WithCompressorMaxNewTokens bounds the summary. Default 512.
func WithCompressorMaxNewTokens(n int) CompressorOption {
	return func(c *Compressor) { c.maxNewTokens = n }
}

// WithCompressorTruncateAt sets the fallback truncation length in bytes.
// Default 3000.
func WithCompressorTruncateAt(n int) CompressorOption {
	return func(c *Compressor) { c.truncateAt = n }
}

// WithCompressorLogger sets a structured logger.
func WithCompressorLogger(l *slog.Logger) CompressorOption {
	return func(c *Compressor) { c.logger = l }
}

// NewCompressor creates a compressor over the generator.
func NewCompressor(generator Generator, opts ...CompressorOption) *Compressor {
	c := &Compressor{
		generator:    generator,
		maxNewTokens: 512,
		truncateAt:   3000,
		logger:       nopLogger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compress returns a query-focused summary of contextText, or a truncation
// of it when the model call fails or produces nothing.
func (c *Compressor) Compress(ctx context.Context, contextText, query string) string {
	prompt := fmt.Sprintf(
		"Rewrite the following context, keeping only the information relevant to the question. Preserve exact names, numbers, and dates. Do not add information.\n\nQuestion: %s\n\nContext:\n%s\n\nRelevant context:",
		query, contextText,
	)
	out, err := c.generator.Generate(ctx, prompt, GenerateOptions{
		MaxNewTokens: c.maxNewTokens,
		Temperature:  0.1,
	})
	if err != nil || strings.TrimSpace(out) == "" {
		c.logger.Warn("compressor: falling back to truncation", "error", err)
		return truncate(contextText, c.truncateAt)
	}
	return strings.TrimSpace(out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
