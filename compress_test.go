package contexture

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCompressUsesModelOutput(t *testing.T) {
	gen := &mockGenerator{responses: []string{" The company was founded in 1998. "}}
	c := NewCompressor(gen)

	got := c.Compress(context.Background(), "long retrieved context", "when was it founded")
	if got != "The company was founded in 1998." {
		t.Errorf("Compress = %q", got)
	}
	if !strings.Contains(gen.prompts[0], "when was it founded") {
		t.Error("prompt does not contain the query")
	}
}

func TestCompressFallsBackToTruncation(t *testing.T) {
	long := strings.Repeat("abcdefghij", 400) // 4000 bytes

	t.Run("generator error", func(t *testing.T) {
		gen := &mockGenerator{err: errors.New("down")}
		c := NewCompressor(gen)
		got := c.Compress(context.Background(), long, "q")
		if len(got) != 3000 {
			t.Errorf("truncated length = %d, want 3000", len(got))
		}
		if !strings.HasPrefix(long, got) {
			t.Error("truncation is not a prefix of the input")
		}
	})

	t.Run("empty output", func(t *testing.T) {
		gen := &mockGenerator{responses: []string{"   "}}
		c := NewCompressor(gen)
		if got := c.Compress(context.Background(), "short context", "q"); got != "short context" {
			t.Errorf("short context should pass through unchanged, got %q", got)
		}
	})
}

func TestCompressTruncationRespectsRuneBoundaries(t *testing.T) {
	gen := &mockGenerator{err: errors.New("down")}
	c := NewCompressor(gen, WithCompressorTruncateAt(10))

	// Multi-byte runes straddling the cut point must not be split.
	got := c.Compress(context.Background(), strings.Repeat("héllo wörld ", 10), "q")
	if !utf8.ValidString(got) {
		t.Errorf("truncation produced invalid UTF-8: %q", got)
	}
	if len(got) > 10 {
		t.Errorf("truncated length = %d, want <= 10", len(got))
	}
}
