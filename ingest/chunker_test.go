package ingest

import (
	"strings"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "basic",
			text: "First sentence. Second sentence! Third?",
			want: []string{"First sentence.", "Second sentence!", "Third?"},
		},
		{
			name: "no delimiter",
			text: "a fragment without punctuation",
			want: []string{"a fragment without punctuation"},
		},
		{
			name: "decimal number is not a boundary",
			text: "Pi is roughly 3.14 in value. Next sentence.",
			want: []string{"Pi is roughly 3.14 in value.", "Next sentence."},
		},
		{
			name: "ellipsis kept whole",
			text: "Wait... really? Yes.",
			want: []string{"Wait...", "really?", "Yes."},
		},
		{
			name: "trailing fragment",
			text: "Done here. and then some",
			want: []string{"Done here.", "and then some"},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sentences %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sentence %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitShortDocument(t *testing.T) {
	c := NewHierarchicalChunker()
	pairs := c.Split("A short document. Just two sentences.")
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	// Nothing to expand into: small and parent coincide.
	if pairs[0].Small != pairs[0].Parent {
		t.Errorf("small %q != parent %q for a short document", pairs[0].Small, pairs[0].Parent)
	}
	if len(pairs[0].Sentences) != 2 {
		t.Errorf("got %d sentences, want 2", len(pairs[0].Sentences))
	}
}

func TestSplitParentContainsSmall(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 120; i++ {
		b.WriteString("This sentence has exactly eight words in it. ")
	}
	c := NewHierarchicalChunker(WithSmallChunkSize(20), WithParentChunkSize(60))

	pairs := c.Split(b.String())
	if len(pairs) < 2 {
		t.Fatalf("got %d pairs, want several", len(pairs))
	}
	for i, p := range pairs {
		if !strings.Contains(p.Parent, p.Small) {
			t.Errorf("pair %d: parent does not contain small", i)
		}
		if got := len(strings.Fields(p.Small)); got > 20 && len(p.Sentences) > 1 {
			t.Errorf("pair %d: small has %d tokens over budget 20", i, got)
		}
		if got := len(strings.Fields(p.Parent)); got > 60 {
			t.Errorf("pair %d: parent has %d tokens over budget 60", i, got)
		}
	}
}

func TestSplitOversizedSentence(t *testing.T) {
	long := strings.Repeat("word ", 50) + "end."
	c := NewHierarchicalChunker(WithSmallChunkSize(10), WithParentChunkSize(20))

	pairs := c.Split(long)
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1 — sentences are never split", len(pairs))
	}
	if len(pairs[0].Sentences) != 1 {
		t.Errorf("oversized sentence should form its own chunk")
	}
}

func TestSplitEmpty(t *testing.T) {
	c := NewHierarchicalChunker()
	if got := c.Split(""); got != nil {
		t.Errorf("Split(\"\") = %v, want nil", got)
	}
}
