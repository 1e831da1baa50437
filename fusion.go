package contexture

import "math"

// FusionParams are the knobs of hybrid score fusion. The defaults are
// empirically chosen; they are carried as configuration, not constants, and
// should not be assumed optimal.
type FusionParams struct {
	// Alpha is the sparse weight; dense gets 1-Alpha. Default 0.3.
	Alpha float64
	// Threshold drops results whose fused score is ≤ this value,
	// suppressing near-random matches. Default 0.1.
	Threshold float64
	// LexicalBonus multiplies the fused score when any lexical overlap
	// exists. Default 1.2.
	LexicalBonus float64
	// LexicalPenalty multiplies the fused score when there is no lexical
	// overlap at all. This is a deliberate anti-hallucination guard.
	// Default 0.8.
	LexicalPenalty float64
}

// DefaultFusionParams returns the standard fusion configuration.
func DefaultFusionParams() FusionParams {
	return FusionParams{
		Alpha:          0.3,
		Threshold:      0.1,
		LexicalBonus:   1.2,
		LexicalPenalty: 0.8,
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector is empty, zero, or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// SparseDot returns the dot product of two sparse vectors over their shared
// indices, and the number of shared indices.
func SparseDot(query, doc map[uint32]float32) (dot float64, shared int) {
	// Iterate the smaller map.
	a, b := query, doc
	if len(b) < len(a) {
		a, b = b, a
	}
	for idx, w := range a {
		if dw, ok := b[idx]; ok {
			dot += float64(w) * float64(dw)
			shared++
		}
	}
	return dot, shared
}

// NormalizedLogDot maps a sparse dot product into [0, 1]. Zero shared indices
// yield exactly 0 — no partial credit for structurally disjoint vectors.
func NormalizedLogDot(query, doc map[uint32]float32) float64 {
	dot, shared := SparseDot(query, doc)
	if shared == 0 {
		return 0
	}
	return math.Min(1, math.Log1p(dot)/5)
}

// HybridScore fuses a dense and a sparse relevance signal into one score.
// The dense score is clamped to ≥ 0 first; the lexical bonus rewards any
// sparse overlap and penalizes its total absence. Both index backends share
// this function so their rankings cannot drift apart.
func HybridScore(denseScore, sparseScore float64, p FusionParams) float64 {
	if denseScore < 0 {
		denseScore = 0
	}
	bonus := p.LexicalPenalty
	if sparseScore > 0 {
		bonus = p.LexicalBonus
	}
	return (denseScore*(1-p.Alpha) + sparseScore*p.Alpha) * bonus
}
