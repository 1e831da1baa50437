package contexture

// Relevance boost clamp range. Repeated votes in one direction saturate here
// rather than driving a chunk's ranking to zero or infinity.
const (
	MinBoost = 0.5
	MaxBoost = 2.0
)

// Vote step factors. Roughly eight consecutive votes span the full clamp
// range.
const (
	upStep   = 1.1
	downStep = 0.9
)

// ApplyVote folds one vote into a boost record, clamping the result to
// [MinBoost, MaxBoost]. A zero-value record (first vote on a chunk) starts
// from a neutral boost of 1.0. Both store backends use this so vote
// semantics cannot drift.
func ApplyVote(b RelevanceBoost, chunkID string, vote Vote, now int64) RelevanceBoost {
	if b.ChunkID == "" {
		b.ChunkID = chunkID
		b.Boost = 1.0
	}
	switch vote {
	case VoteUp:
		b.Boost *= upStep
	case VoteDown:
		b.Boost *= downStep
	}
	if b.Boost > MaxBoost {
		b.Boost = MaxBoost
	}
	if b.Boost < MinBoost {
		b.Boost = MinBoost
	}
	b.Votes++
	b.LastVote = vote
	b.LastUpdated = now
	return b
}
