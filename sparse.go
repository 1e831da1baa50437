package contexture

import (
	"hash/fnv"
	"math"
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultSparseDimension is the fixed size of the hashed sparse vector space.
const DefaultSparseDimension = 32000

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// stopwords is a fixed multilingual set (English, Spanish, French, German).
// Tokens shorter than three characters are dropped before this check, so
// two-letter function words never reach it.
var stopwords = map[string]bool{
	// English
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "was": true,
	"were": true, "with": true, "that": true, "this": true, "from": true,
	"they": true, "have": true, "has": true, "had": true, "what": true,
	"which": true, "their": true, "will": true, "would": true, "there": true,
	"been": true, "its": true, "into": true, "than": true, "then": true,
	// Spanish
	"los": true, "las": true, "una": true, "con": true, "por": true,
	"para": true, "como": true, "pero": true, "sus": true, "del": true,
	"que": true, "esta": true, "este": true, "son": true, "más": true,
	"mas": true, "entre": true, "sobre": true, "también": true,
	// French
	"les": true, "des": true, "une": true, "dans": true, "pour": true,
	"par": true, "sur": true, "avec": true, "est": true, "sont": true,
	"mais": true, "aux": true, "ces": true, "cette": true, "leur": true,
	// German
	"der": true, "die": true, "das": true, "und": true, "ist": true,
	"ein": true, "eine": true, "mit": true, "von": true, "auf": true,
	"den": true, "dem": true, "nicht": true, "auch": true, "sich": true,
	"als": true, "bei": true, "aus": true, "nach": true, "über": true,
}

// SparseEncoder is a deterministic hashing-trick bag-of-words encoder. It
// proxies a learned sparse/BM25-style signal without a trained model: tokens
// are hashed with 32-bit FNV-1a modulo a fixed dimension and weighted by
// log(1+tf). Hash collisions accumulate additively; they are accepted, not
// resolved.
type SparseEncoder struct {
	dimension uint32
	lower     cases.Caser
}

// SparseOption configures a SparseEncoder.
type SparseOption func(*SparseEncoder)

// WithSparseDimension sets the hashed vector space size.
// Default is DefaultSparseDimension (32000).
func WithSparseDimension(d uint32) SparseOption {
	return func(e *SparseEncoder) { e.dimension = d }
}

// NewSparseEncoder creates an encoder with the given options.
func NewSparseEncoder(opts ...SparseOption) *SparseEncoder {
	e := &SparseEncoder{
		dimension: DefaultSparseDimension,
		lower:     cases.Lower(language.Und),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Dimension returns the hashed vector space size.
func (e *SparseEncoder) Dimension() uint32 { return e.dimension }

// Encode maps text to a sparse vector. It is pure: identical input always
// yields an identical map. All indices lie in [0, Dimension).
func (e *SparseEncoder) Encode(text string) map[uint32]float32 {
	tf := make(map[string]int)
	for _, tok := range tokenPattern.FindAllString(e.lower.String(text), -1) {
		if len([]rune(tok)) < 3 || stopwords[tok] {
			continue
		}
		tf[tok]++
	}

	vec := make(map[uint32]float32, len(tf))
	for tok, n := range tf {
		h := fnv.New32a()
		h.Write([]byte(tok))
		idx := h.Sum32() % e.dimension
		vec[idx] += float32(math.Log(1 + float64(n)))
	}
	return vec
}
