package contexture

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
)

// Exemplar phrases for the two query intents. Each set is embedded once and
// averaged into a prototype centroid; an incoming query is compared against
// both.
var (
	informationalExemplars = []string{
		"What is the capital of France?",
		"Explain how photosynthesis works.",
		"Who founded the company and when?",
		"When was the agreement signed?",
		"How does the billing process work?",
		"Define the term amortization.",
		"Tell me about the product warranty conditions.",
		"Where is the headquarters located?",
	}
	conversationalExemplars = []string{
		"Hello, how are you today?",
		"Thanks a lot, that was helpful!",
		"Good morning!",
		"That sounds great.",
		"Haha, very funny.",
		"See you later, bye!",
		"Nice to meet you.",
		"Ok, sounds good to me.",
	}
)

// questionPrefix matches interrogative openers in the supported languages
// (English, Spanish, French, German). A match forces retrieval regardless of
// centroid similarity.
var questionPrefix = regexp.MustCompile(`(?i)^\s*(who|whose|what|where|when|why|how|which|define|explain|` +
	`qué|que|quién|quien|cuál|cual|cómo|como|cuándo|cuando|dónde|donde|por qué|explica|` +
	`qui|quoi|où|quand|pourquoi|comment|explique|définis|` +
	`wer|was|wo|wann|warum|wieso|wie|welche|welcher|erkläre|definiere)\b`)

// QueryClassifier decides whether a query needs retrieval at all. It never
// returns an error: any embedding failure defaults to "no retrieval" so a
// broken embedder degrades to plain generation instead of crashing the
// caller.
type QueryClassifier struct {
	embedder Embedder
	logger   *slog.Logger

	// Centroids are computed once in Initialize and immutable afterwards.
	initOnce       sync.Once
	initialized    bool
	informational  []float32
	conversational []float32
}

// ClassifierOption configures a QueryClassifier.
type ClassifierOption func(*QueryClassifier)

// WithClassifierLogger sets a structured logger for the classifier.
func WithClassifierLogger(l *slog.Logger) ClassifierOption {
	return func(c *QueryClassifier) { c.logger = l }
}

// NewQueryClassifier creates a classifier over the given embedder. Call
// Initialize to compute the intent centroids eagerly; otherwise they are
// computed on first use.
func NewQueryClassifier(embedder Embedder, opts ...ClassifierOption) *QueryClassifier {
	c := &QueryClassifier{embedder: embedder, logger: nopLogger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Initialize embeds both exemplar sets and stores their centroids. It runs
// at most once for the classifier's lifetime; repeated calls are no-ops.
func (c *QueryClassifier) Initialize(ctx context.Context) error {
	var err error
	c.initOnce.Do(func() {
		var info, conv []float32
		info, err = c.centroid(ctx, informationalExemplars)
		if err != nil {
			return
		}
		conv, err = c.centroid(ctx, conversationalExemplars)
		if err != nil {
			return
		}
		c.informational = info
		c.conversational = conv
		c.initialized = true
		c.logger.Debug("classifier: centroids computed", "dim", len(info))
	})
	return err
}

func (c *QueryClassifier) centroid(ctx context.Context, phrases []string) ([]float32, error) {
	embs, err := c.embedder.Embed(ctx, phrases)
	if err != nil {
		return nil, err
	}
	if len(embs) == 0 || len(embs[0]) == 0 {
		return nil, ErrModelUnavailable
	}
	dim := len(embs[0])
	mean := make([]float32, dim)
	for _, e := range embs {
		for i := 0; i < dim && i < len(e); i++ {
			mean[i] += e[i]
		}
	}
	n := float32(len(embs))
	for i := range mean {
		mean[i] /= n
	}
	return mean, nil
}

// IsRetrievalNeeded reports whether the query should go through retrieval.
// A question-word prefix in any supported language forces true. Otherwise
// the query embedding is compared against both centroids. Failures of any
// kind yield false.
func (c *QueryClassifier) IsRetrievalNeeded(ctx context.Context, query string) bool {
	if questionPrefix.MatchString(query) {
		return true
	}

	if err := c.Initialize(ctx); err != nil || !c.initialized {
		c.logger.Warn("classifier: centroid init failed, defaulting to direct mode", "error", err)
		return false
	}

	embs, err := c.embedder.Embed(ctx, []string{query})
	if err != nil || len(embs) == 0 {
		c.logger.Warn("classifier: query embed failed, defaulting to direct mode", "error", err)
		return false
	}

	simInfo := CosineSimilarity(embs[0], c.informational)
	simConv := CosineSimilarity(embs[0], c.conversational)
	c.logger.Debug("classifier: similarity", "informational", simInfo, "conversational", simConv)
	return simInfo > simConv
}
