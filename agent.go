package contexture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// insufficientAnswer is returned when the agent exhausts its iteration
// budget without producing a final answer.
const insufficientAnswer = "I could not find sufficient information in the indexed documents to answer this question."

// ToolCall names one agent tool invocation with its raw arguments.
type ToolCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Action is the tagged union the agent expects from the model each
// iteration: either a thought plus a tool call, or a final answer. Exactly
// one of ToolCall and FinalAnswer must be set.
type Action struct {
	Thought     string    `json:"thought,omitempty"`
	ToolCall    *ToolCall `json:"tool_call,omitempty"`
	FinalAnswer string    `json:"final_answer,omitempty"`
}

// ParseAction strictly decodes a model response into an Action. Markdown
// code fences are stripped, then the payload must be exactly one JSON object
// with no unknown fields and exactly one of the two branches populated.
// Anything else is a MalformedOutputError — the single, well-defined
// recovery path is the caller's error counter.
func ParseAction(raw string) (Action, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var a Action
	dec := json.NewDecoder(strings.NewReader(s))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return Action{}, &MalformedOutputError{Raw: raw, Reason: err.Error()}
	}
	if dec.More() {
		return Action{}, &MalformedOutputError{Raw: raw, Reason: "trailing content after JSON object"}
	}
	if (a.ToolCall == nil) == (a.FinalAnswer == "") {
		return Action{}, &MalformedOutputError{Raw: raw, Reason: "exactly one of tool_call or final_answer required"}
	}
	if a.ToolCall != nil && a.ToolCall.Name == "" {
		return Action{}, &MalformedOutputError{Raw: raw, Reason: "tool_call missing name"}
	}
	return a, nil
}

// Agent is the iterative consumer of the index: instead of one fixed
// pipeline pass it lets the model issue retrieval tool calls in a bounded
// loop. Both consumers share the same index; neither sees the other.
type Agent struct {
	index         Index
	embedder      Embedder
	generator     Generator
	maxIterations int
	snippetLimit  int
	logger        *slog.Logger
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithMaxIterations bounds the reasoning loop. Default 5.
func WithMaxIterations(n int) AgentOption {
	return func(a *Agent) { a.maxIterations = n }
}

// WithSnippetLimit caps how many snippets each search tool returns.
// Default 5.
func WithSnippetLimit(n int) AgentOption {
	return func(a *Agent) { a.snippetLimit = n }
}

// WithAgentLogger sets a structured logger.
func WithAgentLogger(l *slog.Logger) AgentOption {
	return func(a *Agent) { a.logger = l }
}

// NewAgent creates an iterative retrieval agent over the index.
func NewAgent(index Index, embedder Embedder, generator Generator, opts ...AgentOption) *Agent {
	a := &Agent{
		index:         index,
		embedder:      embedder,
		generator:     generator,
		maxIterations: 5,
		snippetLimit:  5,
		logger:        nopLogger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

const agentSystemPrompt = `You are a research assistant with access to a document index. Each turn, respond with a single JSON object and nothing else.

To use a tool:
{"thought": "<why>", "tool_call": {"name": "<tool>", "args": {...}}}

To answer:
{"final_answer": "<answer>"}

Tools:
- keyword_search, args {"keywords": ["word", ...]} — find chunks containing the keywords.
- semantic_search, args {"query": "..."} — find sentences similar in meaning to the query.
- chunk_read, args {"chunk_ids": ["id", ...]} — read the full content of chunks found by search.

Search first, read the most promising chunks, then answer using only what you read.`

// agentRun is the per-call mutable state: the transcript, the consecutive
// parse-failure counter, and the set of chunks already read this run.
type agentRun struct {
	transcript strings.Builder
	failures   int
	read       map[string]bool
}

// Answer runs the bounded reasoning loop for one question. It always
// returns an answer-shaped string: either the model's final answer or the
// fixed insufficient-information message. Only generator unavailability and
// context cancellation surface as errors.
func (a *Agent) Answer(ctx context.Context, question string) (string, error) {
	run := &agentRun{read: make(map[string]bool)}
	fmt.Fprintf(&run.transcript, "%s\n\nQuestion: %s\n", agentSystemPrompt, question)

	for iter := 0; iter < a.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := a.generator.Generate(ctx, run.transcript.String(), GenerateOptions{
			MaxNewTokens: 512,
			Temperature:  0.2,
		})
		if err != nil {
			return "", fmt.Errorf("agent iteration %d: %w", iter+1, err)
		}

		action, perr := ParseAction(resp)
		if perr != nil {
			run.failures++
			a.logger.Warn("agent: unparseable action", "iteration", iter+1, "failures", run.failures, "error", perr)
			if run.failures >= 2 {
				a.emergencyFallback(ctx, run, question)
				continue
			}
			fmt.Fprintf(&run.transcript, "\nYour last response was not valid JSON (%s). Respond with exactly one JSON object.\n", perr)
			continue
		}
		run.failures = 0

		if action.FinalAnswer != "" {
			a.logger.Debug("agent: final answer", "iterations", iter+1)
			return action.FinalAnswer, nil
		}

		observation := a.dispatch(ctx, run, *action.ToolCall)
		fmt.Fprintf(&run.transcript, "\n%s\nObservation: %s\n", resp, observation)
	}

	a.logger.Debug("agent: iteration budget exhausted")
	return insufficientAnswer, nil
}

// emergencyFallback guarantees forward progress after repeated parse
// failures: it force-feeds a keyword search over the raw question and
// instructs the model to answer immediately.
func (a *Agent) emergencyFallback(ctx context.Context, run *agentRun, question string) {
	run.failures = 0
	var keywords []string
	for _, w := range strings.Fields(question) {
		w = strings.Trim(strings.ToLower(w), ".,!?;:\"'")
		if len([]rune(w)) > 3 {
			keywords = append(keywords, w)
		}
	}
	forced := a.keywordSearch(ctx, keywords)
	fmt.Fprintf(&run.transcript,
		"\nContext found for the question:\n%s\n\nAnswer the question now using this context. Respond with {\"final_answer\": \"...\"} only.\n",
		forced)
	a.logger.Warn("agent: emergency fallback injected", "keywords", len(keywords))
}

// dispatch routes one tool call. Unknown tools and bad arguments are
// reported back to the model as observations, not errors.
func (a *Agent) dispatch(ctx context.Context, run *agentRun, tc ToolCall) string {
	switch tc.Name {
	case "keyword_search":
		var args struct {
			Keywords []string `json:"keywords"`
		}
		if err := json.Unmarshal(tc.Args, &args); err != nil || len(args.Keywords) == 0 {
			return `invalid args: expected {"keywords": ["word", ...]}`
		}
		return a.keywordSearch(ctx, args.Keywords)

	case "semantic_search":
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(tc.Args, &args); err != nil || args.Query == "" {
			return `invalid args: expected {"query": "..."}`
		}
		return a.semanticSearch(ctx, args.Query)

	case "chunk_read":
		var args struct {
			ChunkIDs []string `json:"chunk_ids"`
		}
		if err := json.Unmarshal(tc.Args, &args); err != nil || len(args.ChunkIDs) == 0 {
			return `invalid args: expected {"chunk_ids": ["id", ...]}`
		}
		return a.chunkRead(ctx, run, args.ChunkIDs)

	default:
		return "unknown tool: " + tc.Name
	}
}

var agentSentencePattern = regexp.MustCompile(`[^.!?]*[.!?]+`)

// keywordSearch scores chunks by keyword occurrence weighted by keyword
// length, then extracts the sentences that actually contain a keyword.
func (a *Agent) keywordSearch(ctx context.Context, keywords []string) string {
	scanner, ok := a.index.(KeywordScanner)
	if !ok {
		return "keyword search is not supported by this index backend"
	}
	chunks, err := scanner.ScanChunks(ctx)
	if err != nil {
		a.logger.Error("agent: keyword scan failed", "error", err)
		return "keyword search failed: " + err.Error()
	}

	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}

	type scored struct {
		chunk Chunk
		score int
	}
	var hits []scored
	for _, c := range chunks {
		content := strings.ToLower(c.Content)
		score := 0
		for _, k := range lowered {
			if k == "" {
				continue
			}
			score += strings.Count(content, k) * len(k)
		}
		if score > 0 {
			hits = append(hits, scored{chunk: c, score: score})
		}
	}
	if len(hits) == 0 {
		return "no chunks matched the keywords"
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > a.snippetLimit {
		hits = hits[:a.snippetLimit]
	}

	var out strings.Builder
	for _, h := range hits {
		snippet := matchingSentences(h.chunk.Small, lowered)
		if snippet == "" {
			snippet = truncate(h.chunk.Small, 200)
		}
		fmt.Fprintf(&out, "[chunk %s] %s\n", h.chunk.ID, snippet)
	}
	return strings.TrimSpace(out.String())
}

// matchingSentences returns the sentences of text containing any keyword.
func matchingSentences(text string, loweredKeywords []string) string {
	sentences := agentSentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	var matched []string
	for _, s := range sentences {
		ls := strings.ToLower(s)
		for _, k := range loweredKeywords {
			if k != "" && strings.Contains(ls, k) {
				matched = append(matched, strings.TrimSpace(s))
				break
			}
		}
	}
	return strings.Join(matched, " ")
}

// semanticSearch embeds the query and compares it against every indexed
// sentence, grouping by parent chunk and keeping the best sentence per
// chunk.
func (a *Agent) semanticSearch(ctx context.Context, query string) string {
	searcher, ok := a.index.(SentenceSearcher)
	if !ok {
		return "semantic search is not supported by this index backend"
	}
	embs, err := a.embedder.Embed(ctx, []string{query})
	if err != nil || len(embs) == 0 {
		a.logger.Error("agent: query embed failed", "error", err)
		return "semantic search failed: could not embed query"
	}
	sentences, err := searcher.AllSentences(ctx)
	if err != nil {
		a.logger.Error("agent: sentence scan failed", "error", err)
		return "semantic search failed: " + err.Error()
	}

	type best struct {
		sentence Sentence
		score    float64
	}
	byChunk := make(map[string]best)
	for _, s := range sentences {
		score := CosineSimilarity(embs[0], s.Embedding)
		if b, ok := byChunk[s.ChunkID]; !ok || score > b.score {
			byChunk[s.ChunkID] = best{sentence: s, score: score}
		}
	}
	if len(byChunk) == 0 {
		return "no indexed sentences to search"
	}

	ranked := make([]best, 0, len(byChunk))
	for _, b := range byChunk {
		ranked = append(ranked, b)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > a.snippetLimit {
		ranked = ranked[:a.snippetLimit]
	}

	var out strings.Builder
	for _, b := range ranked {
		fmt.Fprintf(&out, "[chunk %s] (%.2f) %s\n", b.sentence.ChunkID, b.score, strings.TrimSpace(b.sentence.Content))
	}
	return strings.TrimSpace(out.String())
}

// chunkRead returns the full content of the requested chunks. Reads are
// idempotent within a run: a chunk already read is reported, not re-fetched.
func (a *Agent) chunkRead(ctx context.Context, run *agentRun, ids []string) string {
	var fetch []string
	var out strings.Builder
	for _, id := range ids {
		if run.read[id] {
			fmt.Fprintf(&out, "[chunk %s] already read in this run\n", id)
			continue
		}
		fetch = append(fetch, id)
	}

	if len(fetch) > 0 {
		chunks, err := a.index.GetChunks(ctx, fetch)
		if err != nil {
			a.logger.Error("agent: chunk read failed", "error", err)
			return "chunk read failed: " + err.Error()
		}
		found := make(map[string]bool, len(chunks))
		for _, c := range chunks {
			run.read[c.ID] = true
			found[c.ID] = true
			fmt.Fprintf(&out, "[chunk %s]\n%s\n", c.ID, c.Content)
		}
		for _, id := range fetch {
			if !found[id] {
				fmt.Fprintf(&out, "[chunk %s] not found\n", id)
			}
		}
	}
	return strings.TrimSpace(out.String())
}
