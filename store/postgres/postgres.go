// Package postgres implements contexture.Index against PostgreSQL with
// pgvector: dense candidates come from a native HNSW cosine search, sparse
// vectors live in JSONB, and the final fusion runs through the same shared
// formula as the local backend, so rankings are identical over the candidate
// set.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contexture-ai/contexture"
)

// Store implements contexture.Index backed by PostgreSQL with pgvector.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	fusion contexture.FusionParams

	dimension int // vector column dimension; 0 = untyped vector
	overfetch int // dense candidates fetched per requested result
}

var (
	_ contexture.Index            = (*Store)(nil)
	_ contexture.SentenceSearcher = (*Store)(nil)
	_ contexture.KeywordScanner   = (*Store)(nil)
	_ contexture.FeedbackStore    = (*Store)(nil)
)

// Option configures a PostgreSQL Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithFusionParams overrides the default fusion configuration.
func WithFusionParams(p contexture.FusionParams) Option {
	return func(s *Store) { s.fusion = p }
}

// WithEmbeddingDimension sets the vector column dimension (e.g. 1536, 768).
// When set, CREATE TABLE uses vector(N) instead of untyped vector. Only
// affects new table creation.
func WithEmbeddingDimension(dim int) Option {
	return func(s *Store) { s.dimension = dim }
}

// WithOverfetch sets how many dense candidates are fetched per requested
// result before fusion re-scoring. Sparse-heavy matches outside the dense
// top are only visible inside this window. Default 8.
func WithOverfetch(n int) Option {
	return func(s *Store) { s.overfetch = n }
}

// New creates a Store over an existing connection pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:      pool,
		logger:    slog.New(slog.DiscardHandler),
		fusion:    contexture.DefaultFusionParams(),
		overfetch: 8,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// vectorType returns "vector" or "vector(N)" depending on config.
func (s *Store) vectorType() string {
	if s.dimension > 0 {
		return fmt.Sprintf("vector(%d)", s.dimension)
	}
	return "vector"
}

// Init creates the pgvector extension, all tables, and the HNSW index.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	if _, err := s.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return s.fail("init", fmt.Errorf("create extension: %w", err))
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB,
			created_at BIGINT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INT NOT NULL,
			small TEXT NOT NULL,
			content TEXT NOT NULL,
			dense %s,
			sparse JSONB,
			metadata JSONB
		)`, s.vectorType()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sentences (
			id TEXT PRIMARY KEY,
			chunk_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding %s
		)`, s.vectorType()),
		`CREATE TABLE IF NOT EXISTS relevance_boosts (
			chunk_id TEXT PRIMARY KEY,
			boost DOUBLE PRECISION NOT NULL,
			votes INT NOT NULL,
			last_vote TEXT NOT NULL,
			last_updated BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sentences_chunk ON sentences(chunk_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_dense ON chunks USING hnsw (dense vector_cosine_ops)`,
	}
	for _, ddl := range stmts {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return s.fail("init", err)
		}
	}
	s.logger.Debug("postgres: init completed", "duration", time.Since(start))
	return nil
}

// InsertDocument inserts or replaces a document record.
func (s *Store) InsertDocument(ctx context.Context, doc contexture.Document) error {
	metaJSON, _ := json.Marshal(doc.Metadata)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, title, source, content, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET title = $2, source = $3, content = $4, metadata = $5`,
		doc.ID, doc.Title, doc.Source, doc.Content, metaJSON, doc.CreatedAt,
	)
	if err != nil {
		return s.fail("insert document", err)
	}
	return nil
}

// InsertChunk stores one chunk and its sentences in a single transaction.
func (s *Store) InsertChunk(ctx context.Context, chunk contexture.Chunk, sentences []contexture.Sentence) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return s.fail("insert chunk", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	sparseJSON, _ := json.Marshal(chunk.Sparse)
	metaJSON, _ := json.Marshal(chunk.Metadata)
	_, err = tx.Exec(ctx,
		`INSERT INTO chunks (id, document_id, chunk_index, small, content, dense, sparse, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET small = $4, content = $5, dense = $6, sparse = $7, metadata = $8`,
		chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Small, chunk.Content,
		nullableVector(chunk.Dense), sparseJSON, metaJSON,
	)
	if err != nil {
		return s.fail("insert chunk", err)
	}

	for _, sent := range sentences {
		_, err = tx.Exec(ctx,
			`INSERT INTO sentences (id, chunk_id, content, embedding)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET content = $3, embedding = $4`,
			sent.ID, sent.ChunkID, sent.Content, nullableVector(sent.Embedding),
		)
		if err != nil {
			return s.fail("insert sentence", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return s.fail("insert chunk", fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// SearchHybrid fetches an over-sized dense candidate window via pgvector,
// then re-scores it with the shared fusion formula. Candidates outside the
// window are invisible; WithOverfetch widens it.
func (s *Store) SearchHybrid(ctx context.Context, dense []float32, sparse map[uint32]float32, limit int) ([]contexture.SearchResult, error) {
	start := time.Now()
	fetchK := limit * s.overfetch
	if fetchK < limit {
		fetchK = limit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, small, content, sparse, metadata, 1 - (dense <=> $1::vector) AS sim
		 FROM chunks WHERE dense IS NOT NULL
		 ORDER BY dense <=> $1::vector
		 LIMIT $2`,
		vectorLiteral(dense), fetchK,
	)
	if err != nil {
		return nil, s.fail("search hybrid", err)
	}
	defer rows.Close()

	var results []contexture.SearchResult
	for rows.Next() {
		var r contexture.SearchResult
		var sparseJSON, metaJSON []byte
		var sim float64
		if err := rows.Scan(&r.ID, &r.SmallContent, &r.Content, &sparseJSON, &metaJSON, &sim); err != nil {
			return nil, s.fail("search hybrid", fmt.Errorf("scan chunk: %w", err))
		}
		var docSparse map[uint32]float32
		if len(sparseJSON) > 0 {
			_ = json.Unmarshal(sparseJSON, &docSparse)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &r.Metadata)
		}

		sparseScore := contexture.NormalizedLogDot(sparse, docSparse)
		r.Score = contexture.HybridScore(sim, sparseScore, s.fusion)
		if r.Score <= s.fusion.Threshold {
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("search hybrid", fmt.Errorf("iterate chunks: %w", err))
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	s.logger.Debug("postgres: search hybrid ok", "fetched", fetchK, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// GetChunks returns the chunks with the given IDs, without vectors.
func (s *Store) GetChunks(ctx context.Context, ids []string) ([]contexture.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, chunk_index, small, content, metadata FROM chunks WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, s.fail("get chunks", err)
	}
	defer rows.Close()
	return s.scanChunks(rows)
}

// ScanChunks returns every chunk without vectors, for keyword scoring.
func (s *Store) ScanChunks(ctx context.Context) ([]contexture.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, chunk_index, small, content, metadata FROM chunks ORDER BY document_id, chunk_index`)
	if err != nil {
		return nil, s.fail("scan chunks", err)
	}
	defer rows.Close()
	return s.scanChunks(rows)
}

func (s *Store) scanChunks(rows pgx.Rows) ([]contexture.Chunk, error) {
	var chunks []contexture.Chunk
	for rows.Next() {
		var c contexture.Chunk
		var metaJSON []byte
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Small, &c.Content, &metaJSON); err != nil {
			return nil, s.fail("scan chunks", fmt.Errorf("scan chunk: %w", err))
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &c.Metadata)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// AllSentences returns every indexed sentence with its embedding.
func (s *Store) AllSentences(ctx context.Context) ([]contexture.Sentence, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, chunk_id, content, embedding::text FROM sentences WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, s.fail("all sentences", err)
	}
	defer rows.Close()

	var sentences []contexture.Sentence
	for rows.Next() {
		var sent contexture.Sentence
		var emb string
		if err := rows.Scan(&sent.ID, &sent.ChunkID, &sent.Content, &emb); err != nil {
			return nil, s.fail("all sentences", fmt.Errorf("scan sentence: %w", err))
		}
		vec, err := parseVectorLiteral(emb)
		if err != nil {
			continue
		}
		sent.Embedding = vec
		sentences = append(sentences, sent)
	}
	return sentences, rows.Err()
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]contexture.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, source, content, metadata, created_at FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, s.fail("list documents", err)
	}
	defer rows.Close()

	var docs []contexture.Document
	for rows.Next() {
		var d contexture.Document
		var metaJSON []byte
		if err := rows.Scan(&d.ID, &d.Title, &d.Source, &d.Content, &metaJSON, &d.CreatedAt); err != nil {
			return nil, s.fail("list documents", fmt.Errorf("scan document: %w", err))
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &d.Metadata)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and cascades to its chunks, sentences,
// and relevance boosts.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return s.fail("delete document", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stmts := []string{
		`DELETE FROM sentences WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = $1)`,
		`DELETE FROM relevance_boosts WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = $1)`,
		`DELETE FROM chunks WHERE document_id = $1`,
		`DELETE FROM documents WHERE id = $1`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return s.fail("delete document", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return s.fail("delete document", fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// UpdateChunkRelevance applies one user vote to a chunk's boost record,
// creating it on the first vote.
func (s *Store) UpdateChunkRelevance(ctx context.Context, chunkID string, vote contexture.Vote) (contexture.RelevanceBoost, error) {
	var b contexture.RelevanceBoost
	err := s.pool.QueryRow(ctx,
		`SELECT chunk_id, boost, votes, last_vote, last_updated FROM relevance_boosts WHERE chunk_id = $1`, chunkID,
	).Scan(&b.ChunkID, &b.Boost, &b.Votes, &b.LastVote, &b.LastUpdated)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return contexture.RelevanceBoost{}, s.fail("update relevance", err)
	}

	b = contexture.ApplyVote(b, chunkID, vote, contexture.NowUnix())

	_, err = s.pool.Exec(ctx,
		`INSERT INTO relevance_boosts (chunk_id, boost, votes, last_vote, last_updated)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (chunk_id) DO UPDATE SET boost = $2, votes = $3, last_vote = $4, last_updated = $5`,
		b.ChunkID, b.Boost, b.Votes, string(b.LastVote), b.LastUpdated,
	)
	if err != nil {
		return contexture.RelevanceBoost{}, s.fail("update relevance", err)
	}
	return b, nil
}

// GetBoosts returns the boost factor for each listed chunk that has one.
func (s *Store) GetBoosts(ctx context.Context, chunkIDs []string) (map[string]float64, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT chunk_id, boost FROM relevance_boosts WHERE chunk_id = ANY($1)`, chunkIDs)
	if err != nil {
		return nil, s.fail("get boosts", err)
	}
	defer rows.Close()

	boosts := make(map[string]float64)
	for rows.Next() {
		var id string
		var boost float64
		if err := rows.Scan(&id, &boost); err != nil {
			return nil, s.fail("get boosts", fmt.Errorf("scan boost: %w", err))
		}
		boosts[id] = boost
	}
	return boosts, rows.Err()
}

// Close is a no-op: the pool is owned by the caller.
func (s *Store) Close() error { return nil }

// fail logs and wraps a backend error so callers can degrade gracefully on
// *contexture.StoreError.
func (s *Store) fail(op string, err error) error {
	s.logger.Error("postgres: "+op+" failed", "error", err)
	return &contexture.StoreError{Backend: "postgres", Err: fmt.Errorf("%s: %w", op, err)}
}

// nullableVector maps an empty vector to SQL NULL. pgvector rejects the
// empty literal [].
func nullableVector(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return vectorLiteral(v)
}

// vectorLiteral formats a float32 slice in pgvector's text format: [1,2,3].
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// parseVectorLiteral parses pgvector's text format back into a slice.
func parseVectorLiteral(s string) ([]float32, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector element %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
