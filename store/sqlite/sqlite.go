// Package sqlite implements contexture.Index using pure-Go SQLite with
// in-process brute-force hybrid search. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/contexture-ai/contexture"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and row counts.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithFusionParams overrides the default fusion configuration.
func WithFusionParams(p contexture.FusionParams) StoreOption {
	return func(s *Store) { s.fusion = p }
}

// Store implements contexture.Index backed by a local SQLite file.
// Embeddings and sparse vectors are stored as JSON text; hybrid search runs
// in-process over every chunk.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	fusion contexture.FusionParams
}

var (
	_ contexture.Index            = (*Store)(nil)
	_ contexture.SentenceSearcher = (*Store)(nil)
	_ contexture.KeywordScanner   = (*Store)(nil)
	_ contexture.FeedbackStore    = (*Store)(nil)
)

// New creates a Store using a local SQLite file at dbPath. A single shared
// connection serializes all writers, eliminating SQLITE_BUSY errors from
// concurrent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with
		// the blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{
		db:     db,
		logger: slog.New(slog.DiscardHandler),
		fusion: contexture.DefaultFusionParams(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	tables := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			small TEXT NOT NULL,
			content TEXT NOT NULL,
			dense TEXT,
			sparse TEXT,
			metadata TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS sentences (
			id TEXT PRIMARY KEY,
			chunk_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS relevance_boosts (
			chunk_id TEXT PRIMARY KEY,
			boost REAL NOT NULL,
			votes INTEGER NOT NULL,
			last_vote TEXT NOT NULL,
			last_updated INTEGER NOT NULL
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return s.fail("init", fmt.Errorf("create table: %w", err))
		}
	}

	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sentences_chunk ON sentences(chunk_id)`)

	s.logger.Debug("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// InsertDocument inserts or replaces a document record.
func (s *Store) InsertDocument(ctx context.Context, doc contexture.Document) error {
	start := time.Now()
	var metaJSON *string
	if len(doc.Metadata) > 0 {
		data, _ := json.Marshal(doc.Metadata)
		v := string(data)
		metaJSON = &v
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, title, source, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Source, doc.Content, metaJSON, doc.CreatedAt,
	)
	if err != nil {
		return s.fail("insert document", err)
	}
	s.logger.Debug("sqlite: insert document ok", "id", doc.ID, "duration", time.Since(start))
	return nil
}

// InsertChunk stores one chunk and its sentences in a single transaction,
// so concurrent readers see either none of it or all of it.
func (s *Store) InsertChunk(ctx context.Context, chunk contexture.Chunk, sentences []contexture.Sentence) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("insert chunk", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	denseJSON := marshalJSON(chunk.Dense)
	sparseJSON := marshalJSON(chunk.Sparse)
	var metaJSON *string
	if len(chunk.Metadata) > 0 {
		data, _ := json.Marshal(chunk.Metadata)
		v := string(data)
		metaJSON = &v
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunks (id, document_id, chunk_index, small, content, dense, sparse, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Small, chunk.Content, denseJSON, sparseJSON, metaJSON,
	)
	if err != nil {
		return s.fail("insert chunk", err)
	}

	for _, sent := range sentences {
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO sentences (id, chunk_id, content, embedding) VALUES (?, ?, ?, ?)`,
			sent.ID, sent.ChunkID, sent.Content, marshalJSON(sent.Embedding),
		)
		if err != nil {
			return s.fail("insert sentence", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.fail("insert chunk", fmt.Errorf("commit tx: %w", err))
	}
	s.logger.Debug("sqlite: insert chunk ok", "id", chunk.ID, "sentences", len(sentences), "duration", time.Since(start))
	return nil
}

// SearchHybrid scores every chunk against the dense and sparse query
// vectors with the shared fusion formula, drops scores at or below the
// threshold, and returns the best `limit` results.
func (s *Store) SearchHybrid(ctx context.Context, dense []float32, sparse map[uint32]float32, limit int) ([]contexture.SearchResult, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, small, content, dense, sparse, metadata FROM chunks WHERE dense IS NOT NULL`)
	if err != nil {
		return nil, s.fail("search hybrid", err)
	}
	defer rows.Close()

	var results []contexture.SearchResult
	scanned := 0
	for rows.Next() {
		var r contexture.SearchResult
		var denseJSON, sparseJSON, metaJSON sql.NullString
		if err := rows.Scan(&r.ID, &r.SmallContent, &r.Content, &denseJSON, &sparseJSON, &metaJSON); err != nil {
			return nil, s.fail("search hybrid", fmt.Errorf("scan chunk: %w", err))
		}
		scanned++

		var docDense []float32
		if denseJSON.Valid {
			if err := json.Unmarshal([]byte(denseJSON.String), &docDense); err != nil {
				continue
			}
		}
		var docSparse map[uint32]float32
		if sparseJSON.Valid {
			_ = json.Unmarshal([]byte(sparseJSON.String), &docSparse)
		}
		if metaJSON.Valid {
			_ = json.Unmarshal([]byte(metaJSON.String), &r.Metadata)
		}

		denseScore := contexture.CosineSimilarity(dense, docDense)
		sparseScore := contexture.NormalizedLogDot(sparse, docSparse)
		r.Score = contexture.HybridScore(denseScore, sparseScore, s.fusion)
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
	s.logger.Debug("sqlite: search hybrid ok", "scanned", scanned, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// GetChunks returns the chunks with the given IDs, without vectors.
func (s *Store) GetChunks(ctx context.Context, ids []string) ([]contexture.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT id, document_id, chunk_index, small, content, metadata FROM chunks WHERE id IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail("get chunks", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// ScanChunks returns every chunk without vectors, for keyword scoring.
func (s *Store) ScanChunks(ctx context.Context) ([]contexture.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, small, content, metadata FROM chunks ORDER BY document_id, chunk_index`)
	if err != nil {
		return nil, s.fail("scan chunks", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func scanChunkRows(rows *sql.Rows) ([]contexture.Chunk, error) {
	var chunks []contexture.Chunk
	for rows.Next() {
		var c contexture.Chunk
		var metaJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Small, &c.Content, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if metaJSON.Valid {
			_ = json.Unmarshal([]byte(metaJSON.String), &c.Metadata)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// AllSentences returns every indexed sentence with its embedding.
func (s *Store) AllSentences(ctx context.Context) ([]contexture.Sentence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chunk_id, content, embedding FROM sentences WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, s.fail("all sentences", err)
	}
	defer rows.Close()

	var sentences []contexture.Sentence
	for rows.Next() {
		var sent contexture.Sentence
		var embJSON string
		if err := rows.Scan(&sent.ID, &sent.ChunkID, &sent.Content, &embJSON); err != nil {
			return nil, s.fail("all sentences", fmt.Errorf("scan sentence: %w", err))
		}
		if err := json.Unmarshal([]byte(embJSON), &sent.Embedding); err != nil {
			continue
		}
		sentences = append(sentences, sent)
	}
	return sentences, rows.Err()
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]contexture.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, source, content, metadata, created_at FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, s.fail("list documents", err)
	}
	defer rows.Close()

	var docs []contexture.Document
	for rows.Next() {
		var d contexture.Document
		var metaJSON sql.NullString
		if err := rows.Scan(&d.ID, &d.Title, &d.Source, &d.Content, &metaJSON, &d.CreatedAt); err != nil {
			return nil, s.fail("list documents", fmt.Errorf("scan document: %w", err))
		}
		if metaJSON.Valid {
			_ = json.Unmarshal([]byte(metaJSON.String), &d.Metadata)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and cascades to its chunks, sentences,
// and relevance boosts.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("delete document", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sentences WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)`, id); err != nil {
		return s.fail("delete document sentences", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM relevance_boosts WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)`, id); err != nil {
		return s.fail("delete document boosts", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return s.fail("delete document chunks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return s.fail("delete document", err)
	}
	if err := tx.Commit(); err != nil {
		return s.fail("delete document", fmt.Errorf("commit tx: %w", err))
	}
	s.logger.Debug("sqlite: delete document ok", "id", id, "duration", time.Since(start))
	return nil
}

// UpdateChunkRelevance applies one user vote to a chunk's boost record,
// creating it on the first vote. Read-modify-write, last writer wins.
func (s *Store) UpdateChunkRelevance(ctx context.Context, chunkID string, vote contexture.Vote) (contexture.RelevanceBoost, error) {
	var b contexture.RelevanceBoost
	err := s.db.QueryRowContext(ctx,
		`SELECT chunk_id, boost, votes, last_vote, last_updated FROM relevance_boosts WHERE chunk_id = ?`, chunkID,
	).Scan(&b.ChunkID, &b.Boost, &b.Votes, &b.LastVote, &b.LastUpdated)
	if err != nil && err != sql.ErrNoRows {
		return contexture.RelevanceBoost{}, s.fail("update relevance", err)
	}

	b = contexture.ApplyVote(b, chunkID, vote, contexture.NowUnix())

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO relevance_boosts (chunk_id, boost, votes, last_vote, last_updated)
		 VALUES (?, ?, ?, ?, ?)`,
		b.ChunkID, b.Boost, b.Votes, string(b.LastVote), b.LastUpdated,
	)
	if err != nil {
		return contexture.RelevanceBoost{}, s.fail("update relevance", err)
	}
	s.logger.Debug("sqlite: relevance updated", "chunk_id", chunkID, "vote", vote, "boost", b.Boost, "votes", b.Votes)
	return b, nil
}

// GetBoosts returns the boost factor for each listed chunk that has one.
func (s *Store) GetBoosts(ctx context.Context, chunkIDs []string) (map[string]float64, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT chunk_id, boost FROM relevance_boosts WHERE chunk_id IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
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

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// fail logs and wraps a backend error so callers can degrade gracefully on
// *contexture.StoreError.
func (s *Store) fail(op string, err error) error {
	s.logger.Error("sqlite: "+op+" failed", "error", err)
	return &contexture.StoreError{Backend: "sqlite", Err: fmt.Errorf("%s: %w", op, err)}
}

// marshalJSON serializes a vector as JSON text, or nil for an empty vector.
func marshalJSON(v any) *string {
	switch t := v.(type) {
	case []float32:
		if len(t) == 0 {
			return nil
		}
	case map[uint32]float32:
		if len(t) == 0 {
			return nil
		}
	}
	data, _ := json.Marshal(v)
	out := string(data)
	return &out
}
