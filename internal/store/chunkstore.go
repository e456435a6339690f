package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// ChunkRecord is one indexed chunk with its retrieval metadata. DocID
// is the composite "<QID>_<Language>_<ChunkID>" identifier shared with
// the vector and keyword indexes.
type ChunkRecord struct {
	DocID       string
	QID         string
	ChunkID     int
	Language    string
	MD5         string
	Label       string
	Description string
	Aliases     []string
	Date        string
	IsItem      bool
	IsProperty  bool
	DumpDate    string
	Content     string
}

// ChunkStore persists chunk content and metadata beside the local
// indexes. Vector and keyword legs return document IDs; this store
// turns them back into full results and answers metadata filters.
type ChunkStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewChunkStore opens or creates the chunk store at path. An empty
// path creates an in-memory store for testing.
func NewChunkStore(path string, cacheSizeMB int) (*ChunkStore, error) {
	db, err := openSQLite(path, cacheSizeMB)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		doc_id TEXT PRIMARY KEY,
		qid TEXT NOT NULL,
		chunk_id INTEGER NOT NULL,
		language TEXT NOT NULL,
		md5 TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		aliases TEXT NOT NULL DEFAULT '[]',
		date TEXT NOT NULL DEFAULT '',
		is_item INTEGER NOT NULL DEFAULT 0,
		is_property INTEGER NOT NULL DEFAULT 0,
		dump_date TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_qid ON chunks(qid);
	CREATE INDEX IF NOT EXISTS idx_chunks_language ON chunks(language);

	CREATE TABLE IF NOT EXISTS chunk_embeddings (
		doc_id TEXT PRIMARY KEY,
		embedding TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize chunk schema: %w", err)
	}

	return &ChunkStore{db: db}, nil
}

// SaveBatch upserts chunk records. Replays of the same document ID
// replace the row, keeping the store aligned with the indexes.
func (s *ChunkStore) SaveBatch(ctx context.Context, records []*ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
			(doc_id, qid, chunk_id, language, md5, label, description,
			 aliases, date, is_item, is_property, dump_date, content)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		aliases := "[]"
		if rec.Aliases != nil {
			data, err := json.Marshal(rec.Aliases)
			if err != nil {
				return fmt.Errorf("failed to encode aliases for %s: %w", rec.DocID, err)
			}
			aliases = string(data)
		}
		_, err := stmt.ExecContext(ctx,
			rec.DocID, rec.QID, rec.ChunkID, rec.Language, rec.MD5,
			rec.Label, rec.Description, aliases, rec.Date,
			boolInt(rec.IsItem), boolInt(rec.IsProperty), rec.DumpDate, rec.Content)
		if err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", rec.DocID, err)
		}
	}

	return tx.Commit()
}

const chunkColumns = `doc_id, qid, chunk_id, language, md5, label, description,
	aliases, date, is_item, is_property, dump_date, content`

func scanChunk(scan func(dest ...any) error) (*ChunkRecord, error) {
	var rec ChunkRecord
	var aliases string
	var isItem, isProperty int
	err := scan(&rec.DocID, &rec.QID, &rec.ChunkID, &rec.Language, &rec.MD5,
		&rec.Label, &rec.Description, &aliases, &rec.Date,
		&isItem, &isProperty, &rec.DumpDate, &rec.Content)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(aliases), &rec.Aliases); err != nil {
		return nil, fmt.Errorf("failed to decode aliases for %s: %w", rec.DocID, err)
	}
	rec.IsItem = isItem != 0
	rec.IsProperty = isProperty != 0
	return &rec, nil
}

// Get returns one chunk record, or nil if absent.
func (s *ChunkStore) Get(ctx context.Context, docID string) (*ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM chunks WHERE doc_id = ?`, chunkColumns), docID)
	rec, err := scanChunk(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %s: %w", docID, err)
	}
	return rec, nil
}

// GetBatch returns chunk records in the order of docIDs, skipping any
// that are absent.
func (s *ChunkStore) GetBatch(ctx context.Context, docIDs []string) ([]*ChunkRecord, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	placeholders := make([]string, len(docIDs))
	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT %s FROM chunks WHERE doc_id IN (%s)`,
		chunkColumns, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk batch: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*ChunkRecord, len(docIDs))
	for rows.Next() {
		rec, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		byID[rec.DocID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*ChunkRecord, 0, len(docIDs))
	for _, id := range docIDs {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SaveEmbeddings stores document vectors beside their chunks. The
// retriever reads them back to score a comparator's chunks exactly
// instead of going through the approximate index.
func (s *ChunkStore) SaveEmbeddings(ctx context.Context, docIDs []string, vectors [][]float32) error {
	if len(docIDs) != len(vectors) {
		return fmt.Errorf("doc id count %d does not match vector count %d", len(docIDs), len(vectors))
	}
	if len(docIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunk_embeddings (doc_id, embedding)
		VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare embedding insert: %w", err)
	}
	defer stmt.Close()

	for i, id := range docIDs {
		if _, err := stmt.ExecContext(ctx, id, EncodeVector(vectors[i])); err != nil {
			return fmt.Errorf("failed to save embedding for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// GetEmbeddings returns stored vectors keyed by document ID. IDs with
// no stored vector are absent from the map.
func (s *ChunkStore) GetEmbeddings(ctx context.Context, docIDs []string) (map[string][]float32, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	placeholders := make([]string, len(docIDs))
	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT doc_id, embedding FROM chunk_embeddings WHERE doc_id IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32, len(docIDs))
	for rows.Next() {
		var id, encoded string
		if err := rows.Scan(&id, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		vec, err := DecodeVector(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", id, err)
		}
		out[id] = vec
	}
	return out, rows.Err()
}

// DocIDsByQID returns the document IDs for a set of entity QIDs,
// optionally restricted to a set of languages. Used to scope
// comparative retrieval to one comparator's chunks.
func (s *ChunkStore) DocIDsByQID(ctx context.Context, qids, languages []string) ([]string, error) {
	if len(qids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("chunk store is closed")
	}

	var sb strings.Builder
	args := make([]any, 0, len(qids)+len(languages))
	sb.WriteString(`SELECT doc_id FROM chunks WHERE qid IN (`)
	for i, qid := range qids {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("?")
		args = append(args, qid)
	}
	sb.WriteString(")")
	if len(languages) > 0 {
		sb.WriteString(" AND language IN (")
		for i, lang := range languages {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("?")
			args = append(args, lang)
		}
		sb.WriteString(")")
	}
	sb.WriteString(" ORDER BY doc_id")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks by qid: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan doc id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes chunk records by document ID.
func (s *ChunkStore) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("chunk store is closed")
	}

	placeholders := make([]string, len(docIDs))
	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	in := strings.Join(placeholders, ",")
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM chunks WHERE doc_id IN (%s)`, in), args...); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM chunk_embeddings WHERE doc_id IN (%s)`, in), args...); err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *ChunkStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("chunk store is closed")
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Close checkpoints and closes the store. Idempotent.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return checkpointAndClose(s.db)
}
