package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/exowanderer/WikidataTextEmbedding/internal/wikidata"
)

// LangStore holds the per-language projection of the dump: for every
// sighted ID, its label, description, aliases, and cleaned claims in
// one target language. Rows are immutable once written; re-running a
// pass over the same dump inserts nothing new.
type LangStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// EntityRecord is one projected entity.
type EntityRecord struct {
	ID          string
	Label       string
	Description string
	Aliases     []string
	Claims      map[string][]wikidata.Claim
}

// NewLangStore opens or creates a language store at path. An empty
// path creates an in-memory store for testing.
func NewLangStore(path string, cacheSizeMB int) (*LangStore, error) {
	db, err := openSQLite(path, cacheSizeMB)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		aliases TEXT NOT NULL DEFAULT '[]',
		claims TEXT NOT NULL DEFAULT '{}'
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize entity schema: %w", err)
	}

	return &LangStore{db: db}, nil
}

// BulkInsert writes a batch of projected entities. Existing rows win:
// conflicts are ignored, so a resumed pass never overwrites.
func (s *LangStore) BulkInsert(ctx context.Context, records []*EntityRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("language store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO entities (id, label, description, aliases, claims)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		aliases, claims, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Label, rec.Description, aliases, claims); err != nil {
			return fmt.Errorf("failed to insert entity %s: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

func encodeRecord(rec *EntityRecord) (aliases, claims string, err error) {
	aliases, claims = "[]", "{}"
	if rec.Aliases != nil {
		data, err := json.Marshal(rec.Aliases)
		if err != nil {
			return "", "", fmt.Errorf("failed to encode aliases for %s: %w", rec.ID, err)
		}
		aliases = string(data)
	}
	if rec.Claims != nil {
		data, err := json.Marshal(rec.Claims)
		if err != nil {
			return "", "", fmt.Errorf("failed to encode claims for %s: %w", rec.ID, err)
		}
		claims = string(data)
	}
	return aliases, claims, nil
}

func scanRecord(scan func(dest ...any) error) (*EntityRecord, error) {
	var rec EntityRecord
	var aliases, claims string
	if err := scan(&rec.ID, &rec.Label, &rec.Description, &aliases, &claims); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(aliases), &rec.Aliases); err != nil {
		return nil, fmt.Errorf("failed to decode aliases for %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(claims), &rec.Claims); err != nil {
		return nil, fmt.Errorf("failed to decode claims for %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// Get returns one projected entity, or nil if absent.
func (s *LangStore) Get(ctx context.Context, id string) (*EntityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("language store is closed")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, description, aliases, claims FROM entities WHERE id = ?`, id)
	rec, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity %s: %w", id, err)
	}
	return rec, nil
}

// GetBatch returns the projected entities for ids, keyed by ID. Absent
// IDs are simply missing from the map.
func (s *LangStore) GetBatch(ctx context.Context, ids []string) (map[string]*EntityRecord, error) {
	if len(ids) == 0 {
		return map[string]*EntityRecord{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("language store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT id, label, description, aliases, claims FROM entities WHERE id IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity batch: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*EntityRecord, len(ids))
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		out[rec.ID] = rec
	}
	return out, rows.Err()
}

// Each streams every projected entity to fn in primary key order.
// Returning an error from fn stops the iteration.
func (s *LangStore) Each(ctx context.Context, fn func(rec *EntityRecord) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("language store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, description, aliases, claims FROM entities ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return fmt.Errorf("failed to scan entity: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Label returns the stored label for an ID. The second return reports
// whether the entity exists at all; a present entity may still have an
// empty label.
func (s *LangStore) Label(ctx context.Context, id string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, fmt.Errorf("language store is closed")
	}

	var label string
	err := s.db.QueryRowContext(ctx, `SELECT label FROM entities WHERE id = ?`, id).Scan(&label)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query label for %s: %w", id, err)
	}
	return label, true, nil
}

// Count returns the number of projected entities.
func (s *LangStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("language store is closed")
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return n, nil
}

// Close checkpoints and closes the store. Idempotent.
func (s *LangStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return checkpointAndClose(s.db)
}
