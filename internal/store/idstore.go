package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/exowanderer/WikidataTextEmbedding/internal/wikidata"
)

// IDStore accumulates every identifier sighted during the first dump
// pass. Flags only ever turn on: once an ID is marked as in Wikipedia
// or as a property, later sightings cannot unmark it.
type IDStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// IDRecord is one row of the ID store.
type IDRecord struct {
	ID          string
	InWikipedia bool
	IsProperty  bool
}

// IDStats summarizes the store for status reporting.
type IDStats struct {
	Total       int64
	InWikipedia int64
	Properties  int64
}

// NewIDStore opens or creates the ID store at path. An empty path
// creates an in-memory store for testing.
func NewIDStore(path string, cacheSizeMB int) (*IDStore, error) {
	db, err := openSQLite(path, cacheSizeMB)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS wikidata_ids (
		id TEXT PRIMARY KEY,
		in_wikipedia INTEGER NOT NULL DEFAULT 0,
		is_property INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_ids_in_wikipedia
		ON wikidata_ids(in_wikipedia) WHERE in_wikipedia = 1;
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize id schema: %w", err)
	}

	return &IDStore{db: db}, nil
}

// BulkUpsert merges a batch of references into the store. Duplicate IDs
// within the batch are collapsed first; on conflict with an existing
// row the flags are OR-ed, never cleared.
func (s *IDStore) BulkUpsert(ctx context.Context, refs []wikidata.Ref) error {
	if len(refs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("id store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO wikidata_ids (id, in_wikipedia, is_property)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			in_wikipedia = in_wikipedia OR excluded.in_wikipedia,
			is_property = is_property OR excluded.is_property`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, ref := range wikidata.MergeRefs(refs) {
		if _, err := stmt.ExecContext(ctx, ref.ID, boolInt(ref.InWikipedia), boolInt(ref.IsProperty)); err != nil {
			return fmt.Errorf("failed to upsert id %s: %w", ref.ID, err)
		}
	}

	return tx.Commit()
}

// Has reports whether an ID was sighted during the first pass.
func (s *IDStore) Has(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, fmt.Errorf("id store is closed")
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM wikidata_ids WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query id %s: %w", id, err)
	}
	return true, nil
}

// Get returns the record for an ID, or nil if it was never sighted.
func (s *IDStore) Get(ctx context.Context, id string) (*IDRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("id store is closed")
	}

	var rec IDRecord
	var inWiki, isProp int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, in_wikipedia, is_property FROM wikidata_ids WHERE id = ?`, id).
		Scan(&rec.ID, &inWiki, &isProp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get id %s: %w", id, err)
	}
	rec.InWikipedia = inWiki != 0
	rec.IsProperty = isProp != 0
	return &rec, nil
}

// EachInWikipedia streams every in-Wikipedia ID to fn in primary key
// order. Returning an error from fn stops the iteration.
func (s *IDStore) EachInWikipedia(ctx context.Context, fn func(id string) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("id store is closed")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM wikidata_ids WHERE in_wikipedia = 1 ORDER BY id`)
	if err != nil {
		return fmt.Errorf("failed to query in-wikipedia ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan id: %w", err)
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Stats returns row counts for status reporting.
func (s *IDStore) Stats(ctx context.Context) (IDStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return IDStats{}, fmt.Errorf("id store is closed")
	}

	var st IDStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(in_wikipedia), 0),
			COALESCE(SUM(is_property), 0)
		FROM wikidata_ids`).
		Scan(&st.Total, &st.InWikipedia, &st.Properties)
	if err != nil {
		return IDStats{}, fmt.Errorf("failed to query id stats: %w", err)
	}
	return st, nil
}

// Close checkpoints and closes the store. Idempotent.
func (s *IDStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return checkpointAndClose(s.db)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
