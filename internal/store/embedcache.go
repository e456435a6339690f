package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
)

// EmbedCache persists computed embeddings so re-runs and retries never
// pay for the same text twice. Vectors are stored base64-encoded,
// little-endian float32. First write wins; an embedding for a key is
// never replaced.
//
// Namespaces keep corpora apart: document embeddings live under a
// collection/model namespace keyed by document ID, query embeddings
// under a query namespace keyed by a hash of the query text.
type EmbedCache struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// PassageNamespace returns the cache namespace for document embeddings
// of a collection, keyed by document ID.
func PassageNamespace(collection string) string {
	return "embeddings_" + collection
}

// QueryNamespace returns the cache namespace for query embeddings of a
// collection, keyed by a hash of the query text.
func QueryNamespace(collection string) string {
	return "query_" + collection
}

// NewEmbedCache opens or creates the cache at path. An empty path
// creates an in-memory cache for testing.
func NewEmbedCache(path string, cacheSizeMB int) (*EmbedCache, error) {
	db, err := openSQLite(path, cacheSizeMB)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		embedding TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize embedding schema: %w", err)
	}

	return &EmbedCache{db: db}, nil
}

// EncodeVector serializes a vector as base64 over little-endian
// float32 bytes.
func EncodeVector(vec []float32) string {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeVector reverses EncodeVector.
func DecodeVector(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding encoding: %w", err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding length: %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// Get returns the cached vector for a key, with a hit flag.
func (c *EmbedCache) Get(ctx context.Context, namespace, key string) ([]float32, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, false, fmt.Errorf("embedding cache is closed")
	}

	var encoded string
	err := c.db.QueryRowContext(ctx,
		`SELECT embedding FROM embeddings WHERE namespace = ? AND key = ?`,
		namespace, key).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query embedding %s/%s: %w", namespace, key, err)
	}

	vec, err := DecodeVector(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt embedding %s/%s: %w", namespace, key, err)
	}
	return vec, true, nil
}

// GetBatch returns cached vectors for keys, keyed by key. Misses are
// simply absent from the map.
func (c *EmbedCache) GetBatch(ctx context.Context, namespace string, keys []string) (map[string][]float32, error) {
	if len(keys) == 0 {
		return map[string][]float32{}, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("embedding cache is closed")
	}

	placeholders := make([]string, len(keys))
	args := make([]any, 0, len(keys)+1)
	args = append(args, namespace)
	for i, key := range keys {
		placeholders[i] = "?"
		args = append(args, key)
	}

	query := fmt.Sprintf(
		`SELECT key, embedding FROM embeddings WHERE namespace = ? AND key IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embedding batch: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32, len(keys))
	for rows.Next() {
		var key, encoded string
		if err := rows.Scan(&key, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		vec, err := DecodeVector(encoded)
		if err != nil {
			return nil, fmt.Errorf("corrupt embedding %s/%s: %w", namespace, key, err)
		}
		out[key] = vec
	}
	return out, rows.Err()
}

// PutBatch caches vectors for keys. Keys already cached keep their
// original vector.
func (c *EmbedCache) PutBatch(ctx context.Context, namespace string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("embedding cache is closed")
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO embeddings (namespace, key, embedding)
		VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for key, vec := range vectors {
		if _, err := stmt.ExecContext(ctx, namespace, key, EncodeVector(vec)); err != nil {
			return fmt.Errorf("failed to cache embedding %s/%s: %w", namespace, key, err)
		}
	}

	return tx.Commit()
}

// Put caches a single vector.
func (c *EmbedCache) Put(ctx context.Context, namespace, key string, vec []float32) error {
	return c.PutBatch(ctx, namespace, map[string][]float32{key: vec})
}

// Count returns the number of cached embeddings in a namespace.
func (c *EmbedCache) Count(ctx context.Context, namespace string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, fmt.Errorf("embedding cache is closed")
	}

	var n int64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE namespace = ?`, namespace).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}

// Close checkpoints and closes the cache. Idempotent.
func (c *EmbedCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return checkpointAndClose(c.db)
}
