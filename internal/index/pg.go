package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
)

// PostgresConfig controls the postgres backend.
type PostgresConfig struct {
	// DSN is the connection string.
	DSN string
	// Collection names the table. Lowercase letters, digits, and
	// underscores only.
	Collection string
	// Dimensions is the embedding width. Required.
	Dimensions int
}

// PostgresIndex stores documents in one pgvector-enabled table. The
// dense leg orders by cosine distance on an HNSW index; the keyword
// leg ranks a generated tsvector column with ts_rank_cd. The table
// uses the 'simple' text search configuration because the corpus
// mixes languages and any single stemmer would mangle most of them.
type PostgresIndex struct {
	pool  *pgxpool.Pool
	table string
	dims  int
}

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func tableName(collection string) (string, error) {
	if collection == "" {
		return "wikidex", nil
	}
	if !tableNamePattern.MatchString(collection) {
		return "", errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("collection %q is not usable as a table name", collection), nil).
			WithSuggestion("Use lowercase letters, digits, and underscores")
	}
	return collection, nil
}

// NewPostgresIndex connects, verifies reachability, and creates the
// table and its indexes if they do not exist.
func NewPostgresIndex(ctx context.Context, cfg PostgresConfig) (*PostgresIndex, error) {
	if cfg.DSN == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid,
			"postgres backend selected but no DSN configured", nil).
			WithSuggestion("Set index.postgres_dsn or WIKIDEX_INDEX_POSTGRES_DSN")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("index dimensions must be positive, got %d", cfg.Dimensions), nil)
	}
	table, err := tableName(cfg.Collection)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "invalid postgres DSN", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.New(errors.ErrCodeIndexUnavailable, "cannot reach postgres", err).
			WithSuggestion("Check index.postgres_dsn and that the server accepts connections")
	}

	p := &PostgresIndex{pool: pool, table: table, dims: cfg.Dimensions}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Debug("postgres_index_ready", slog.String("table", table), slog.Int("dimensions", cfg.Dimensions))
	return p, nil
}

func (p *PostgresIndex) ensureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return errors.New(errors.ErrCodeIndexUnavailable, "pgvector extension is unavailable", err).
			WithSuggestion("Install pgvector and run CREATE EXTENSION vector as a superuser")
	}

	createTable := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	doc_id      text PRIMARY KEY,
	qid         text NOT NULL,
	chunk_id    integer NOT NULL,
	language    text NOT NULL,
	md5         text NOT NULL,
	label       text NOT NULL DEFAULT '',
	description text NOT NULL DEFAULT '',
	aliases     jsonb NOT NULL DEFAULT '[]',
	date        text NOT NULL DEFAULT '',
	is_item     boolean NOT NULL DEFAULT false,
	is_property boolean NOT NULL DEFAULT false,
	dump_date   text NOT NULL DEFAULT '',
	content     text NOT NULL,
	tsv         tsvector GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED,
	embedding   vector(%d)
)`, p.table, p.dims)
	if _, err := p.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table %s: %w", p.table, err)
	}

	ddl := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, p.table, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_qid_idx ON %s (qid)`, p.table, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_language_idx ON %s (language)`, p.table, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_tsv_idx ON %s USING gin (tsv)`, p.table, p.table),
	}
	for _, stmt := range ddl {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", p.table, err)
		}
	}
	return nil
}

// InsertMany upserts documents in one round trip per batch.
func (p *PostgresIndex) InsertMany(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("document count %d does not match vector count %d", len(docs), len(vectors))
	}
	if len(docs) == 0 {
		return nil
	}

	upsert := fmt.Sprintf(`
INSERT INTO %s
	(doc_id, qid, chunk_id, language, md5, label, description, aliases,
	 date, is_item, is_property, dump_date, content, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (doc_id) DO UPDATE SET
	qid = EXCLUDED.qid,
	chunk_id = EXCLUDED.chunk_id,
	language = EXCLUDED.language,
	md5 = EXCLUDED.md5,
	label = EXCLUDED.label,
	description = EXCLUDED.description,
	aliases = EXCLUDED.aliases,
	date = EXCLUDED.date,
	is_item = EXCLUDED.is_item,
	is_property = EXCLUDED.is_property,
	dump_date = EXCLUDED.dump_date,
	content = EXCLUDED.content,
	embedding = EXCLUDED.embedding`, p.table)

	batch := &pgx.Batch{}
	for i, doc := range docs {
		if len(vectors[i]) != p.dims {
			return errors.New(errors.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector for %s has %d dimensions, index expects %d",
					doc.ID, len(vectors[i]), p.dims), nil)
		}
		aliases, err := aliasesJSON(doc.Aliases)
		if err != nil {
			return fmt.Errorf("failed to encode aliases for %s: %w", doc.ID, err)
		}
		batch.Queue(upsert,
			doc.ID, doc.QID, doc.ChunkID, doc.Language, doc.MD5,
			doc.Label, doc.Description, aliases, doc.Date,
			doc.IsItem, doc.IsProperty, doc.DumpDate, doc.Text,
			pgvector.NewVector(vectors[i]))
	}

	br := p.pool.SendBatch(ctx, batch)
	var execErr error
	for range docs {
		if _, err := br.Exec(); err != nil {
			execErr = err
			break
		}
	}
	closeErr := br.Close()
	if execErr != nil {
		return fmt.Errorf("failed to upsert documents: %w", execErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to finish upsert batch: %w", closeErr)
	}
	return nil
}

// SearchVector returns the k nearest documents by cosine similarity.
// Filters run server side, so a QID search scores exactly that
// entity's rows.
func (p *PostgresIndex) SearchVector(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(vector) != p.dims {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has %d dimensions, index expects %d", len(vector), p.dims), nil)
	}

	args := []any{pgvector.NewVector(vector)}
	conds := []string{"embedding IS NOT NULL"}
	argN := 2
	if len(filter.Languages) > 0 {
		conds = append(conds, fmt.Sprintf("language = ANY($%d::text[])", argN))
		args = append(args, filter.Languages)
		argN++
	}
	if filter.QID != "" {
		conds = append(conds, fmt.Sprintf("qid = $%d", argN))
		args = append(args, filter.QID)
		argN++
	}
	args = append(args, k)

	query := fmt.Sprintf(`
SELECT doc_id, (1 - (embedding <=> $1::vector(%d)))::float8 AS score
FROM %s
WHERE %s
ORDER BY embedding <=> $1::vector(%d)
LIMIT $%d`, p.dims, p.table, strings.Join(conds, " AND "), p.dims, argN)

	return p.queryResults(ctx, query, args)
}

// SearchKeyword ranks full-text matches, then tops up with arbitrary
// rows at the match-all floor score so the result fills k the way the
// local keyword leg does.
func (p *PostgresIndex) SearchKeyword(ctx context.Context, queryStr string, k int, filter Filter) ([]Result, error) {
	if k <= 0 || strings.TrimSpace(queryStr) == "" {
		return nil, nil
	}

	args := []any{queryStr}
	conds := []string{"t.tsv @@ q.tsq"}
	argN := 2
	if len(filter.Languages) > 0 {
		conds = append(conds, fmt.Sprintf("t.language = ANY($%d::text[])", argN))
		args = append(args, filter.Languages)
		argN++
	}
	if filter.QID != "" {
		conds = append(conds, fmt.Sprintf("t.qid = $%d", argN))
		args = append(args, filter.QID)
		argN++
	}
	args = append(args, k)

	query := fmt.Sprintf(`
WITH q AS (SELECT websearch_to_tsquery('simple', $1) AS tsq)
SELECT t.doc_id, ts_rank_cd(t.tsv, q.tsq)::float8 AS score
FROM %s AS t, q
WHERE %s
ORDER BY score DESC, t.doc_id
LIMIT $%d`, p.table, strings.Join(conds, " AND "), argN)

	results, err := p.queryResults(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(results) >= k {
		return results, nil
	}
	return p.topUpKeyword(ctx, results, k, filter)
}

func (p *PostgresIndex) topUpKeyword(ctx context.Context, results []Result, k int, filter Filter) ([]Result, error) {
	exclude := make([]string, len(results))
	for i, r := range results {
		exclude[i] = r.ID
	}

	args := []any{exclude}
	conds := []string{"NOT (doc_id = ANY($1::text[]))"}
	argN := 2
	if len(filter.Languages) > 0 {
		conds = append(conds, fmt.Sprintf("language = ANY($%d::text[])", argN))
		args = append(args, filter.Languages)
		argN++
	}
	if filter.QID != "" {
		conds = append(conds, fmt.Sprintf("qid = $%d", argN))
		args = append(args, filter.QID)
		argN++
	}
	args = append(args, k-len(results))

	query := fmt.Sprintf(`
SELECT doc_id, %g::float8 AS score
FROM %s
WHERE %s
ORDER BY doc_id
LIMIT $%d`, matchAllBoost, p.table, strings.Join(conds, " AND "), argN)

	extra, err := p.queryResults(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return append(results, extra...), nil
}

func (p *PostgresIndex) queryResults(ctx context.Context, query string, args []any) ([]Result, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Fetch returns documents in docID order, skipping absent IDs.
func (p *PostgresIndex) Fetch(ctx context.Context, docIDs []string) ([]Document, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
SELECT doc_id, qid, chunk_id, language, md5, label, description, aliases,
	date, is_item, is_property, dump_date, content
FROM %s
WHERE doc_id = ANY($1::text[])`, p.table)

	rows, err := p.pool.Query(ctx, query, docIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch query failed: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Document, len(docIDs))
	for rows.Next() {
		var doc Document
		var aliases []byte
		err := rows.Scan(&doc.ID, &doc.QID, &doc.ChunkID, &doc.Language, &doc.MD5,
			&doc.Label, &doc.Description, &aliases, &doc.Date,
			&doc.IsItem, &doc.IsProperty, &doc.DumpDate, &doc.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal(aliases, &doc.Aliases); err != nil {
			return nil, fmt.Errorf("failed to decode aliases for %s: %w", doc.ID, err)
		}
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(byID))
	for _, id := range docIDs {
		if doc, ok := byID[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (p *PostgresIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Ping probes the connection.
func (p *PostgresIndex) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Flush is a no-op; postgres commits on write.
func (p *PostgresIndex) Flush(ctx context.Context) error {
	return nil
}

// Close releases the connection pool.
func (p *PostgresIndex) Close() error {
	p.pool.Close()
	return nil
}

func aliasesJSON(aliases []string) (string, error) {
	if aliases == nil {
		return "[]", nil
	}
	data, err := json.Marshal(aliases)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
