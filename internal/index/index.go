// Package index stores embedded chunks and answers vector and keyword
// searches over them. Two backends implement the same interface: a
// local composite (HNSW graph, bleve keyword index, SQLite chunk
// store) and a remote Postgres table with pgvector. Both identify
// chunks by the composite "<QID>_<language>_<n>" document ID, so a
// result from either backend resolves to the same chunk.
package index

import (
	"context"
	"strconv"
	"strings"
)

// Document is one embedded chunk with its retrieval metadata.
type Document struct {
	// ID is the composite document identifier, see DocID.
	ID          string
	QID         string
	ChunkID     int
	Language    string
	Text        string
	MD5         string
	Label       string
	Description string
	Aliases     []string
	Date        string
	IsItem      bool
	IsProperty  bool
	DumpDate    string
}

// Result is one search hit. Vector scores are cosine similarity;
// keyword scores are backend-native relevance. Scores from different
// legs are not comparable.
type Result struct {
	ID    string
	Score float64
}

// Filter restricts a search to a subset of documents. Zero value
// means no restriction. Languages is a disjunction; QID matches one
// entity's chunks exactly.
type Filter struct {
	Languages []string
	QID       string
}

func (f Filter) empty() bool {
	return len(f.Languages) == 0 && f.QID == ""
}

// DocumentIndex is the storage and search surface shared by the local
// and postgres backends.
//
// InsertMany upserts: re-pushing a document ID replaces the previous
// row in every leg. SearchVector with a QID filter scores that
// entity's chunks exactly rather than approximately. Fetch returns
// documents in the order of docIDs, skipping absent IDs. Flush forces
// durable state to disk where the backend buffers in memory; Ping
// probes connectivity without touching data.
type DocumentIndex interface {
	InsertMany(ctx context.Context, docs []Document, vectors [][]float32) error
	SearchVector(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error)
	SearchKeyword(ctx context.Context, query string, k int, filter Filter) ([]Result, error)
	Fetch(ctx context.Context, docIDs []string) ([]Document, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Flush(ctx context.Context) error
	Close() error
}

// DocID builds the composite document identifier for one chunk of one
// entity in one language. Chunk numbers start at 1.
func DocID(qid, language string, chunk int) string {
	return qid + "_" + language + "_" + strconv.Itoa(chunk)
}

// splitDocID recovers the entity and language from a composite ID.
// QIDs never contain underscores and language codes use hyphens for
// locale variants ("zh-hans"), so splitting on "_" is unambiguous.
func splitDocID(id string) (qid, language string, ok bool) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
