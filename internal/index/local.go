package index

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
	"github.com/exowanderer/WikidataTextEmbedding/internal/store"
)

const defaultOversample = 4

// LocalConfig controls the local composite backend.
type LocalConfig struct {
	// Dir is the directory holding the index files. Empty means fully
	// in-memory, used in tests.
	Dir string
	// Collection prefixes the index file names.
	Collection string
	// Dimensions is the embedding width. Required.
	Dimensions int
	// M and EfSearch tune the vector graph; zero picks defaults.
	M        int
	EfSearch int
	// Oversample multiplies K on language-filtered vector searches
	// before post-filtering.
	Oversample int
	// CacheSizeMB is the SQLite page cache for the chunk store.
	CacheSizeMB int
}

// LocalIndex is the on-disk backend: an HNSW graph for the dense leg,
// a bleve index for the keyword leg, and a SQLite chunk store holding
// content, metadata, and exact per-chunk embeddings.
//
// A language filter oversamples the graph and keeps hits whose
// document ID carries a wanted language. A QID filter skips the graph
// entirely: the entity's chunks are enumerated from the chunk store
// and scored exactly against their stored embeddings, so comparative
// retrieval never depends on approximate recall.
type LocalIndex struct {
	chunks     *store.ChunkStore
	vectors    *VectorIndex
	keywords   *KeywordIndex
	vectorPath string
	oversample int
}

// NewLocalIndex opens or creates the local backend under cfg.Dir.
func NewLocalIndex(cfg LocalConfig) (*LocalIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("index dimensions must be positive, got %d", cfg.Dimensions), nil)
	}
	if cfg.Collection == "" {
		cfg.Collection = "wikidex"
	}
	if cfg.Oversample <= 0 {
		cfg.Oversample = defaultOversample
	}

	var chunksPath, keywordPath, vectorPath string
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
		chunksPath = filepath.Join(cfg.Dir, cfg.Collection+".chunks.db")
		keywordPath = filepath.Join(cfg.Dir, cfg.Collection+".bleve")
		vectorPath = filepath.Join(cfg.Dir, cfg.Collection+".hnsw")
	}

	chunks, err := store.NewChunkStore(chunksPath, cfg.CacheSizeMB)
	if err != nil {
		return nil, err
	}

	keywords, err := NewKeywordIndex(keywordPath)
	if err != nil {
		_ = chunks.Close()
		return nil, err
	}

	vectors, err := openVectorIndex(vectorPath, cfg)
	if err != nil {
		_ = keywords.Close()
		_ = chunks.Close()
		return nil, err
	}

	return &LocalIndex{
		chunks:     chunks,
		vectors:    vectors,
		keywords:   keywords,
		vectorPath: vectorPath,
		oversample: cfg.Oversample,
	}, nil
}

func openVectorIndex(path string, cfg LocalConfig) (*VectorIndex, error) {
	vcfg := VectorConfig{Dimensions: cfg.Dimensions, M: cfg.M, EfSearch: cfg.EfSearch}
	if path == "" {
		return NewVectorIndex(vcfg)
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return NewVectorIndex(vcfg)
		}
		return nil, fmt.Errorf("failed to stat vector index: %w", err)
	}

	v, err := LoadVectorIndex(path)
	if err != nil {
		return nil, err
	}
	if v.Dimensions() != cfg.Dimensions {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("vector index at %s has %d dimensions, config wants %d",
				path, v.Dimensions(), cfg.Dimensions), nil).
			WithSuggestion("Reindex from scratch, or restore the previous embedding.dimensions value")
	}
	return v, nil
}

// InsertMany writes docs and their vectors to all three legs. The
// chunk store commits first so a crash leaves at worst chunks without
// index entries, which the next push repairs by upserting.
func (l *LocalIndex) InsertMany(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("document count %d does not match vector count %d", len(docs), len(vectors))
	}
	if len(docs) == 0 {
		return nil
	}

	records := make([]*store.ChunkRecord, len(docs))
	ids := make([]string, len(docs))
	for i := range docs {
		records[i] = chunkRecord(docs[i])
		ids[i] = docs[i].ID
	}

	if err := l.chunks.SaveBatch(ctx, records); err != nil {
		return fmt.Errorf("failed to store chunk batch: %w", err)
	}
	if err := l.chunks.SaveEmbeddings(ctx, ids, vectors); err != nil {
		return fmt.Errorf("failed to store embeddings: %w", err)
	}
	if err := l.vectors.Add(ids, vectors); err != nil {
		return err
	}
	if err := l.keywords.Index(ctx, docs); err != nil {
		return err
	}
	return nil
}

// SearchVector returns the k most similar documents.
func (l *LocalIndex) SearchVector(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	if filter.QID != "" {
		return l.searchVectorExact(ctx, vector, k, filter)
	}
	if len(filter.Languages) == 0 {
		return l.vectors.Search(vector, k)
	}

	wanted := make(map[string]struct{}, len(filter.Languages))
	for _, lang := range filter.Languages {
		wanted[lang] = struct{}{}
	}

	candidates, err := l.vectors.Search(vector, k*l.oversample)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, k)
	for _, c := range candidates {
		_, lang, ok := splitDocID(c.ID)
		if !ok {
			continue
		}
		if _, want := wanted[lang]; !want {
			continue
		}
		results = append(results, c)
		if len(results) == k {
			break
		}
	}
	return results, nil
}

func (l *LocalIndex) searchVectorExact(ctx context.Context, vector []float32, k int, filter Filter) ([]Result, error) {
	ids, err := l.chunks.DocIDsByQID(ctx, []string{filter.QID}, filter.Languages)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate chunks for %s: %w", filter.QID, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	stored, err := l.chunks.GetEmbeddings(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings for %s: %w", filter.QID, err)
	}

	results := make([]Result, 0, len(stored))
	for _, id := range ids {
		emb, ok := stored[id]
		if !ok {
			continue
		}
		results = append(results, Result{ID: id, Score: cosineSimilarity(vector, emb)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SearchKeyword returns the k best keyword matches.
func (l *LocalIndex) SearchKeyword(ctx context.Context, query string, k int, filter Filter) ([]Result, error) {
	return l.keywords.Search(ctx, query, k, filter)
}

// Fetch returns documents in docID order, skipping absent IDs.
func (l *LocalIndex) Fetch(ctx context.Context, docIDs []string) ([]Document, error) {
	recs, err := l.chunks.GetBatch(ctx, docIDs)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(recs))
	for i, rec := range recs {
		docs[i] = documentFromRecord(rec)
	}
	return docs, nil
}

// Count returns the number of stored chunks.
func (l *LocalIndex) Count(ctx context.Context) (int64, error) {
	return l.chunks.Count(ctx)
}

// Ping always succeeds; the local backend has no remote link.
func (l *LocalIndex) Ping(ctx context.Context) error {
	return nil
}

// Flush saves the vector graph to disk. The chunk store and keyword
// index persist as they go.
func (l *LocalIndex) Flush(ctx context.Context) error {
	if l.vectorPath == "" {
		return nil
	}
	return l.vectors.Save(l.vectorPath)
}

// Close releases all legs without saving the vector graph; call Flush
// first to persist it.
func (l *LocalIndex) Close() error {
	var firstErr error
	if err := l.keywords.Close(); err != nil {
		firstErr = err
	}
	if err := l.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := l.chunks.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// LocalStats reports per-leg document counts. The legs drift only
// when a previous run died between writes, so status surfaces all
// three side by side.
type LocalStats struct {
	Chunks   int64
	Vectors  int
	Keywords uint64
}

// Stats counts documents in each leg.
func (l *LocalIndex) Stats(ctx context.Context) (LocalStats, error) {
	chunks, err := l.chunks.Count(ctx)
	if err != nil {
		return LocalStats{}, err
	}
	keywords, err := l.keywords.Count()
	if err != nil {
		return LocalStats{}, err
	}
	return LocalStats{Chunks: chunks, Vectors: l.vectors.Count(), Keywords: keywords}, nil
}

func chunkRecord(doc Document) *store.ChunkRecord {
	return &store.ChunkRecord{
		DocID:       doc.ID,
		QID:         doc.QID,
		ChunkID:     doc.ChunkID,
		Language:    doc.Language,
		MD5:         doc.MD5,
		Label:       doc.Label,
		Description: doc.Description,
		Aliases:     doc.Aliases,
		Date:        doc.Date,
		IsItem:      doc.IsItem,
		IsProperty:  doc.IsProperty,
		DumpDate:    doc.DumpDate,
		Content:     doc.Text,
	}
}

func documentFromRecord(rec *store.ChunkRecord) Document {
	return Document{
		ID:          rec.DocID,
		QID:         rec.QID,
		ChunkID:     rec.ChunkID,
		Language:    rec.Language,
		Text:        rec.Content,
		MD5:         rec.MD5,
		Label:       rec.Label,
		Description: rec.Description,
		Aliases:     rec.Aliases,
		Date:        rec.Date,
		IsItem:      rec.IsItem,
		IsProperty:  rec.IsProperty,
		DumpDate:    rec.DumpDate,
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
