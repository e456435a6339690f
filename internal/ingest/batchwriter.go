package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/exowanderer/WikidataTextEmbedding/internal/embed"
	"github.com/exowanderer/WikidataTextEmbedding/internal/index"
	"github.com/exowanderer/WikidataTextEmbedding/internal/store"
)

// DefaultPushBatch is the BatchWriter buffer size when none is
// configured.
const DefaultPushBatch = 100

// BatchWriter buffers outbound documents, resolves their vectors
// through the embedding cache, and pushes them to the index in bulk.
// A document whose ID is already cached never reaches the embedder;
// fresh vectors are cached before the index push so an interrupted
// run keeps them.
//
// A writer is single-threaded: each stage C worker owns one. Workers
// share the cache and the index only.
type BatchWriter struct {
	idx       index.DocumentIndex
	cache     *store.EmbedCache
	embedder  embed.Embedder
	namespace string
	batchSize int

	docs []index.Document

	// backoff is the initial retry sleep; tests shrink it.
	backoff time.Duration

	stats WriterStats
}

// WriterStats counts one writer's work.
type WriterStats struct {
	Pushed    int64
	Embedded  int64
	CacheHits int64
	Flushes   int64
	EmbedTime time.Duration
	PushTime  time.Duration
}

// NewBatchWriter creates a writer pushing to idx under the given cache
// namespace.
func NewBatchWriter(idx index.DocumentIndex, cache *store.EmbedCache, embedder embed.Embedder, namespace string, batchSize int) *BatchWriter {
	if batchSize <= 0 {
		batchSize = DefaultPushBatch
	}
	return &BatchWriter{
		idx:       idx,
		cache:     cache,
		embedder:  embedder,
		namespace: namespace,
		batchSize: batchSize,
		backoff:   retryInitialBackoff,
	}
}

// Add buffers one document and flushes when the buffer is full.
func (w *BatchWriter) Add(ctx context.Context, doc index.Document) error {
	w.docs = append(w.docs, doc)
	if len(w.docs) < w.batchSize {
		return nil
	}
	_, err := w.Flush(ctx)
	return err
}

// Flush resolves vectors for the buffered documents and pushes them to
// the index, retrying transport failures with capped exponential
// backoff until success or cancellation. It reports whether any work
// was done.
func (w *BatchWriter) Flush(ctx context.Context) (bool, error) {
	if len(w.docs) == 0 {
		return false, nil
	}

	ids := make([]string, len(w.docs))
	for i, doc := range w.docs {
		ids[i] = doc.ID
	}

	cached, err := w.cache.GetBatch(ctx, w.namespace, ids)
	if err != nil {
		return false, fmt.Errorf("failed to check embedding cache: %w", err)
	}

	vectors := make([][]float32, len(w.docs))
	var missIdx []int
	var missTexts []string
	for i, doc := range w.docs {
		if vec, ok := cached[doc.ID]; ok {
			vectors[i] = vec
			w.stats.CacheHits++
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, doc.Text)
	}

	if len(missTexts) > 0 {
		var fresh [][]float32
		embedStart := time.Now()
		err := retryUntil(ctx, "embed_batch", w.backoff, w.embedder.Available, func() error {
			var embedErr error
			fresh, embedErr = w.embedder.EmbedBatch(ctx, missTexts, embed.TaskPassage)
			return embedErr
		})
		w.stats.EmbedTime += time.Since(embedStart)
		if err != nil {
			return false, err
		}
		if len(fresh) != len(missTexts) {
			return false, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missTexts))
		}

		put := make(map[string][]float32, len(missIdx))
		for j, i := range missIdx {
			vectors[i] = fresh[j]
			put[w.docs[i].ID] = fresh[j]
		}
		if err := w.cache.PutBatch(ctx, w.namespace, put); err != nil {
			return false, fmt.Errorf("failed to cache embeddings: %w", err)
		}
		w.stats.Embedded += int64(len(missTexts))
	}

	docs := w.docs
	pushStart := time.Now()
	err = retryUntil(ctx, "index_push", w.backoff, w.pingOK, func() error {
		return w.idx.InsertMany(ctx, docs, vectors)
	})
	w.stats.PushTime += time.Since(pushStart)
	if err != nil {
		return false, err
	}

	slog.Debug("batch_pushed",
		slog.Int("docs", len(docs)),
		slog.Int("embedded", len(missTexts)),
		slog.Int("cached", len(docs)-len(missTexts)))

	w.stats.Pushed += int64(len(docs))
	w.stats.Flushes++
	w.docs = nil
	return true, nil
}

func (w *BatchWriter) pingOK(ctx context.Context) bool {
	return w.idx.Ping(ctx) == nil
}

// Pending returns the number of buffered documents.
func (w *BatchWriter) Pending() int {
	return len(w.docs)
}

// Stats returns the writer's counters.
func (w *BatchWriter) Stats() WriterStats {
	return w.stats
}
