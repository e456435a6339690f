package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/exowanderer/WikidataTextEmbedding/internal/store"
	"github.com/exowanderer/WikidataTextEmbedding/internal/wikidata"
)

// DefaultBatchIDs is the stage A flush threshold when none is
// configured.
const DefaultBatchIDs = 1000

// IDCollector is the stage A dump handler. Entities with a Wikipedia
// page in the target language contribute their own identifier plus
// every identifier their claims and qualifiers reference; everything
// else is skipped. Refs accumulate in a batch flushed to the ID store
// at the configured threshold.
//
// Handle is called concurrently by the dump workers; the batch is
// guarded by a mutex and flushed under it, so at most one bulk upsert
// is in flight at a time.
type IDCollector struct {
	mu        sync.Mutex
	ids       *store.IDStore
	language  string
	batchSize int
	batch     []wikidata.Ref

	matched atomic.Int64
	flushes atomic.Int64
}

// NewIDCollector creates a stage A handler writing to ids.
func NewIDCollector(ids *store.IDStore, language string, batchSize int) *IDCollector {
	if batchSize <= 0 {
		batchSize = DefaultBatchIDs
	}
	return &IDCollector{
		ids:       ids,
		language:  language,
		batchSize: batchSize,
	}
}

// Handle implements the dump handler for stage A.
func (c *IDCollector) Handle(ctx context.Context, entity *wikidata.Entity) error {
	if !entity.InWikipedia(c.language) {
		return nil
	}
	c.matched.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.batch = append(c.batch, entity.Refs()...)
	if len(c.batch) < c.batchSize {
		return nil
	}
	return c.flushLocked(ctx)
}

// Flush writes any residual batch. Called once at end-of-stream.
func (c *IDCollector) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(ctx)
}

func (c *IDCollector) flushLocked(ctx context.Context) error {
	if len(c.batch) == 0 {
		return nil
	}
	if err := c.ids.BulkUpsert(ctx, c.batch); err != nil {
		return err
	}
	c.batch = c.batch[:0]
	c.flushes.Add(1)
	return nil
}

// Matched returns how many entities passed the Wikipedia predicate.
func (c *IDCollector) Matched() int64 {
	return c.matched.Load()
}

// Pending returns the size of the unflushed batch.
func (c *IDCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batch)
}
