package ingest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/exowanderer/WikidataTextEmbedding/internal/store"
	"github.com/exowanderer/WikidataTextEmbedding/internal/wikidata"
)

// DefaultBatchEntities is the stage B flush threshold when none is
// configured.
const DefaultBatchEntities = 1000

// EntityProjector is the stage B dump handler. Entities sighted during
// stage A are projected into the target language: label and
// description fall back to the multilingual code, aliases union both,
// and claims are cleaned of deprecated ranks and bookkeeping keys.
// Everything else in the dump is skipped.
//
// Inserts are conflict-ignore, so re-running the stage over the same
// dump writes nothing new.
type EntityProjector struct {
	mu        sync.Mutex
	ids       *store.IDStore
	entities  *store.LangStore
	language  string
	batchSize int
	batch     []*store.EntityRecord

	projected atomic.Int64
}

// NewEntityProjector creates a stage B handler projecting into
// entities.
func NewEntityProjector(ids *store.IDStore, entities *store.LangStore, language string, batchSize int) *EntityProjector {
	if batchSize <= 0 {
		batchSize = DefaultBatchEntities
	}
	return &EntityProjector{
		ids:       ids,
		entities:  entities,
		language:  language,
		batchSize: batchSize,
	}
}

// Handle implements the dump handler for stage B.
func (p *EntityProjector) Handle(ctx context.Context, entity *wikidata.Entity) error {
	sighted, err := p.ids.Has(ctx, entity.ID)
	if err != nil {
		return err
	}
	if !sighted {
		return nil
	}
	p.projected.Add(1)

	rec := &store.EntityRecord{
		ID:          entity.ID,
		Label:       entity.Label(p.language),
		Description: entity.Description(p.language),
		Aliases:     entity.AliasValues(p.language),
		Claims:      entity.CleanClaims(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.batch = append(p.batch, rec)
	if len(p.batch) < p.batchSize {
		return nil
	}
	return p.flushLocked(ctx)
}

// Flush writes any residual batch. Called once at end-of-stream.
func (p *EntityProjector) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx)
}

func (p *EntityProjector) flushLocked(ctx context.Context) error {
	if len(p.batch) == 0 {
		return nil
	}
	if err := p.entities.BulkInsert(ctx, p.batch); err != nil {
		return err
	}
	p.batch = p.batch[:0]
	return nil
}

// Projected returns how many sighted entities were projected.
func (p *EntityProjector) Projected() int64 {
	return p.projected.Load()
}

// Pending returns the size of the unflushed batch.
func (p *EntityProjector) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batch)
}
