package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/exowanderer/WikidataTextEmbedding/internal/config"
	"github.com/exowanderer/WikidataTextEmbedding/internal/embed"
	"github.com/exowanderer/WikidataTextEmbedding/internal/index"
	"github.com/exowanderer/WikidataTextEmbedding/internal/store"
	"github.com/exowanderer/WikidataTextEmbedding/internal/textify"
	"github.com/exowanderer/WikidataTextEmbedding/internal/ui"
)

// hydrateBatch is how many IDs each worker hydrates from the language
// store in one query.
const hydrateBatch = 256

// RunIndex executes stage C: textify every projected entity, chunk it,
// embed the chunks, and push documents to the index. Work is spread
// across workers that each own a BatchWriter; the ID store enumeration
// feeds them through a channel.
func (r *Runner) RunIndex(ctx context.Context) (*Result, error) {
	if r.ids == nil {
		return nil, fmt.Errorf("id store is required")
	}
	if r.entities == nil {
		return nil, fmt.Errorf("language store is required")
	}
	if r.cache == nil {
		return nil, fmt.Errorf("embedding cache is required")
	}
	if r.index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if r.embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	start := time.Now()

	release, err := r.acquireLock()
	if err != nil {
		return nil, err
	}
	defer release()

	loc, err := textify.ForCode(r.config.Language.Locale)
	if err != nil {
		return nil, err
	}
	chunker := textify.NewChunker(textify.WordTokenizer{}, r.config.Chunking.MaxTokens)
	txt := textify.New(loc, r.config.Language.Target, r.entities, r.config.Stores.LabelCacheSize)

	idStats, err := r.ids.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read id store stats: %w", err)
	}
	total := idStats.InWikipedia

	workers := r.config.Dump.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers()
	}
	namespace := store.PassageNamespace(r.config.Index.Collection)

	slog.Info("ingest_index_started",
		slog.String("collection", r.config.Index.Collection),
		slog.String("backend", r.config.Index.Backend),
		slog.String("language", r.config.Language.Target),
		slog.Int("workers", workers),
		slog.Int64("entities", total))

	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageEmbedding,
		Total:   int(total),
		Message: fmt.Sprintf("Shipping %d entities", total),
	})

	writers := make([]*BatchWriter, workers)
	for i := range writers {
		writers[i] = NewBatchWriter(r.index, r.cache, r.embedder, namespace, r.config.Index.PushBatch)
	}
	textifyTimes := make([]time.Duration, workers)

	var processed, shipped, warnings atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	idCh := make(chan []string, workers*2)

	g.Go(func() error {
		defer close(idCh)
		batch := make([]string, 0, hydrateBatch)
		err := r.ids.EachInWikipedia(gctx, func(id string) error {
			batch = append(batch, id)
			if len(batch) < hydrateBatch {
				return nil
			}
			out := batch
			batch = make([]string, 0, hydrateBatch)
			select {
			case idCh <- out:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			select {
			case idCh <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		worker := i
		g.Go(func() error {
			return r.shipWorker(gctx, idCh, txt, chunker, writers[worker],
				&textifyTimes[worker], &processed, &shipped, &warnings)
		})
	}

	stop := r.progressLoop(ctx, ui.StageEmbedding, int(total), processed.Load)
	runErr := g.Wait()
	stop()

	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StagePushing,
		Message: "Flushing residual batches",
	})

	fctx, cancel := graceContext(ctx)
	var flushErr error
	for _, w := range writers {
		if _, err := w.Flush(fctx); err != nil && flushErr == nil {
			flushErr = err
		}
	}
	if err := r.index.Flush(fctx); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("failed to flush index: %w", err)
	}
	cancel()

	var totals WriterStats
	var maxEmbed, maxPush, maxTextify time.Duration
	for i, w := range writers {
		s := w.Stats()
		totals.Pushed += s.Pushed
		totals.Embedded += s.Embedded
		totals.CacheHits += s.CacheHits
		totals.Flushes += s.Flushes
		if s.EmbedTime > maxEmbed {
			maxEmbed = s.EmbedTime
		}
		if s.PushTime > maxPush {
			maxPush = s.PushTime
		}
		if textifyTimes[i] > maxTextify {
			maxTextify = textifyTimes[i]
		}
	}

	result := &Result{
		Entities: processed.Load(),
		Matched:  shipped.Load(),
		Chunks:   totals.Pushed,
		Warnings: int(warnings.Load()),
		Duration: time.Since(start),
	}
	if runErr != nil {
		return result, runErr
	}
	if flushErr != nil {
		return result, flushErr
	}

	r.saveCheckpoint("index", result)

	slog.Info("ingest_index_complete",
		slog.Int64("entities", result.Entities),
		slog.Int64("shipped", result.Matched),
		slog.Int64("chunks", result.Chunks),
		slog.Int64("embedded", totals.Embedded),
		slog.Int64("cache_hits", totals.CacheHits),
		slog.Int("warnings", result.Warnings),
		slog.String("duration", result.Duration.String()))

	info := embed.Info(ctx, r.embedder)
	r.renderer.Complete(ui.CompletionStats{
		Entities: int(result.Matched),
		Chunks:   int(result.Chunks),
		Duration: result.Duration,
		Warnings: result.Warnings,
		Stages: ui.StageTimings{
			Textify: maxTextify,
			Embed:   maxEmbed,
			Push:    maxPush,
		},
		Embedder: ui.EmbedderInfo{
			Provider:   string(info.Provider),
			Model:      info.Model,
			Dimensions: info.Dimensions,
		},
	})
	return result, nil
}

// shipWorker drains ID batches, hydrates the records, and feeds the
// documents of each entity into this worker's BatchWriter. Recoverable
// per-entity failures are logged and skipped; store and writer errors
// abort the run.
func (r *Runner) shipWorker(ctx context.Context, idCh <-chan []string,
	txt *textify.Textifier, chunker *textify.Chunker, writer *BatchWriter,
	textifyTime *time.Duration, processed, shipped, warnings *atomic.Int64) error {

	lang := r.config.Language.Target
	dumpDate := r.config.Dump.Date

	for batch := range idCh {
		recs, err := r.entities.GetBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to hydrate entities: %w", err)
		}
		for _, id := range batch {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			rec := recs[id]
			if rec == nil {
				slog.Warn("entity_not_projected", slog.String("id", id))
				r.renderer.AddError(ui.ErrorEvent{
					ID:     id,
					Err:    fmt.Errorf("entity not projected into %s", lang),
					IsWarn: true,
				})
				warnings.Add(1)
				processed.Add(1)
				continue
			}

			t0 := time.Now()
			chunks, err := txt.Chunks(ctx, rec, chunker)
			*textifyTime += time.Since(t0)
			if err != nil {
				slog.Warn("textify_failed",
					slog.String("id", id),
					slog.String("error", err.Error()))
				r.renderer.AddError(ui.ErrorEvent{ID: id, Err: err, IsWarn: true})
				warnings.Add(1)
				processed.Add(1)
				continue
			}

			now := time.Now().UTC().Format(time.RFC3339)
			emitted := 0
			for i, text := range chunks {
				if strings.TrimSpace(text) == "" {
					continue
				}
				sum := md5.Sum([]byte(text))
				doc := index.Document{
					ID:          index.DocID(rec.ID, lang, i+1),
					QID:         rec.ID,
					ChunkID:     i + 1,
					Language:    lang,
					Text:        text,
					MD5:         hex.EncodeToString(sum[:]),
					Label:       rec.Label,
					Description: rec.Description,
					Aliases:     rec.Aliases,
					Date:        now,
					IsItem:      strings.HasPrefix(rec.ID, "Q"),
					IsProperty:  strings.HasPrefix(rec.ID, "P"),
					DumpDate:    dumpDate,
				}
				if err := writer.Add(ctx, doc); err != nil {
					return err
				}
				emitted++
			}
			if emitted > 0 {
				shipped.Add(1)
			}
			processed.Add(1)
		}
	}
	return nil
}
