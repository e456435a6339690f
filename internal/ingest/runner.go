package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/exowanderer/WikidataTextEmbedding/internal/config"
	"github.com/exowanderer/WikidataTextEmbedding/internal/dump"
	"github.com/exowanderer/WikidataTextEmbedding/internal/embed"
	"github.com/exowanderer/WikidataTextEmbedding/internal/index"
	"github.com/exowanderer/WikidataTextEmbedding/internal/store"
	"github.com/exowanderer/WikidataTextEmbedding/internal/ui"
)

// Dependencies contains the injected collaborators for a Runner. RunIDs
// needs the ID store only; RunEntities adds the language store;
// RunIndex needs everything.
type Dependencies struct {
	// Renderer for progress display (required).
	Renderer ui.Renderer

	// Config is the loaded configuration (required).
	Config *config.Config

	// IDs is the stage A identifier store.
	IDs *store.IDStore

	// Entities is the stage B language projection store.
	Entities *store.LangStore

	// Cache is the persistent embedding cache.
	Cache *store.EmbedCache

	// Index is the downstream document index.
	Index index.DocumentIndex

	// Embedder turns chunk text into vectors.
	Embedder embed.Embedder
}

// Runner executes pipeline stages with progress reporting.
type Runner struct {
	renderer ui.Renderer
	config   *config.Config
	ids      *store.IDStore
	entities *store.LangStore
	cache    *store.EmbedCache
	index    index.DocumentIndex
	embedder embed.Embedder
}

// Result contains the outcome of one stage run.
type Result struct {
	// Lines is the number of raw dump lines read (stage A/B).
	Lines int64

	// Entities is the number of entities the stage saw: parsed from
	// the dump for A/B, enumerated from the ID store for C.
	Entities int64

	// Matched is the stage-specific hit count: Wikipedia matches for
	// A, projections for B, entities shipped for C.
	Matched int64

	// Chunks is the number of documents pushed to the index (stage C).
	Chunks int64

	// ParseErrors counts undecodable dump lines.
	ParseErrors int64

	// Warnings counts recoverable per-entity failures.
	Warnings int

	// Duration is the total stage time.
	Duration time.Duration
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps Dependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return &Runner{
		renderer: deps.Renderer,
		config:   deps.Config,
		ids:      deps.IDs,
		entities: deps.Entities,
		cache:    deps.Cache,
		index:    deps.Index,
		embedder: deps.Embedder,
	}, nil
}

// RunIDs executes stage A: stream the dump and collect every sighted
// identifier into the ID store.
func (r *Runner) RunIDs(ctx context.Context) (*Result, error) {
	if r.ids == nil {
		return nil, fmt.Errorf("id store is required")
	}
	start := time.Now()

	release, err := r.acquireLock()
	if err != nil {
		return nil, err
	}
	defer release()

	collector := NewIDCollector(r.ids, r.config.Language.Target, r.config.Dump.BatchIDs)

	slog.Info("ingest_ids_started",
		slog.String("path", r.config.Dump.Path),
		slog.String("language", r.config.Language.Target),
		slog.Int("workers", r.config.Dump.Workers),
		slog.Int("skip_lines", r.config.Dump.SkipLines))

	stats, runErr := r.runDumpPass(ctx, ui.StageIDs, collector.Handle)

	fctx, cancel := graceContext(ctx)
	flushErr := retryUntil(fctx, "ids_flush", 0, nil, func() error {
		return collector.Flush(fctx)
	})
	cancel()

	result := &Result{
		Lines:       stats.LinesRead,
		Entities:    stats.Entities,
		Matched:     collector.Matched(),
		ParseErrors: stats.ParseErrors,
		Duration:    time.Since(start),
	}
	if runErr != nil {
		return result, runErr
	}
	if flushErr != nil {
		return result, flushErr
	}

	r.saveCheckpoint("ids", result)

	slog.Info("ingest_ids_complete",
		slog.Int64("lines", result.Lines),
		slog.Int64("entities", result.Entities),
		slog.Int64("matched", result.Matched),
		slog.Int64("parse_errors", result.ParseErrors),
		slog.String("duration", result.Duration.String()))

	r.renderer.Complete(ui.CompletionStats{
		Entities: int(result.Matched),
		Duration: result.Duration,
		Stages:   ui.StageTimings{Read: stats.Duration},
	})
	return result, nil
}

// RunEntities executes stage B: stream the dump again and project every
// sighted entity into the target language.
func (r *Runner) RunEntities(ctx context.Context) (*Result, error) {
	if r.ids == nil {
		return nil, fmt.Errorf("id store is required")
	}
	if r.entities == nil {
		return nil, fmt.Errorf("language store is required")
	}
	start := time.Now()

	release, err := r.acquireLock()
	if err != nil {
		return nil, err
	}
	defer release()

	projector := NewEntityProjector(r.ids, r.entities, r.config.Language.Target, r.config.Dump.BatchEntities)

	slog.Info("ingest_entities_started",
		slog.String("path", r.config.Dump.Path),
		slog.String("language", r.config.Language.Target),
		slog.Int("workers", r.config.Dump.Workers),
		slog.Int("skip_lines", r.config.Dump.SkipLines))

	stats, runErr := r.runDumpPass(ctx, ui.StageEntities, projector.Handle)

	fctx, cancel := graceContext(ctx)
	flushErr := retryUntil(fctx, "entities_flush", 0, nil, func() error {
		return projector.Flush(fctx)
	})
	cancel()

	result := &Result{
		Lines:       stats.LinesRead,
		Entities:    stats.Entities,
		Matched:     projector.Projected(),
		ParseErrors: stats.ParseErrors,
		Duration:    time.Since(start),
	}
	if runErr != nil {
		return result, runErr
	}
	if flushErr != nil {
		return result, flushErr
	}

	r.saveCheckpoint("entities", result)

	slog.Info("ingest_entities_complete",
		slog.Int64("lines", result.Lines),
		slog.Int64("entities", result.Entities),
		slog.Int64("projected", result.Matched),
		slog.Int64("parse_errors", result.ParseErrors),
		slog.String("duration", result.Duration.String()))

	r.renderer.Complete(ui.CompletionStats{
		Entities: int(result.Matched),
		Duration: result.Duration,
		Stages:   ui.StageTimings{Read: stats.Duration},
	})
	return result, nil
}

// RunAll executes stages A, B, and C back to back over one dump.
func (r *Runner) RunAll(ctx context.Context) (*Result, error) {
	if _, err := r.RunIDs(ctx); err != nil {
		return nil, err
	}
	if _, err := r.RunEntities(ctx); err != nil {
		return nil, err
	}
	return r.RunIndex(ctx)
}

// runDumpPass streams the dump through handler with throughput logging
// and renderer updates.
func (r *Runner) runDumpPass(ctx context.Context, stage ui.Stage, handler dump.Handler) (dump.Stats, error) {
	reader, err := dump.NewReader(r.config.Dump.Path, dump.Options{
		Workers:   r.config.Dump.Workers,
		QueueSize: r.config.Dump.QueueSize,
		SkipLines: r.config.Dump.SkipLines,
		MaxItems:  r.config.Dump.MaxItems,
	})
	if err != nil {
		return dump.Stats{}, err
	}

	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   stage,
		Message: fmt.Sprintf("Reading %s", r.config.Dump.Path),
	})

	reporter := dump.NewReporter(slog.Default(), dump.DefaultReportInterval, reader.Processed)
	reporter.Start(ctx)
	defer reporter.Stop()

	stop := r.progressLoop(ctx, stage, 0, reader.Processed)
	defer stop()

	return reader.Run(ctx, handler)
}

// progressLoop feeds the renderer once a second from a counter
// snapshot. The returned func stops the loop.
func (r *Runner) progressLoop(ctx context.Context, stage ui.Stage, total int, snapshot func() int64) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.renderer.UpdateProgress(ui.ProgressEvent{
					Stage:   stage,
					Current: int(snapshot()),
					Total:   total,
				})
			}
		}
	}()
	return func() { close(done) }
}

// acquireLock guards the data directory against concurrent pipeline
// runs. In-memory configurations have nothing to guard.
func (r *Runner) acquireLock() (func(), error) {
	dir := r.config.Stores.Dir
	if dir == "" {
		return func() {}, nil
	}
	lock := store.NewPipelineLock(dir)
	if err := lock.TryAcquire(); err != nil {
		return nil, err
	}
	return func() { _ = lock.Release() }, nil
}

// saveCheckpoint records a completed stage. Failure to write it is
// worth a warning, not a failed run.
func (r *Runner) saveCheckpoint(stage string, result *Result) {
	dir := r.config.Stores.Dir
	if dir == "" {
		return
	}
	cp := Checkpoint{
		Stage:       stage,
		DumpPath:    r.config.Dump.Path,
		DumpDate:    r.config.Dump.Date,
		Language:    r.config.Language.Target,
		Entities:    result.Matched,
		Chunks:      result.Chunks,
		CompletedAt: time.Now().UTC(),
	}
	if err := SaveCheckpoint(dir, cp); err != nil {
		slog.Warn("failed to save checkpoint", slog.String("error", err.Error()))
	}
}
