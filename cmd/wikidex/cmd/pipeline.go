package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/exowanderer/WikidataTextEmbedding/internal/config"
	"github.com/exowanderer/WikidataTextEmbedding/internal/embed"
	"github.com/exowanderer/WikidataTextEmbedding/internal/index"
	"github.com/exowanderer/WikidataTextEmbedding/internal/ingest"
	"github.com/exowanderer/WikidataTextEmbedding/internal/store"
	"github.com/exowanderer/WikidataTextEmbedding/internal/ui"
)

// Store file names under the data directory. The entity store is
// per-language so switching language.target never mixes projections.
func idStorePath(cfg *config.Config) string {
	return filepath.Join(cfg.Stores.Dir, "ids.db")
}

func langStorePath(cfg *config.Config) string {
	return filepath.Join(cfg.Stores.Dir, "entities_"+cfg.Language.Target+".db")
}

func embedCachePath(cfg *config.Config) string {
	return filepath.Join(cfg.Stores.Dir, "embedcache.db")
}

// buildRenderer picks the progress renderer for a pipeline run. Quiet
// runs keep the pipeline silent; logs still reach the log file.
func buildRenderer(cmd *cobra.Command) ui.Renderer {
	out := cmd.OutOrStdout()
	if flagQuiet {
		return ui.NewPlainRenderer(ui.Config{Output: io.Discard})
	}
	return ui.NewRenderer(ui.Config{
		Output:  out,
		NoColor: ui.DetectNoColor(),
	})
}

// openSearchStack opens the embedder, the embedding cache, and the
// document index: the dependencies shared by stage C and the query
// side. The returned cleanup closes all three.
func openSearchStack(ctx context.Context, cfg *config.Config) (embed.Embedder, *store.EmbedCache, index.DocumentIndex, func(), error) {
	embedder, err := embed.New(ctx, cfg.Embedding)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	cache, err := store.NewEmbedCache(embedCachePath(cfg), cfg.Stores.CacheSizeMB)
	if err != nil {
		_ = embedder.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	idx, err := index.New(ctx, cfg.Index, cfg.Stores, embedder.Dimensions())
	if err != nil {
		_ = cache.Close()
		_ = embedder.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to open index: %w", err)
	}

	cleanup := func() {
		_ = idx.Close()
		_ = cache.Close()
		_ = embedder.Close()
	}
	return embedder, cache, idx, cleanup, nil
}

// stageNeeds selects which dependencies an ingest command opens.
// Every stage reads or writes the ID store; stage B adds the entity
// store; stage C and full runs need the whole set.
type stageNeeds struct {
	entities bool
	search   bool
}

// openRunner opens the stage dependencies under cfg.Stores.Dir and
// builds an ingest.Runner on them. The returned cleanup closes the
// opened stores in reverse order. The caller owns the renderer's
// Start/Stop lifecycle.
func openRunner(ctx context.Context, renderer ui.Renderer, cfg *config.Config, needs stageNeeds) (*ingest.Runner, func(), error) {
	if err := os.MkdirAll(cfg.Stores.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory %s: %w", cfg.Stores.Dir, err)
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := ingest.Dependencies{
		Renderer: renderer,
		Config:   cfg,
	}

	ids, err := store.NewIDStore(idStorePath(cfg), cfg.Stores.CacheSizeMB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open ID store: %w", err)
	}
	closers = append(closers, func() { _ = ids.Close() })
	deps.IDs = ids

	if needs.entities {
		entities, err := store.NewLangStore(langStorePath(cfg), cfg.Stores.CacheSizeMB)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to open entity store: %w", err)
		}
		closers = append(closers, func() { _ = entities.Close() })
		deps.Entities = entities
	}

	if needs.search {
		embedder, cache, idx, closeSearch, err := openSearchStack(ctx, cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, closeSearch)
		deps.Embedder = embedder
		deps.Cache = cache
		deps.Index = idx
	}

	runner, err := ingest.NewRunner(deps)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return runner, cleanup, nil
}

// requireDump ensures a dump file is configured before a dump pass.
func requireDump(cfg *config.Config) error {
	if cfg.Dump.Path == "" {
		return fmt.Errorf("no dump file configured: set --dump or dump.path in .wikidex.yaml")
	}
	return nil
}
