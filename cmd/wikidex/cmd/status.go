package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exowanderer/WikidataTextEmbedding/internal/config"
	"github.com/exowanderer/WikidataTextEmbedding/internal/embed"
	"github.com/exowanderer/WikidataTextEmbedding/internal/index"
	"github.com/exowanderer/WikidataTextEmbedding/internal/ingest"
	"github.com/exowanderer/WikidataTextEmbedding/internal/store"
	"github.com/exowanderer/WikidataTextEmbedding/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline store and index health",
		Long: `Display information about the pipeline data directory including:
  - ID and entity store row counts
  - Index document count and reachability
  - Embedding cache sizes (passages and queries)
  - Embedder status (provider, model, availability)
  - Last completed ingest stage`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !dirExists(cfg.Stores.Dir) {
		return fmt.Errorf("no data directory at %s\nRun 'wikidex ingest ids' to start a pipeline", cfg.Stores.Dir)
	}

	info, err := collectStatus(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, cfg *config.Config) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		Collection: cfg.Index.Collection,
		Backend:    strings.ToLower(cfg.Index.Backend),
	}

	if fileExists(idStorePath(cfg)) {
		ids, err := store.NewIDStore(idStorePath(cfg), cfg.Stores.CacheSizeMB)
		if err != nil {
			return info, fmt.Errorf("failed to open ID store: %w", err)
		}
		defer func() { _ = ids.Close() }()

		stats, err := ids.Stats(ctx)
		if err != nil {
			return info, err
		}
		info.IDsTotal = stats.Total
		info.IDsInWikipedia = stats.InWikipedia
		info.IDsProperties = stats.Properties
	}

	if fileExists(langStorePath(cfg)) {
		entities, err := store.NewLangStore(langStorePath(cfg), cfg.Stores.CacheSizeMB)
		if err != nil {
			return info, fmt.Errorf("failed to open entity store: %w", err)
		}
		defer func() { _ = entities.Close() }()

		if info.Entities, err = entities.Count(ctx); err != nil {
			return info, err
		}
	}

	if fileExists(embedCachePath(cfg)) {
		cache, err := store.NewEmbedCache(embedCachePath(cfg), cfg.Stores.CacheSizeMB)
		if err != nil {
			return info, fmt.Errorf("failed to open embedding cache: %w", err)
		}
		defer func() { _ = cache.Close() }()

		info.CachedPassages, _ = cache.Count(ctx, store.PassageNamespace(cfg.Index.Collection))
		info.CachedQueries, _ = cache.Count(ctx, store.QueryNamespace(cfg.Index.Collection))
	}

	// The checkpoint is advisory; absence just leaves the section blank.
	if cp, err := ingest.LoadCheckpoint(cfg.Stores.Dir); err == nil && cp != nil {
		info.LastStage = cp.Stage
		info.LastDumpDate = cp.DumpDate
		info.LastLanguage = cp.Language
		info.LastIngest = cp.CompletedAt
		info.Chunks = cp.Chunks
	}

	dims := cfg.Embedding.Dimensions
	embedder, err := embed.New(ctx, cfg.Embedding)
	if err != nil {
		info.EmbedderProvider = strings.ToLower(cfg.Embedding.Provider)
		info.EmbedderModel = cfg.Embedding.Model
		info.EmbedderStatus = "error"
	} else {
		defer func() { _ = embedder.Close() }()

		ei := embed.Info(ctx, embedder)
		info.EmbedderProvider = ei.Provider.String()
		info.EmbedderModel = ei.Model
		if ei.Available {
			info.EmbedderStatus = "ready"
		} else {
			info.EmbedderStatus = "offline"
		}
		dims = ei.Dimensions
	}

	if dims > 0 {
		idx, err := index.New(ctx, cfg.Index, cfg.Stores, dims)
		if err != nil {
			info.IndexStatus = "error"
		} else {
			defer func() { _ = idx.Close() }()

			if err := idx.Ping(ctx); err != nil {
				info.IndexStatus = "offline"
			} else {
				info.IndexStatus = "ready"
				info.IndexDocs, _ = idx.Count(ctx)
			}
		}
	} else {
		info.IndexStatus = "error"
	}

	info.DataSize, _ = dirSize(cfg.Stores.Dir)

	return info, nil
}

// dirSize sums the file sizes under dir.
func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func dirExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
