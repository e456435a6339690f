package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/exowanderer/WikidataTextEmbedding/internal/config"
	"github.com/exowanderer/WikidataTextEmbedding/internal/ingest"
)

// dumpOptions holds the per-run dump flag overrides.
type dumpOptions struct {
	dump      string
	dumpDate  string
	maxItems  int64
	skipLines int
	workers   int
}

func registerDumpFlags(cmd *cobra.Command, opts *dumpOptions) {
	cmd.Flags().StringVar(&opts.dump, "dump", "", "Dump file (.json, .json.gz, or .json.bz2)")
	cmd.Flags().StringVar(&opts.dumpDate, "dump-date", "", `Dump snapshot date stamped onto chunks, e.g. "2024-09-18"`)
	cmd.Flags().Int64Var(&opts.maxItems, "max-items", 0, "Stop after N entities (0 = whole dump)")
	cmd.Flags().IntVar(&opts.skipLines, "skip-lines", 0, "Skip the first N dump lines to resume a partial pass")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Consumer goroutines (0 = CPUs-1)")
}

func (o dumpOptions) apply(cfg *config.Config) {
	if o.dump != "" {
		cfg.Dump.Path = o.dump
	}
	if o.dumpDate != "" {
		cfg.Dump.Date = o.dumpDate
	}
	if o.maxItems > 0 {
		cfg.Dump.MaxItems = o.maxItems
	}
	if o.skipLines > 0 {
		cfg.Dump.SkipLines = o.skipLines
	}
	if o.workers > 0 {
		cfg.Dump.Workers = o.workers
	}
}

// applyOffline swaps the embedder for deterministic static vectors.
func applyOffline(cfg *config.Config, offline bool) {
	if offline {
		cfg.Embedding.Provider = "static"
	}
}

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the dump ingestion stages",
		Long: `Runs the staged dump ingestion. Each stage is restartable on its
own, so a week-long dump pass does not have to repeat when a later
stage fails:

  ids       first dump pass: collect identifiers and sightings
  entities  second dump pass: project entities with articles
  all       both passes, then the embed-and-push stage`,
	}

	cmd.AddCommand(newIngestIDsCmd())
	cmd.AddCommand(newIngestEntitiesCmd())
	cmd.AddCommand(newIngestAllCmd())

	return cmd
}

func newIngestIDsCmd() *cobra.Command {
	var opts dumpOptions

	cmd := &cobra.Command{
		Use:   "ids",
		Short: "First dump pass: collect identifiers and sightings",
		Long: `Streams the dump once and records every entity with a target-language
Wikipedia article, plus every property and claim target those entities
reference. Later stages project and embed only what this pass saw.`,
		Example: `  wikidex ingest ids --dump dumps/latest-all.json.bz2
  wikidex ingest ids --dump dumps/latest-all.json.bz2 --max-items 100000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIngestStage(ctx, cmd, opts, stageNeeds{},
				func(ctx context.Context, r *ingest.Runner) error {
					_, err := r.RunIDs(ctx)
					return err
				})
		},
	}

	registerDumpFlags(cmd, &opts)
	return cmd
}

func newIngestEntitiesCmd() *cobra.Command {
	var opts dumpOptions

	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Second dump pass: project entities with articles",
		Long: `Streams the dump again and stores a compact projection (label,
description, aliases, claims) of every entity the ids pass sighted.
Run 'wikidex ingest ids' first.`,
		Example: `  wikidex ingest entities --dump dumps/latest-all.json.bz2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIngestStage(ctx, cmd, opts, stageNeeds{entities: true},
				func(ctx context.Context, r *ingest.Runner) error {
					_, err := r.RunEntities(ctx)
					return err
				})
		},
	}

	registerDumpFlags(cmd, &opts)
	return cmd
}

func newIngestAllCmd() *cobra.Command {
	var (
		opts       dumpOptions
		collection string
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run every pipeline stage back to back",
		Long: `Runs both dump passes and then the embed-and-push stage in one go.
Useful for bounded runs with --max-items; for a full dump, running the
stages separately keeps restarts cheap.`,
		Example: `  wikidex ingest all --dump dumps/latest-all.json.bz2 --max-items 50000
  wikidex ingest all --dump sample.json --offline`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIngestStage(ctx, cmd, opts, stageNeeds{entities: true, search: true},
				func(ctx context.Context, r *ingest.Runner) error {
					_, err := r.RunAll(ctx)
					return err
				},
				func(cfg *config.Config) {
					if collection != "" {
						cfg.Index.Collection = collection
					}
					applyOffline(cfg, offline)
				})
		},
	}

	registerDumpFlags(cmd, &opts)
	cmd.Flags().StringVar(&collection, "collection", "", "Index collection name")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no network)")
	return cmd
}

// runIngestStage loads configuration, opens the stage dependencies,
// and runs one stage under the renderer lifecycle.
func runIngestStage(ctx context.Context, cmd *cobra.Command, opts dumpOptions, needs stageNeeds,
	run func(context.Context, *ingest.Runner) error, tweaks ...func(*config.Config)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts.apply(cfg)
	for _, tweak := range tweaks {
		tweak(cfg)
	}
	if err := requireDump(cfg); err != nil {
		return err
	}

	renderer := buildRenderer(cmd)
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	runner, cleanup, err := openRunner(ctx, renderer, cfg, needs)
	if err != nil {
		return err
	}
	defer cleanup()

	return run(ctx, runner)
}
