package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var (
		dumpDate   string
		collection string
		workers    int
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Textify, chunk, embed, and push projected entities",
		Long: `Runs the final pipeline stage over the entities projected by
'wikidex ingest entities': renders each one into locale-aware prose,
splits it into token-bounded chunks, embeds the chunks, and pushes
them to the document index.

Embeddings come from the cache when a chunk's text is unchanged, so
re-running after an interruption only embeds what is missing. When the
embedder or index goes away mid-run, pushes back off and retry until
it returns or the run is cancelled.`,
		Example: `  wikidex index
  wikidex index --collection wikidata_de
  wikidex index --offline`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dumpDate != "" {
				cfg.Dump.Date = dumpDate
			}
			if collection != "" {
				cfg.Index.Collection = collection
			}
			if workers > 0 {
				cfg.Dump.Workers = workers
			}
			applyOffline(cfg, offline)

			renderer := buildRenderer(cmd)
			if err := renderer.Start(ctx); err != nil {
				return err
			}
			defer func() { _ = renderer.Stop() }()

			runner, cleanup, err := openRunner(ctx, renderer, cfg, stageNeeds{entities: true, search: true})
			if err != nil {
				return err
			}
			defer cleanup()

			_, err = runner.RunIndex(ctx)
			return err
		},
	}

	cmd.Flags().StringVar(&dumpDate, "dump-date", "", `Dump snapshot date stamped onto chunks, e.g. "2024-09-18"`)
	cmd.Flags().StringVar(&collection, "collection", "", "Index collection name")
	cmd.Flags().IntVar(&workers, "workers", 0, "Textify and embed workers (0 = CPUs-1)")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no network)")

	return cmd
}
