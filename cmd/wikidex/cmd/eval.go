package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/exowanderer/WikidataTextEmbedding/internal/output"
	"github.com/exowanderer/WikidataTextEmbedding/internal/retrieve"
)

func newEvalCmd() *cobra.Command {
	var (
		queriesFile string
		k           int
		mode        string
		language    string
		jsonOutput  bool
		offline     bool
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score retrieval quality against expected entities",
		Long: `Reads query,expected[,language] rows from a CSV file, retrieves for
every query, and reports Hits@K and mean reciprocal rank. A case is a
hit when the expected entity ranks within the top K distinct entities;
several chunks of one entity occupy a single rank.

Query embeddings are cached between runs, so sweeping K or comparing
modes over the same case file embeds each query once.`,
		Example: `  wikidex eval --queries eval/cases.csv
  wikidex eval --queries eval/cases.csv --k 5 --mode keyword
  wikidex eval --queries eval/cases.csv --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if queriesFile == "" {
				return fmt.Errorf("no case file: set --queries")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyOffline(cfg, offline)

			cases, err := retrieve.LoadCases(queriesFile)
			if err != nil {
				return err
			}

			ropts, err := resolveRetrievalOptions(cfg, k, mode, language)
			if err != nil {
				return err
			}

			embedder, cache, idx, cleanup, err := openSearchStack(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			retriever, err := retrieve.NewRetriever(idx, embedder,
				retrieve.WithQueryCache(cache, cfg.Index.Collection))
			if err != nil {
				return err
			}

			slog.Info("eval_started",
				slog.Int("cases", len(cases)),
				slog.Int("k", ropts.K),
				slog.String("mode", string(ropts.Mode)))

			m, err := retrieve.Evaluate(ctx, retriever, cases, ropts)
			if err != nil {
				return err
			}

			slog.Info("eval_complete",
				slog.Float64("hits_at_k", m.HitsAtK),
				slog.Float64("mrr", m.MRR))

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(m)
			}

			out := output.New(cmd.OutOrStdout())
			out.Statusf("📊", "Evaluated %d cases (%s mode)", m.Cases, ropts.Mode)
			out.Statusf("", "Hits@%d: %.3f", m.K, m.HitsAtK)
			out.Statusf("", "MRR:     %.3f", m.MRR)
			return nil
		},
	}

	cmd.Flags().StringVar(&queriesFile, "queries", "", "CSV file with query,expected[,language] rows")
	cmd.Flags().IntVar(&k, "k", 0, "Rank cutoff for Hits@K (default: retrieval.k)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Search mode: dense or keyword (default: retrieval.mode)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language filter applied to cases without their own")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output metrics as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no network)")

	return cmd
}
