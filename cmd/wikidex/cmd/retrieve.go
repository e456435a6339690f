package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/exowanderer/WikidataTextEmbedding/internal/config"
	"github.com/exowanderer/WikidataTextEmbedding/internal/index"
	"github.com/exowanderer/WikidataTextEmbedding/internal/output"
	"github.com/exowanderer/WikidataTextEmbedding/internal/retrieve"
)

// retrieveOptions holds CLI flags for retrieve.
type retrieveOptions struct {
	k           int
	mode        string
	language    string
	format      string
	queriesFile string
	comparative bool
	offline     bool
}

func newRetrieveCmd() *cobra.Command {
	var opts retrieveOptions

	cmd := &cobra.Command{
		Use:   "retrieve [query ...]",
		Short: "Run similarity queries against the index",
		Long: `Embeds each query and returns the closest chunks, or runs a keyword
search with --mode keyword. Queries come from the arguments or, with
--queries, from a CSV file with one query per row.

With --comparative, the CSV's remaining columns name comparator
entities: each query is scored against every comparator's own chunks,
and the per-column rankings are concatenated in column order. Query
embeddings are cached, so repeated runs of the same queries skip the
embedder.`,
		Example: `  wikidex retrieve "English science fiction writer"
  wikidex retrieve --mode keyword "Hitchhiker's Guide"
  wikidex retrieve --queries queries.csv --k 5 --language en,de
  wikidex retrieve --queries benchmark.csv --comparative --format json`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRetrieve(ctx, cmd, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.k, "k", 0, "Results per query (default: retrieval.k)")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Search mode: dense or keyword (default: retrieval.mode)")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Language filter, comma-separated for a disjunction")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringVar(&opts.queriesFile, "queries", "", "CSV file with one query per row")
	cmd.Flags().BoolVar(&opts.comparative, "comparative", false, "Score queries against comparator columns from --queries")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static embeddings (no network)")

	return cmd
}

func runRetrieve(ctx context.Context, cmd *cobra.Command, args []string, opts retrieveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyOffline(cfg, opts.offline)

	queries := args
	var comparators [][]string
	if opts.queriesFile != "" {
		if len(args) > 0 {
			return fmt.Errorf("--queries and query arguments are mutually exclusive")
		}
		queries, comparators, err = retrieve.LoadQueries(opts.queriesFile)
		if err != nil {
			return err
		}
	}
	if len(queries) == 0 {
		return fmt.Errorf("no queries: pass them as arguments or with --queries")
	}
	if opts.comparative && len(comparators) == 0 {
		return fmt.Errorf("--comparative needs comparator columns in the --queries file")
	}

	ropts, err := resolveRetrievalOptions(cfg, opts.k, opts.mode, opts.language)
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

	slog.Info("retrieve_started",
		slog.Int("queries", len(queries)),
		slog.String("mode", string(ropts.Mode)),
		slog.Bool("comparative", opts.comparative))

	var results []retrieve.QueryResult
	if opts.comparative {
		results, err = retriever.BatchRetrieveComparative(ctx, queries, comparators, ropts)
	} else {
		results, err = retriever.BatchRetrieve(ctx, queries, ropts)
	}
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		return formatResults(ctx, cmd, idx, results)
	}
}

// resolveRetrievalOptions merges flag overrides onto the configured
// retrieval defaults.
func resolveRetrievalOptions(cfg *config.Config, k int, mode, language string) (retrieve.Options, error) {
	modeStr := cfg.Retrieval.Mode
	if mode != "" {
		modeStr = mode
	}
	parsed, err := retrieve.ParseMode(modeStr)
	if err != nil {
		return retrieve.Options{}, err
	}

	ropts := retrieve.Options{
		K:        cfg.Retrieval.K,
		Language: cfg.Retrieval.Language,
		Mode:     parsed,
	}
	if k > 0 {
		ropts.K = k
	}
	if language != "" {
		ropts.Language = language
	}
	return ropts, nil
}

// formatResults prints ranked hits with entity labels where the index
// still holds the document.
func formatResults(ctx context.Context, cmd *cobra.Command, idx index.DocumentIndex, results []retrieve.QueryResult) error {
	out := output.New(cmd.OutOrStdout())
	for _, qr := range results {
		if len(qr.IDs) == 0 {
			out.Statusf("🔍", "No results for %q", qr.Query)
			out.Newline()
			continue
		}
		out.Statusf("🔍", "%d results for %q:", len(qr.IDs), qr.Query)
		labels := fetchLabels(ctx, idx, qr.IDs)
		for i, id := range qr.IDs {
			line := fmt.Sprintf("%2d. %-18s %.4f", i+1, id, qr.Scores[i])
			if label := labels[id]; label != "" {
				line += "  " + label
			}
			out.Status("", line)
		}
		out.Newline()
	}
	return nil
}

func fetchLabels(ctx context.Context, idx index.DocumentIndex, ids []string) map[string]string {
	docs, err := idx.Fetch(ctx, ids)
	if err != nil {
		slog.Debug("failed to fetch result labels", slog.String("error", err.Error()))
		return nil
	}
	labels := make(map[string]string, len(docs))
	for _, d := range docs {
		labels[d.ID] = d.Label
	}
	return labels
}
