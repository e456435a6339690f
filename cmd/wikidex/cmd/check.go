package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/exowanderer/WikidataTextEmbedding/internal/output"
	"github.com/exowanderer/WikidataTextEmbedding/internal/preflight"
)

func newCheckCmd() *cobra.Command {
	var (
		jsonOutput bool
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the machine is ready for a pipeline run",
		Long: `Runs preflight checks against the current configuration: the dump
file, data directory, free disk space, file descriptor limit, embedder
reachability, and the index backend.

The command exits non-zero when a required check fails. Warnings, such
as an unreachable embedder, do not block: ingest retries failed pushes
and --offline substitutes static vectors.`,
		Example: `  wikidex check
  wikidex check --offline --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyOffline(cfg, offline)

			results := preflight.New(cfg).RunAll(ctx)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				printCheckResults(cmd, results)
			}

			if preflight.HasCriticalFailures(results) {
				return fmt.Errorf("preflight failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Check with static embeddings (no network)")

	return cmd
}

func printCheckResults(cmd *cobra.Command, results []preflight.CheckResult) {
	out := output.New(cmd.OutOrStdout())
	for _, r := range results {
		line := fmt.Sprintf("%s: %s", r.Name, r.Message)
		switch r.Status {
		case preflight.StatusPass:
			out.Success(line)
		case preflight.StatusWarn:
			out.Warning(line)
		default:
			out.Error(line)
		}
		if r.Details != "" {
			out.Status("", r.Details)
		}
	}
	out.Newline()
	out.Statusf("", "Status: %s", preflight.SummaryStatus(results))
}
