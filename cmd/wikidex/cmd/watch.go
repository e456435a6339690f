package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/exowanderer/WikidataTextEmbedding/internal/output"
	"github.com/exowanderer/WikidataTextEmbedding/internal/watch"
)

var dumpDatePattern = regexp.MustCompile(`(20\d{2})(\d{2})(\d{2})`)

// dumpDateFromName extracts an eight-digit date from a dump file name,
// returned as YYYY-MM-DD, or "" when the name carries none.
func dumpDateFromName(path string) string {
	m := dumpDatePattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return ""
	}
	return m[1] + "-" + m[2] + "-" + m[3]
}

func newWatchCmd() *cobra.Command {
	var (
		dir      string
		debounce time.Duration
		offline  bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest dump files dropped into a directory",
		Long: `Watches a hot folder and runs the full pipeline over every new dump
file (*.json, *.json.gz, *.json.bz2) once it has stopped growing for
the debounce window. Drops arriving during a run queue up and ingest
one at a time.

The dump date is taken from an eight-digit date in the file name when
present, e.g. wikidata-20240918-all.json.bz2; otherwise the configured
dump.date applies.`,
		Example: `  wikidex watch --dir /data/dumps
  wikidex watch --dir /data/dumps --debounce 30s --offline`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, dir, debounce, offline)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to watch for dump files")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounceWindow, "Quiet window before a new file is ingested")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (no network)")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, dir string, debounce time.Duration, offline bool) error {
	if dir == "" {
		return fmt.Errorf("no watch directory: set --dir")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyOffline(cfg, offline)

	out := output.New(cmd.OutOrStdout())

	run := func(ctx context.Context, path string) error {
		runCfg := *cfg
		runCfg.Dump.Path = path
		if date := dumpDateFromName(path); date != "" {
			runCfg.Dump.Date = date
		}

		renderer := buildRenderer(cmd)
		if err := renderer.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = renderer.Stop() }()

		runner, cleanup, err := openRunner(ctx, renderer, &runCfg, stageNeeds{entities: true, search: true})
		if err != nil {
			return err
		}
		defer cleanup()

		out.Statusf("📥", "Ingesting %s", filepath.Base(path))
		if _, err := runner.RunAll(ctx); err != nil {
			out.Errorf("Ingest of %s failed: %v", filepath.Base(path), err)
			return err
		}
		out.Successf("Ingested %s", filepath.Base(path))
		return nil
	}

	w, err := watch.New(watch.Config{Dir: dir, DebounceWindow: debounce}, run)
	if err != nil {
		return err
	}

	out.Statusf("👀", "Watching %s (Ctrl-C to stop)", dir)
	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	out.Newline()
	out.Statusf("", "Stopped after %d runs (%d failed)", w.Runs(), w.Failures())
	return nil
}
