// Package cmd provides the CLI commands for wikidex.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/exowanderer/WikidataTextEmbedding/internal/config"
	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
	"github.com/exowanderer/WikidataTextEmbedding/internal/logging"
	"github.com/exowanderer/WikidataTextEmbedding/internal/profiling"
	"github.com/exowanderer/WikidataTextEmbedding/pkg/version"
)

// Persistent flags shared by every command.
var (
	flagConfigFile string
	flagDataDir    string
	flagDebug      bool
	flagQuiet      bool

	loggingCleanup func()
)

// Profiling flags, for digging into slow pipeline runs.
var (
	flagProfileCPU   string
	flagProfileMem   string
	flagProfileTrace string

	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// NewRootCmd creates the root command for the wikidex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wikidex",
		Short: "Wikidata dump ingestion and embedding pipeline",
		Long: `Wikidex reads Wikidata JSON dumps, renders entities into
locale-aware prose, embeds the chunks, and answers batched similarity
queries over the result.

The pipeline runs in three independently restartable stages:

  ingest ids       first dump pass: collect identifiers and sightings
  ingest entities  second dump pass: project entities with articles
  index            textify, chunk, embed, and push to the index

'wikidex ingest all' runs the three stages back to back.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("wikidex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "Project config file (default: .wikidex.yaml in the working directory)")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory for stores and indexes (default: ~/.wikidex)")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "Suppress progress output")

	cmd.PersistentFlags().StringVar(&flagProfileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&flagProfileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&flagProfileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := startLogging(c, args); err != nil {
			return err
		}
		return startProfiling()
	}
	cmd.PersistentPostRunE = func(c *cobra.Command, args []string) error {
		if err := stopProfiling(); err != nil {
			return err
		}
		return stopLogging(c, args)
	}

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newRetrieveCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging routes slog to the rotating pipeline log file. Debug
// mode lowers the level and mirrors records to stderr.
func startLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if flagDebug {
		logCfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)

	if flagDebug {
		slog.Debug("debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()))
	}
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// startProfiling honors the --profile-* flags for the current run.
func startProfiling() error {
	var err error
	if flagProfileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(flagProfileCPU)
		if err != nil {
			return err
		}
	}
	if flagProfileTrace != "" {
		traceCleanup, err = profiler.StartTrace(flagProfileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
				cpuCleanup = nil
			}
			return err
		}
	}
	return nil
}

// stopProfiling flushes whatever startProfiling began. The heap
// snapshot happens here so it sees the run's peak working set.
func stopProfiling() error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if flagProfileMem != "" {
		return profiler.WriteHeap(flagProfileMem)
	}
	return nil
}

// loadConfig resolves the effective configuration for a command run,
// honoring the persistent --config and --data-dir flags.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfigFile != "" {
		cfg, err = config.LoadFile(flagConfigFile)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}

	if flagDataDir != "" {
		cfg.Stores.Dir = flagDataDir
	}
	return cfg, nil
}

// Execute runs the root command. Errors print through the coded error
// formatter so hint lines reach the terminal.
func Execute() error {
	root := NewRootCmd()
	root.SilenceErrors = true
	root.SilenceUsage = true

	err := root.Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
	}
	return err
}
