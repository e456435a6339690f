// Package ui provides terminal progress and status display for the
// ingest pipeline.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents a pipeline stage.
type Stage int

const (
	// StageIDs is the first dump pass, collecting identifiers.
	StageIDs Stage = iota
	// StageEntities is the second dump pass, projecting entities.
	StageEntities
	// StageEmbedding is the textify-chunk-embed pass. Textification,
	// embedding, and index pushes stream through one loop, so they
	// share a stage.
	StageEmbedding
	// StagePushing is the final flush of residual batches.
	StagePushing
	// StageComplete indicates the pipeline is done.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageIDs:
		return "Collecting IDs"
	case StageEntities:
		return "Projecting"
	case StageEmbedding:
		return "Embedding"
	case StagePushing:
		return "Pushing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageIDs:
		return "IDS"
	case StageEntities:
		return "PROJ"
	case StageEmbedding:
		return "EMBED"
	case StagePushing:
		return "PUSH"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	// CurrentID is the entity currently being processed, when known.
	CurrentID string
	Message   string
}

// ErrorEvent represents an error during processing.
type ErrorEvent struct {
	// ID is the entity or file the error belongs to, if any.
	ID     string
	Err    error
	IsWarn bool
}

// StageTimings tracks duration for each pipeline stage.
type StageTimings struct {
	Read    time.Duration // Dump reading and parsing
	Textify time.Duration // Statement-to-prose plus chunking
	Embed   time.Duration // Embedding generation
	Push    time.Duration // Index pushes
}

// EmbedderInfo identifies the embedding backend for display.
type EmbedderInfo struct {
	Provider   string
	Model      string
	Dimensions int
}

// CompletionStats contains final pipeline statistics.
type CompletionStats struct {
	Entities int
	Chunks   int
	Duration time.Duration
	Errors   int
	Warnings int
	Stages   StageTimings
	Embedder EmbedderInfo
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
}

// NewRenderer creates an appropriate renderer for the environment: a
// live progress bar for interactive terminals, plain line output for
// CI environments and pipes.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}
	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}
	if DetectCI() {
		return NewPlainRenderer(cfg)
	}
	return NewBarRenderer(cfg)
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
