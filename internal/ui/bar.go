package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// BarRenderer shows a live progress bar per pipeline stage. A stage
// change finishes the old bar and starts a fresh one; dump passes with
// no known total get a spinner with a running count instead.
type BarRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	styles  Styles
	bar     *progressbar.ProgressBar
	stage   Stage
	started bool
	errors  []ErrorEvent
}

// NewBarRenderer creates a progress bar renderer.
func NewBarRenderer(cfg Config) *BarRenderer {
	return &BarRenderer{
		out:    cfg.Output,
		styles: GetStyles(cfg.NoColor || DetectNoColor()),
		stage:  Stage(-1),
	}
}

// Start implements Renderer.
func (r *BarRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	return nil
}

// UpdateProgress implements Renderer.
func (r *BarRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.stage {
		if r.bar != nil {
			_ = r.bar.Finish()
		}
		r.stage = event.Stage
		r.bar = r.newBar(event)
	}

	if r.bar != nil {
		_ = r.bar.Set64(int64(event.Current))
	}
}

func (r *BarRenderer) newBar(event ProgressEvent) *progressbar.ProgressBar {
	total := int64(event.Total)
	if total <= 0 {
		// progressbar treats -1 as indeterminate: spinner plus count.
		total = -1
	}

	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription(r.styles.Stage.Render(event.Stage.String())),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(r.out)
		}),
	)
}

// AddError implements Renderer. The bar is cleared first so the error
// line does not interleave with bar redraws.
func (r *BarRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	if r.bar != nil {
		_ = r.bar.Clear()
	}

	prefix := r.styles.Error.Render("ERROR")
	if event.IsWarn {
		prefix = r.styles.Warning.Render("WARN")
	}

	if event.ID != "" {
		_, _ = fmt.Fprintf(r.out, "%s %s: %v\n", prefix, event.ID, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *BarRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
	r.stage = StageComplete

	_, _ = fmt.Fprintf(r.out, "%s %d entities, %d chunks in %s",
		r.styles.Header.Render("Complete:"),
		stats.Entities, stats.Chunks, stats.Duration.Round(100*time.Millisecond))

	if stats.Errors > 0 {
		_, _ = fmt.Fprintf(r.out, " %s", r.styles.Error.Render(fmt.Sprintf("(%d errors)", stats.Errors)))
	}
	if stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " %s", r.styles.Warning.Render(fmt.Sprintf("(%d warnings)", stats.Warnings)))
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Embedder.Provider != "" {
		_, _ = fmt.Fprintf(r.out, "%s %s (%s, %d dims)\n",
			r.styles.Label.Render("Embedder:"),
			stats.Embedder.Provider, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *BarRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
	return nil
}
