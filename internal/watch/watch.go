// Package watch runs the ingest pipeline for dump files dropped into a
// hot folder. Events for a file are debounced until it stops growing,
// then the file is queued; queued files are ingested one at a time.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
)

const (
	// DefaultDebounceWindow is how long a file must be quiet before it
	// is considered fully written. Dumps arrive in many writes.
	DefaultDebounceWindow = 2 * time.Second

	// queueCapacity bounds files waiting for a pipeline slot.
	queueCapacity = 16
)

// DefaultPatterns are the dump file names the watcher reacts to.
var DefaultPatterns = []string{"*.json", "*.json.gz", "*.json.bz2"}

// RunFunc ingests one settled dump file.
type RunFunc func(ctx context.Context, dumpPath string) error

// Config configures a Watcher.
type Config struct {
	// Dir is the hot folder. Not recursive.
	Dir string

	// DebounceWindow overrides DefaultDebounceWindow when positive.
	DebounceWindow time.Duration

	// Patterns overrides DefaultPatterns when non-empty.
	Patterns []string
}

// Watcher watches one directory and feeds settled dump files to a
// RunFunc, one at a time.
type Watcher struct {
	cfg Config
	run RunFunc
	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool

	queue    chan string
	stopCh   chan struct{}
	stopOnce sync.Once

	runs     atomic.Int64
	failures atomic.Int64
}

// New creates a Watcher for cfg.Dir. The directory must exist.
func New(cfg Config, run RunFunc) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if run == nil {
		return nil, fmt.Errorf("run func is required")
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = DefaultPatterns
	}

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, errors.New(errors.ErrCodeFileNotFound,
			fmt.Sprintf("watch directory not found: %s", cfg.Dir), err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", cfg.Dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(cfg.Dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", cfg.Dir, err)
	}

	return &Watcher{
		cfg:     cfg,
		run:     run,
		fsw:     fsw,
		pending: make(map[string]struct{}),
		queue:   make(chan string, queueCapacity),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start watches until ctx is cancelled or Stop is called. The
// directory is registered with the notifier in New, so files dropped
// between New and Start are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("watch_started",
		slog.String("dir", w.cfg.Dir),
		slog.String("patterns", strings.Join(w.cfg.Patterns, ",")),
		slog.Duration("debounce", w.cfg.DebounceWindow))

	go w.runLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		close(w.stopCh)
		err = w.fsw.Close()
	})
	return err
}

// Runs reports completed ingest runs.
func (w *Watcher) Runs() int64 { return w.runs.Load() }

// Failures reports failed ingest runs.
func (w *Watcher) Failures() int64 { return w.failures.Load() }

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
		return
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || !w.matches(name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.pending[event.Name] = struct{}{}
	w.scheduleFlush()
}

func (w *Watcher) matches(name string) bool {
	for _, pattern := range w.cfg.Patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// scheduleFlush restarts the quiet-period timer. Every new event on
// any pending file pushes the flush back, so a file is only queued
// once the folder has been quiet for a full window.
func (w *Watcher) scheduleFlush() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.DebounceWindow, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || len(w.pending) == 0 {
		return
	}

	for path := range w.pending {
		select {
		case w.queue <- path:
			delete(w.pending, path)
		default:
			slog.Warn("watch_queue_full", slog.String("path", path))
			w.scheduleFlush()
			return
		}
	}
}

// runLoop drains the queue one file at a time. A failed run is logged
// and does not stop the watcher; the next drop retries naturally.
func (w *Watcher) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case path := <-w.queue:
			w.runOne(ctx, path)
		}
	}
}

func (w *Watcher) runOne(ctx context.Context, path string) {
	start := time.Now()
	slog.Info("watch_ingest_started", slog.String("path", path))

	if err := w.run(ctx, path); err != nil {
		w.failures.Add(1)
		// The watcher runs unattended, so the log line carries the full
		// coded error, not just the message.
		slog.Error("watch_ingest_failed",
			slog.String("path", path),
			slog.Any("error", errors.FormatForLog(err)))
		return
	}

	w.runs.Add(1)
	slog.Info("watch_ingest_complete",
		slog.String("path", path),
		slog.String("duration", time.Since(start).String()))
}
