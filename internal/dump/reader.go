// Package dump streams entities out of a Wikidata JSON dump. One
// producer goroutine reads raw lines into a bounded queue and a pool of
// consumers decodes them, so a slow disk and slow handlers throttle
// each other instead of ballooning memory.
package dump

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
	"github.com/exowanderer/WikidataTextEmbedding/internal/wikidata"
)

const (
	// initialLineBuffer is the starting scanner buffer.
	initialLineBuffer = 1 << 20 // 1 MB
	// maxLineBuffer bounds a single dump line. Entities with very large
	// claim sets run to tens of megabytes.
	maxLineBuffer = 256 << 20 // 256 MB
)

// Handler processes one decoded entity. Handlers run concurrently on
// multiple workers and must be safe for concurrent use.
type Handler func(ctx context.Context, entity *wikidata.Entity) error

// Options configures a Reader.
type Options struct {
	// Workers is the number of decoding goroutines (default: NumCPU-1,
	// minimum 1).
	Workers int
	// QueueSize bounds the line queue between producer and consumers
	// (default: 1000).
	QueueSize int
	// SkipLines skips the first N lines, for resuming a partial pass.
	SkipLines int
	// MaxItems stops after queueing N entity lines (0 = whole dump).
	MaxItems int64
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stats summarizes one pass over the dump.
type Stats struct {
	LinesRead    int64
	Skipped      int64
	Entities     int64
	ParseErrors  int64
	HandlerCalls int64
	Duration     time.Duration
}

// Reader streams a dump file through a handler.
type Reader struct {
	path   string
	opts   Options
	logger *slog.Logger

	linesRead    atomic.Int64
	entities     atomic.Int64
	parseErrors  atomic.Int64
	handlerCalls atomic.Int64
}

// NewReader creates a Reader for the given dump file. The file must
// exist and carry a .json, .json.gz, or .json.bz2 extension.
func NewReader(path string, opts Options) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.New(errors.ErrCodeFileNotFound,
			fmt.Sprintf("dump file not found: %s", path), err).
			WithSuggestion("Check the dump path or download a dump from dumps.wikimedia.org")
	}
	switch compression(path) {
	case "gzip", "bzip2", "none":
	default:
		return nil, errors.New(errors.ErrCodeUnsupportedExtension,
			fmt.Sprintf("unsupported dump extension: %s", filepath.Base(path)), nil).
			WithSuggestion("Supported formats are .json, .json.gz, and .json.bz2")
	}

	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Reader{path: path, opts: opts, logger: opts.Logger}, nil
}

// defaultWorkers leaves one CPU for the producer and the reporter.
func defaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}

// compression classifies the dump file by extension.
func compression(path string) string {
	name := strings.ToLower(path)
	switch {
	case strings.HasSuffix(name, ".json.gz"):
		return "gzip"
	case strings.HasSuffix(name, ".json.bz2"):
		return "bzip2"
	case strings.HasSuffix(name, ".json"):
		return "none"
	default:
		return ""
	}
}

// Processed returns the number of entities decoded so far. Safe to call
// while Run is in flight; progress reporters poll it.
func (r *Reader) Processed() int64 {
	return r.entities.Load()
}

// Run streams the dump through handler and blocks until the file is
// exhausted, the context is cancelled, or a handler fails. Lines that
// fail to decode are counted and skipped; handler errors abort the run.
func (r *Reader) Run(ctx context.Context, handler Handler) (Stats, error) {
	start := time.Now()

	f, err := os.Open(r.path)
	if err != nil {
		return Stats{}, errors.New(errors.ErrCodeFileNotFound, "failed to open dump file", err)
	}
	defer func() { _ = f.Close() }()

	var src io.Reader = f
	switch compression(r.path) {
	case "gzip":
		gz, gzErr := gzip.NewReader(f)
		if gzErr != nil {
			return Stats{}, errors.New(errors.ErrCodeMalformedEntity, "failed to open gzip stream", gzErr)
		}
		defer func() { _ = gz.Close() }()
		src = gz
	case "bzip2":
		src = bzip2.NewReader(f)
	}

	lines := make(chan []byte, r.opts.QueueSize)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(lines)
		return r.produce(gctx, src, lines)
	})

	for i := 0; i < r.opts.Workers; i++ {
		g.Go(func() error {
			return r.consume(gctx, lines, handler)
		})
	}

	err = g.Wait()

	stats := Stats{
		LinesRead:    r.linesRead.Load(),
		Skipped:      int64(r.opts.SkipLines),
		Entities:     r.entities.Load(),
		ParseErrors:  r.parseErrors.Load(),
		HandlerCalls: r.handlerCalls.Load(),
		Duration:     time.Since(start),
	}

	r.logger.Info("dump_pass_complete",
		slog.Int64("lines_read", stats.LinesRead),
		slog.Int64("entities", stats.Entities),
		slog.Int64("parse_errors", stats.ParseErrors),
		slog.Duration("duration", stats.Duration))

	return stats, err
}

// produce reads raw lines, trims the JSON array framing, and queues
// entity lines for the consumers.
func (r *Reader) produce(ctx context.Context, src io.Reader, lines chan<- []byte) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, initialLineBuffer), maxLineBuffer)

	var queued int64
	skip := r.opts.SkipLines

	for scanner.Scan() {
		r.linesRead.Add(1)

		if skip > 0 {
			skip--
			continue
		}

		line := trimFrame(scanner.Bytes())
		if line == nil {
			continue
		}

		// Scanner reuses its buffer; the queue needs a copy.
		buf := make([]byte, len(line))
		copy(buf, line)

		select {
		case lines <- buf:
		case <-ctx.Done():
			return ctx.Err()
		}

		queued++
		if r.opts.MaxItems > 0 && queued >= r.opts.MaxItems {
			r.logger.Info("dump_item_limit_reached", slog.Int64("max_items", r.opts.MaxItems))
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.New(errors.ErrCodeMalformedEntity, "failed reading dump stream", err)
	}
	return nil
}

// consume decodes queued lines and hands entities to the handler.
func (r *Reader) consume(ctx context.Context, lines <-chan []byte, handler Handler) error {
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			entity, err := wikidata.ParseEntity(line)
			if err != nil {
				n := r.parseErrors.Add(1)
				if n <= 10 {
					r.logger.Warn("dump_parse_error",
						slog.String("error", err.Error()),
						slog.Int("prefix_len", min(len(line), 80)))
				}
				continue
			}
			r.entities.Add(1)

			if err := handler(ctx, entity); err != nil {
				return err
			}
			r.handlerCalls.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// trimFrame strips the array framing around a dump line: surrounding
// whitespace, the opening and closing brackets, and the trailing comma.
// Returns nil for lines that carry no entity.
func trimFrame(line []byte) []byte {
	line = bytes.TrimSpace(line)
	line = bytes.TrimLeft(line, "[")
	line = bytes.TrimRight(line, "],")
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	return line
}
