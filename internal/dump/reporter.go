package dump

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// DefaultReportInterval is how often the reporter logs progress.
const DefaultReportInterval = 3 * time.Second

// Reporter logs pass progress on a fixed interval: entities processed,
// processing rate since the previous tick, and heap in use. It polls a
// snapshot function so it stays decoupled from whatever is counting.
type Reporter struct {
	interval time.Duration
	logger   *slog.Logger
	snapshot func() int64

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewReporter creates a reporter polling snapshot every interval.
// A non-positive interval falls back to DefaultReportInterval.
func NewReporter(logger *slog.Logger, interval time.Duration, snapshot func() int64) *Reporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		interval: interval,
		logger:   logger,
		snapshot: snapshot,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the reporting goroutine. It runs until Stop is called
// or the context is cancelled.
func (r *Reporter) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop halts reporting, logs a final progress line, and waits for the
// goroutine to exit. Safe to call more than once.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

func (r *Reporter) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	start := time.Now()
	last := r.snapshot()
	lastTick := start

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			current := r.snapshot()
			r.report(current, last, now.Sub(lastTick), now.Sub(start))
			last = current
			lastTick = now
		case <-r.stopCh:
			r.final(start)
			return
		case <-ctx.Done():
			r.final(start)
			return
		}
	}
}

func (r *Reporter) report(current, last int64, tick, elapsed time.Duration) {
	rate := float64(0)
	if tick > 0 {
		rate = float64(current-last) / tick.Seconds()
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	r.logger.Info("dump_progress",
		slog.Int64("entities", current),
		slog.Float64("rate_per_sec", rate),
		slog.Uint64("heap_mb", mem.HeapInuse/(1<<20)),
		slog.Duration("elapsed", elapsed.Round(time.Second)))
}

func (r *Reporter) final(start time.Time) {
	elapsed := time.Since(start)
	current := r.snapshot()
	rate := float64(0)
	if elapsed > 0 {
		rate = float64(current) / elapsed.Seconds()
	}
	r.logger.Info("dump_progress_final",
		slog.Int64("entities", current),
		slog.Float64("avg_rate_per_sec", rate),
		slog.Duration("elapsed", elapsed.Round(time.Second)))
}
