// Package ingest drives the three-stage pipeline from a Wikidata dump
// to the document index. Stage A streams the dump once and collects
// every sighted identifier, stage B streams it again and projects the
// sighted entities into one target language, and stage C walks the
// projected corpus, renders each entity to prose, chunks it, embeds
// the chunks, and pushes them to the index.
//
// Stages are independently restartable. All stage writes are
// transactional bulk upserts, so a killed run resumes by re-running
// the stage; conflict handling in the stores makes replays harmless.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// retryInitialBackoff is the first sleep after a failed flush.
	retryInitialBackoff = 500 * time.Millisecond

	// retryMaxBackoff caps the exponential backoff between attempts.
	retryMaxBackoff = 30 * time.Second

	// cancelFlushGrace bounds the final flush after the run context is
	// cancelled, so an interrupt still lands buffered work.
	cancelFlushGrace = 30 * time.Second
)

// retryUntil runs fn until it succeeds or ctx is cancelled, sleeping
// with exponential backoff between attempts. When a probe is given it
// gates every attempt after the first: while the probe reports the
// downstream as unreachable, the loop keeps backing off without
// burning a request timeout.
func retryUntil(ctx context.Context, op string, initial time.Duration, probe func(context.Context) bool, fn func() error) error {
	if initial <= 0 {
		initial = retryInitialBackoff
	}
	backoff := initial

	for attempt := 1; ; attempt++ {
		if probe == nil || attempt == 1 || probe(ctx) {
			err := fn()
			if err == nil {
				if attempt > 1 {
					slog.Info("retry_recovered",
						slog.String("op", op),
						slog.Int("attempt", attempt))
				}
				return nil
			}
			slog.Warn("retry_backoff",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()))
		} else {
			slog.Warn("retry_unreachable",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s interrupted after %d attempts: %w", op, attempt, ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > retryMaxBackoff {
			backoff = retryMaxBackoff
		}
	}
}

// graceContext returns a context for final flushes after cancellation:
// detached from the cancelled parent but bounded, so an interrupted
// run lands its residual batch without hanging forever.
func graceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), cancelFlushGrace)
}
