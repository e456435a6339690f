package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
)

// lockFileName lives inside the data directory next to the store files.
const lockFileName = ".wikidex.lock"

// lockRetryDelay is the poll interval while waiting for another
// process to release the lock.
const lockRetryDelay = 250 * time.Millisecond

// PipelineLock serializes writers on a data directory. The id store,
// language stores, and embedding cache are owned by whichever process
// holds the lock; a second ingest or watch run against the same
// directory fails fast instead of interleaving writes.
// Works on all platforms (Unix, Linux, macOS, Windows).
type PipelineLock struct {
	path   string
	flock  *flock.Flock
	locked bool // explicit state tracking for clarity
}

// NewPipelineLock creates a lock for the given data directory. Nothing
// is acquired until Acquire or TryAcquire.
func NewPipelineLock(dir string) *PipelineLock {
	lockPath := filepath.Join(dir, lockFileName)
	return &PipelineLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryAcquire takes the lock without waiting. A lock held by another
// process surfaces as ErrCodeLockHeld.
func (l *PipelineLock) TryAcquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return errors.New(errors.ErrCodeStoreFailed, "failed to create lock directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return errors.New(errors.ErrCodeStoreFailed, "failed to acquire pipeline lock", err)
	}
	if !acquired {
		return errors.New(errors.ErrCodeLockHeld,
			fmt.Sprintf("another pipeline run holds %s", l.path), nil).
			WithSuggestion("Wait for the other run to finish, or remove the lock file if no process holds it")
	}

	l.locked = true
	return nil
}

// Acquire takes the lock, polling until it succeeds or the context
// ends. The watcher uses this to queue behind an in-flight run.
func (l *PipelineLock) Acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return errors.New(errors.ErrCodeStoreFailed, "failed to create lock directory", err)
	}

	for {
		acquired, err := l.flock.TryLock()
		if err != nil {
			return errors.New(errors.ErrCodeStoreFailed, "failed to acquire pipeline lock", err)
		}
		if acquired {
			l.locked = true
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.New(errors.ErrCodeLockHeld,
				fmt.Sprintf("gave up waiting for %s", l.path), ctx.Err()).
				WithSuggestion("Wait for the other run to finish, or remove the lock file if no process holds it")
		case <-time.After(lockRetryDelay):
		}
	}
}

// Release drops the lock. Safe to call multiple times or on a lock
// that was never acquired.
func (l *PipelineLock) Release() error {
	if !l.locked {
		return nil
	}

	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return errors.New(errors.ErrCodeStoreFailed, "failed to release pipeline lock", err)
	}

	l.locked = false
	return nil
}

// Held reports whether this process holds the lock.
func (l *PipelineLock) Held() bool {
	return l.locked
}

// Path returns the lock file path.
func (l *PipelineLock) Path() string {
	return l.path
}
