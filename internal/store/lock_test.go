package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
)

func TestPipelineLockAcquireRelease(t *testing.T) {
	l := NewPipelineLock(t.TempDir())

	require.NoError(t, l.TryAcquire())
	assert.True(t, l.Held())
	assert.FileExists(t, l.Path())

	require.NoError(t, l.Release())
	assert.False(t, l.Held())
}

func TestPipelineLockContention(t *testing.T) {
	dir := t.TempDir()

	first := NewPipelineLock(dir)
	require.NoError(t, first.TryAcquire())
	defer func() { _ = first.Release() }()

	second := NewPipelineLock(dir)
	err := second.TryAcquire()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeLockHeld, errors.GetCode(err))
	assert.False(t, second.Held())
}

func TestPipelineLockAcquireWaitsForRelease(t *testing.T) {
	dir := t.TempDir()

	first := NewPipelineLock(dir)
	require.NoError(t, first.TryAcquire())

	second := NewPipelineLock(dir)
	done := make(chan error, 1)
	go func() {
		done <- second.Acquire(context.Background())
	}()

	// The second lock must still be waiting while the first is held.
	time.Sleep(100 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("lock acquired while still held by the first run")
	default:
	}

	require.NoError(t, first.Release())

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.True(t, second.Held())
	case <-time.After(2 * time.Second):
		t.Fatal("lock not acquired after release")
	}

	require.NoError(t, second.Release())
}

func TestPipelineLockAcquireHonorsContext(t *testing.T) {
	dir := t.TempDir()

	first := NewPipelineLock(dir)
	require.NoError(t, first.TryAcquire())
	defer func() { _ = first.Release() }()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	second := NewPipelineLock(dir)
	err := second.Acquire(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeLockHeld, errors.GetCode(err))
	assert.False(t, second.Held())
}

func TestPipelineLockReleaseWithoutAcquire(t *testing.T) {
	l := NewPipelineLock(t.TempDir())
	assert.NoError(t, l.Release())
	assert.NoError(t, l.Release())
}

func TestPipelineLockReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	l := NewPipelineLock(dir)
	require.NoError(t, l.TryAcquire())
	require.NoError(t, l.Release())

	other := NewPipelineLock(dir)
	require.NoError(t, other.TryAcquire())
	assert.True(t, other.Held())
	require.NoError(t, other.Release())
}
