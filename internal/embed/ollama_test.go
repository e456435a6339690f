package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama serves the two endpoints the embedder talks to. Every
// embedding row comes back as [3, 4, 0, ...] so normalization is easy
// to assert against.
type fakeOllama struct {
	models []string
	dims   int

	embedCalls atomic.Int64
	failures   atomic.Int64 // embed calls to fail with 500 before succeeding
	delay      time.Duration
}

func (f *fakeOllama) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		models := make([]OllamaModelInfo, len(f.models))
		for i, name := range f.models {
			models[i] = OllamaModelInfo{Name: name, ModifiedAt: time.Now(), Size: 1 << 28}
		}
		_ = json.NewEncoder(w).Encode(OllamaModelListResponse{Models: models})
	})

	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		f.embedCalls.Add(1)
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if f.failures.Load() > 0 {
			f.failures.Add(-1)
			http.Error(w, "model busy", http.StatusInternalServerError)
			return
		}

		var req OllamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		count := 1
		if arr, ok := req.Input.([]any); ok {
			count = len(arr)
		}

		rows := make([][]float64, count)
		for i := range rows {
			row := make([]float64, f.dims)
			row[0] = 3
			row[1] = 4
			rows[i] = row
		}
		_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{Model: req.Model, Embeddings: rows})
	})

	return mux
}

func newFakeOllama(t *testing.T, f *fakeOllama) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOllamaEmbedderResolvesModelAndDimensions(t *testing.T) {
	f := &fakeOllama{models: []string{"nomic-embed-text:latest"}, dims: 4}
	srv := newFakeOllama(t, f)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Tag-less config name resolves to the installed tagged model, and
	// the probe embedding fixes the dimension.
	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 4, e.Dimensions())
}

func TestNewOllamaEmbedderFallsBackToInstalledModel(t *testing.T) {
	f := &fakeOllama{models: []string{"bge-m3:latest"}, dims: 4}
	srv := newFakeOllama(t, f)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:  srv.URL,
		Model: "nomic-embed-text",
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, "bge-m3:latest", e.ModelName())
}

func TestNewOllamaEmbedderNoModels(t *testing.T) {
	f := &fakeOllama{models: nil, dims: 4}
	srv := newFakeOllama(t, f)

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL})
	require.Error(t, err)
	assert.ErrorContains(t, err, "no embedding model available")
}

func TestOllamaEmbedNormalizes(t *testing.T) {
	f := &fakeOllama{dims: 4}
	srv := newFakeOllama(t, f)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		SkipHealthCheck: true,
		Dimensions:      4,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "Douglas Adams", TaskPassage)
	require.NoError(t, err)
	require.Len(t, v, 4)

	// [3,4,0,0] has magnitude 5.
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, vectorMagnitude(v), 1e-6)
}

func TestOllamaEmbedBatchSplitsRequests(t *testing.T) {
	f := &fakeOllama{dims: 4}
	srv := newFakeOllama(t, f)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		SkipHealthCheck: true,
		Dimensions:      4,
		BatchSize:       2,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	texts := []string{"one", "two", "three", "four", "five"}
	vecs, err := e.EmbedBatch(context.Background(), texts, TaskPassage)
	require.NoError(t, err)
	require.Len(t, vecs, 5)

	assert.Equal(t, int64(3), f.embedCalls.Load(), "five texts at batch size two need three requests")
	for i, v := range vecs {
		assert.Len(t, v, 4, "row %d", i)
		assert.InDelta(t, 1.0, vectorMagnitude(v), 1e-6, "row %d", i)
	}
}

func TestOllamaEmbedBatchHandlesEmptyTextsLocally(t *testing.T) {
	f := &fakeOllama{dims: 4}
	srv := newFakeOllama(t, f)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		SkipHealthCheck: true,
		Dimensions:      4,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"", "real text", "  \t"}, TaskPassage)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Equal(t, int64(1), f.embedCalls.Load(), "only the non-empty text should reach the API")
	assert.Zero(t, vectorMagnitude(vecs[0]))
	assert.InDelta(t, 1.0, vectorMagnitude(vecs[1]), 1e-6)
	assert.Zero(t, vectorMagnitude(vecs[2]))
}

func TestOllamaEmbedEmptyBatch(t *testing.T) {
	f := &fakeOllama{dims: 4}
	srv := newFakeOllama(t, f)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		SkipHealthCheck: true,
		Dimensions:      4,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), nil, TaskPassage)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Equal(t, int64(0), f.embedCalls.Load())
}

func TestOllamaEmbedRetriesTransientFailure(t *testing.T) {
	f := &fakeOllama{dims: 4}
	f.failures.Store(1)
	srv := newFakeOllama(t, f)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		SkipHealthCheck: true,
		Dimensions:      4,
		MaxRetries:      3,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "retry me", TaskPassage)
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, int64(2), f.embedCalls.Load(), "one failure then one success")
}

func TestOllamaEmbedFailsAfterMaxRetries(t *testing.T) {
	f := &fakeOllama{dims: 4}
	f.failures.Store(10)
	srv := newFakeOllama(t, f)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		SkipHealthCheck: true,
		Dimensions:      4,
		MaxRetries:      2,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Embed(context.Background(), "never works", TaskPassage)
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed after 2 attempts")
	assert.Equal(t, int64(2), f.embedCalls.Load())
}

func TestOllamaEmbedContextCancellation(t *testing.T) {
	f := &fakeOllama{dims: 4, delay: 2 * time.Second}
	srv := newFakeOllama(t, f)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		SkipHealthCheck: true,
		Dimensions:      4,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = e.Embed(ctx, "slow request", TaskPassage)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second, "cancellation should not wait out the request")
}

func TestOllamaAvailable(t *testing.T) {
	f := &fakeOllama{models: []string{"nomic-embed-text:latest"}, dims: 4}
	srv := httptest.NewServer(f.handler())

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		SkipHealthCheck: true,
		Dimensions:      4,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.True(t, e.Available(context.Background()))

	srv.Close()
	assert.False(t, e.Available(context.Background()), "unreachable server is unavailable")
}

func TestOllamaCloseIsIdempotent(t *testing.T) {
	f := &fakeOllama{dims: 4}
	srv := newFakeOllama(t, f)

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		SkipHealthCheck: true,
		Dimensions:      4,
	})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "after close", TaskPassage)
	assert.ErrorContains(t, err, "closed")
	assert.False(t, e.Available(context.Background()))
}
