package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
)

// jinaRequest is the subset of the OpenAI-compatible request body the
// tests care about.
type jinaRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

type jinaRow struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// fakeJina speaks just enough of the OpenAI embeddings protocol for the
// go-openai client. Rows come back as [3, 4, 0, ...] so normalization
// is easy to assert.
type fakeJina struct {
	dims int

	mu       sync.Mutex
	requests []jinaRequest
	auths    []string
	failures int // requests to fail with 500 before succeeding
}

func (f *fakeJina) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req jinaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.auths = append(f.auths, r.Header.Get("Authorization"))
		fail := f.failures > 0
		if fail {
			f.failures--
		}
		f.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream overloaded","type":"server_error"}}`))
			return
		}

		data := make([]jinaRow, len(req.Input))
		for i := range req.Input {
			row := make([]float32, f.dims)
			row[0] = 3
			row[1] = 4
			data[i] = jinaRow{Object: "embedding", Embedding: row, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": len(req.Input), "total_tokens": len(req.Input)},
		})
	})
	return mux
}

func (f *fakeJina) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeJina) request(i int) jinaRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func (f *fakeJina) auth(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auths[i]
}

func newFakeJina(t *testing.T, f *fakeJina) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestJinaEmbedSendsOpenAICompatibleRequest(t *testing.T) {
	f := &fakeJina{dims: 4}
	srv := newFakeJina(t, f)

	e, err := NewJinaEmbedder(JinaConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Dimensions: 4,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "Douglas Adams", TaskPassage)
	require.NoError(t, err)

	require.Equal(t, 1, f.callCount())
	req := f.request(0)
	assert.Equal(t, []string{"Douglas Adams"}, req.Input)
	assert.Equal(t, DefaultJinaModel, req.Model)
	assert.Equal(t, 4, req.Dimensions)
	assert.Equal(t, "Bearer test-key", f.auth(0))

	// [3,4,0,0] has magnitude 5; embeddings come back unit normalized.
	require.Len(t, v, 4)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.InDelta(t, 1.0, vectorMagnitude(v), 1e-6)
}

func TestJinaEmbedBatchSplitsRequests(t *testing.T) {
	f := &fakeJina{dims: 4}
	srv := newFakeJina(t, f)

	e, err := NewJinaEmbedder(JinaConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Dimensions: 4,
		BatchSize:  2,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	texts := []string{"one", "two", "three", "four", "five"}
	vecs, err := e.EmbedBatch(context.Background(), texts, TaskPassage)
	require.NoError(t, err)
	require.Len(t, vecs, 5)

	require.Equal(t, 3, f.callCount(), "five texts at batch size two need three requests")
	assert.Equal(t, []string{"one", "two"}, f.request(0).Input)
	assert.Equal(t, []string{"three", "four"}, f.request(1).Input)
	assert.Equal(t, []string{"five"}, f.request(2).Input)

	for i, v := range vecs {
		assert.Len(t, v, 4, "row %d", i)
		assert.InDelta(t, 1.0, vectorMagnitude(v), 1e-6, "row %d", i)
	}
}

func TestJinaEmbedBatchHandlesEmptyTextsLocally(t *testing.T) {
	f := &fakeJina{dims: 4}
	srv := newFakeJina(t, f)

	e, err := NewJinaEmbedder(JinaConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Dimensions: 4,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"", "real text", "  \t"}, TaskPassage)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// The API rejects empty inputs, so they never leave the process.
	require.Equal(t, 1, f.callCount())
	assert.Equal(t, []string{"real text"}, f.request(0).Input)

	assert.Zero(t, vectorMagnitude(vecs[0]))
	assert.InDelta(t, 1.0, vectorMagnitude(vecs[1]), 1e-6)
	assert.Zero(t, vectorMagnitude(vecs[2]))
}

func TestJinaEmbedEmptyBatch(t *testing.T) {
	f := &fakeJina{dims: 4}
	srv := newFakeJina(t, f)

	e, err := NewJinaEmbedder(JinaConfig{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), nil, TaskPassage)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Equal(t, 0, f.callCount())
}

func TestJinaEmbedRetriesTransientFailure(t *testing.T) {
	f := &fakeJina{dims: 4, failures: 1}
	srv := newFakeJina(t, f)

	e, err := NewJinaEmbedder(JinaConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Dimensions: 4,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "retry me", TaskPassage)
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, 2, f.callCount(), "one failure then one success")
}

func TestJinaEmbedFailsFastWhenCircuitOpens(t *testing.T) {
	f := &fakeJina{dims: 4, failures: 100}
	srv := newFakeJina(t, f)

	e, err := NewJinaEmbedder(JinaConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Dimensions: 4,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Two failures trip this breaker; the hour-long reset keeps it open
	// for the rest of the test.
	e.breaker = errors.NewCircuitBreaker("jina",
		errors.WithMaxFailures(2),
		errors.WithResetTimeout(time.Hour))

	_, err = e.Embed(context.Background(), "first", TaskPassage)
	require.Error(t, err)
	require.Equal(t, 2, f.callCount(), "both attempts reach the server")
	require.Equal(t, errors.StateOpen, e.breaker.State())

	_, err = e.Embed(context.Background(), "second", TaskPassage)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
	assert.ErrorContains(t, err, "circuit open")
	assert.Equal(t, 2, f.callCount(), "no requests while the circuit is open")
}

func TestJinaEmbedDimensionMismatch(t *testing.T) {
	f := &fakeJina{dims: 4}
	srv := newFakeJina(t, f)

	e, err := NewJinaEmbedder(JinaConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Dimensions: 8,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Embed(context.Background(), "wrong size", TaskPassage)
	require.Error(t, err)
	assert.ErrorContains(t, err, "dimensions")
	assert.ErrorContains(t, err, "got 4")
}

func TestNewJinaEmbedderRequiresAPIKey(t *testing.T) {
	_, err := NewJinaEmbedder(JinaConfig{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "api key")
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestJinaConfigDefaults(t *testing.T) {
	e, err := NewJinaEmbedder(JinaConfig{APIKey: "test-key"})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, DefaultJinaModel, e.ModelName())
	assert.Equal(t, DefaultJinaDimensions, e.Dimensions())
}

func TestJinaAvailable(t *testing.T) {
	f := &fakeJina{dims: 4}
	srv := newFakeJina(t, f)

	e, err := NewJinaEmbedder(JinaConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Dimensions: 4,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.True(t, e.Available(context.Background()))

	// A failing endpoint makes the probe fail without retries.
	f.mu.Lock()
	f.failures = 100
	f.mu.Unlock()
	assert.False(t, e.Available(context.Background()))
}

func TestJinaCloseIsIdempotent(t *testing.T) {
	f := &fakeJina{dims: 4}
	srv := newFakeJina(t, f)

	e, err := NewJinaEmbedder(JinaConfig{BaseURL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "after close", TaskPassage)
	assert.ErrorContains(t, err, "closed")
	assert.False(t, e.Available(context.Background()))
}
