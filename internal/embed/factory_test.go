package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exowanderer/WikidataTextEmbedding/internal/config"
	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input string
		want  ProviderType
	}{
		{"jina", ProviderJina},
		{"ollama", ProviderOllama},
		{"static", ProviderStatic},
		{"", ProviderJina},
		{"  Jina  ", ProviderJina},
		{"STATIC", ProviderStatic},
	}

	for _, tt := range tests {
		got, err := ParseProvider(tt.input)
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestParseProviderUnknown(t *testing.T) {
	_, err := ParseProvider("bogus")
	require.Error(t, err)
	assert.ErrorContains(t, err, "unknown embedding provider")
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestNewStaticProvider(t *testing.T) {
	e, err := New(context.Background(), config.EmbeddingConfig{Provider: "static"})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, ok := e.(*StaticEmbedder)
	assert.True(t, ok)
	assert.Equal(t, StaticDimensions, e.Dimensions())
}

func TestNewJinaFromConfig(t *testing.T) {
	f := &fakeJina{dims: 4}
	srv := newFakeJina(t, f)

	t.Setenv("WIKIDEX_TEST_JINA_KEY", "test-key")

	e, err := New(context.Background(), config.EmbeddingConfig{
		Provider:   "jina",
		APIKeyEnv:  "WIKIDEX_TEST_JINA_KEY",
		BaseURL:    srv.URL,
		Dimensions: 4,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, ok := e.(*JinaEmbedder)
	require.True(t, ok)

	v, err := e.Embed(context.Background(), "factory wiring", TaskPassage)
	require.NoError(t, err)
	assert.Len(t, v, 4)
	assert.Equal(t, "Bearer test-key", f.auth(0), "key resolved from the named environment variable")
}

func TestNewJinaMissingKey(t *testing.T) {
	t.Setenv("WIKIDEX_TEST_JINA_KEY", "")

	_, err := New(context.Background(), config.EmbeddingConfig{
		Provider:  "jina",
		APIKeyEnv: "WIKIDEX_TEST_JINA_KEY",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "WIKIDEX_TEST_JINA_KEY")
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestNewInvalidRequestTimeout(t *testing.T) {
	_, err := New(context.Background(), config.EmbeddingConfig{
		Provider:       "static",
		RequestTimeout: "banana",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "request_timeout")
}

func TestNewOllamaFromConfig(t *testing.T) {
	f := &fakeOllama{models: []string{"nomic-embed-text:latest"}, dims: 4}
	srv := newFakeOllama(t, f)

	// The stock config carries the Jina model name; the factory must not
	// ask Ollama for it.
	e, err := New(context.Background(), config.EmbeddingConfig{
		Provider:   "ollama",
		OllamaHost: srv.URL,
		Model:      DefaultJinaModel,
	})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	oe, ok := e.(*OllamaEmbedder)
	require.True(t, ok)
	assert.Equal(t, "nomic-embed-text:latest", oe.ModelName())
	assert.Equal(t, 4, oe.Dimensions())
}

func TestNewOllamaUnavailable(t *testing.T) {
	_, err := New(context.Background(), config.EmbeddingConfig{
		Provider:   "ollama",
		OllamaHost: "http://127.0.0.1:1",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "ollama unavailable")
	assert.Equal(t, errors.ErrCodeNetworkUnavailable, errors.GetCode(err))
}

func TestInfoUnwrapsCachedEmbedder(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(), 10)
	defer func() { _ = cached.Close() }()

	info := Info(context.Background(), cached)
	assert.Equal(t, ProviderStatic, info.Provider)
	assert.Equal(t, "static", info.Model)
	assert.Equal(t, StaticDimensions, info.Dimensions)
	assert.True(t, info.Available)
}

func TestInfoReportsJinaProvider(t *testing.T) {
	f := &fakeJina{dims: 4}
	srv := newFakeJina(t, f)

	e, err := NewJinaEmbedder(JinaConfig{BaseURL: srv.URL, APIKey: "test-key", Dimensions: 4})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	info := Info(context.Background(), e)
	assert.Equal(t, ProviderJina, info.Provider)
	assert.Equal(t, DefaultJinaModel, info.Model)
	assert.Equal(t, 4, info.Dimensions)
	assert.True(t, info.Available)
}
