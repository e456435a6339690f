package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	ctx := context.Background()
	text := "Douglas Adams, English writer and humorist."

	v1, err := e.Embed(ctx, text, TaskPassage)
	require.NoError(t, err)
	v2, err := e.Embed(ctx, text, TaskPassage)
	require.NoError(t, err)

	assert.Equal(t, v1, v2, "same text should always hash to the same vector")
}

func TestStaticEmbedderTaskSymmetric(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	ctx := context.Background()

	passage, err := e.Embed(ctx, "English writer", TaskPassage)
	require.NoError(t, err)
	query, err := e.Embed(ctx, "English writer", TaskQuery)
	require.NoError(t, err)

	assert.Equal(t, passage, query, "hashed vectors do not distinguish tasks")
}

func TestStaticEmbedderUnitNorm(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "occupation writer humorist", TaskPassage)
	require.NoError(t, err)

	assert.Len(t, v, StaticDimensions)
	assert.InDelta(t, 1.0, vectorMagnitude(v), 1e-5)
}

func TestStaticEmbedderEmptyTextZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	v, err := e.Embed(context.Background(), "   \n\t ", TaskPassage)
	require.NoError(t, err)

	assert.Len(t, v, StaticDimensions)
	assert.Zero(t, vectorMagnitude(v))
}

func TestStaticEmbedderDistinguishesTexts(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	ctx := context.Background()

	writer, err := e.Embed(ctx, "Douglas Adams English writer", TaskPassage)
	require.NoError(t, err)
	author, err := e.Embed(ctx, "Douglas Adams English author", TaskPassage)
	require.NoError(t, err)
	noise, err := e.Embed(ctx, "qxv zzkw jjmp", TaskPassage)
	require.NoError(t, err)

	assert.NotEqual(t, writer, author)

	// Overlapping token sets should stay closer than unrelated text.
	assert.Greater(t, cosineSimilarity(writer, author), cosineSimilarity(writer, noise))
}

func TestStaticEmbedderMultibyteText(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	ctx := context.Background()

	arabic, err := e.Embed(ctx, "دوغلاس آدمز كاتب إنجليزي", TaskPassage)
	require.NoError(t, err)
	german, err := e.Embed(ctx, "Größenordnung für Straßennamen", TaskPassage)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, vectorMagnitude(arabic), 1e-5, "arabic text should produce features")
	assert.InDelta(t, 1.0, vectorMagnitude(german), 1e-5, "umlauts and eszett should survive n-gramming")
	assert.NotEqual(t, arabic, german)
}

func TestStaticEmbedderBatchMatchesSingle(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	ctx := context.Background()
	texts := []string{"first entity", "second entity", ""}

	batch, err := e.EmbedBatch(ctx, texts, TaskPassage)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, text := range texts {
		single, err := e.Embed(ctx, text, TaskPassage)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "batch row %d should match single embed", i)
	}
}

func TestStaticEmbedderEmptyBatch(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	batch, err := e.EmbedBatch(context.Background(), nil, TaskPassage)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestStaticEmbedderClosed(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	assert.False(t, e.Available(context.Background()))

	_, err := e.Embed(context.Background(), "text", TaskPassage)
	assert.ErrorContains(t, err, "closed")

	_, err = e.EmbedBatch(context.Background(), []string{"text"}, TaskPassage)
	assert.ErrorContains(t, err, "closed")
}

func TestStaticEmbedderIdentity(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	assert.Equal(t, StaticDimensions, e.Dimensions())
	assert.Equal(t, "static", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func TestExtractNgramsRuneWindows(t *testing.T) {
	ngrams := extractNgrams([]rune("abcd"), 3)
	assert.Equal(t, []string{"abc", "bcd"}, ngrams)

	assert.Nil(t, extractNgrams([]rune("ab"), 3), "short input yields no windows")

	// Multi-byte runes count as single positions.
	arabic := extractNgrams([]rune("كاتب"), 3)
	assert.Equal(t, []string{"كات", "اتب"}, arabic)
}
