package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunkStore(t *testing.T) *ChunkStore {
	t.Helper()
	s, err := NewChunkStore("", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleChunk(docID, qid string, chunkID int, language string) *ChunkRecord {
	return &ChunkRecord{
		DocID:       docID,
		QID:         qid,
		ChunkID:     chunkID,
		Language:    language,
		MD5:         "d41d8cd98f00b204e9800998ecf8427e",
		Label:       "Douglas Adams",
		Description: "English writer",
		Aliases:     []string{"DNA"},
		Date:        "2024-09-20",
		IsItem:      true,
		DumpDate:    "2024-09-18",
		Content:     "Douglas Adams, English writer.",
	}
}

func TestChunkStore_SaveAndGet(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBatch(ctx, []*ChunkRecord{
		sampleChunk("Q42_en_1", "Q42", 1, "en"),
	}))

	rec, err := s.Get(ctx, "Q42_en_1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Q42", rec.QID)
	assert.Equal(t, 1, rec.ChunkID)
	assert.Equal(t, "en", rec.Language)
	assert.Equal(t, []string{"DNA"}, rec.Aliases)
	assert.True(t, rec.IsItem)
	assert.False(t, rec.IsProperty)
	assert.Equal(t, "2024-09-18", rec.DumpDate)
	assert.Equal(t, "Douglas Adams, English writer.", rec.Content)
}

func TestChunkStore_GetMissing(t *testing.T) {
	s := newTestChunkStore(t)

	rec, err := s.Get(context.Background(), "Q404_en_1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestChunkStore_ReplaceOnSameDocID(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	first := sampleChunk("Q42_en_1", "Q42", 1, "en")
	require.NoError(t, s.SaveBatch(ctx, []*ChunkRecord{first}))

	updated := sampleChunk("Q42_en_1", "Q42", 1, "en")
	updated.Content = "refreshed"
	require.NoError(t, s.SaveBatch(ctx, []*ChunkRecord{updated}))

	rec, err := s.Get(ctx, "Q42_en_1")
	require.NoError(t, err)
	assert.Equal(t, "refreshed", rec.Content)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestChunkStore_GetBatchPreservesOrder(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBatch(ctx, []*ChunkRecord{
		sampleChunk("Q1_en_1", "Q1", 1, "en"),
		sampleChunk("Q2_en_1", "Q2", 1, "en"),
		sampleChunk("Q3_en_1", "Q3", 1, "en"),
	}))

	got, err := s.GetBatch(ctx, []string{"Q3_en_1", "Q404_en_1", "Q1_en_1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Q3_en_1", got[0].DocID)
	assert.Equal(t, "Q1_en_1", got[1].DocID)
}

func TestChunkStore_DocIDsByQID(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBatch(ctx, []*ChunkRecord{
		sampleChunk("Q1_en_1", "Q1", 1, "en"),
		sampleChunk("Q1_en_2", "Q1", 2, "en"),
		sampleChunk("Q1_de_1", "Q1", 1, "de"),
		sampleChunk("Q2_en_1", "Q2", 1, "en"),
	}))

	ids, err := s.DocIDsByQID(ctx, []string{"Q1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1_de_1", "Q1_en_1", "Q1_en_2"}, ids)

	ids, err = s.DocIDsByQID(ctx, []string{"Q1"}, []string{"en"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Q1_en_1", "Q1_en_2"}, ids)

	ids, err = s.DocIDsByQID(ctx, []string{"Q1", "Q2"}, []string{"en", "de"})
	require.NoError(t, err)
	assert.Len(t, ids, 4)

	ids, err = s.DocIDsByQID(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestChunkStore_Delete(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBatch(ctx, []*ChunkRecord{
		sampleChunk("Q1_en_1", "Q1", 1, "en"),
		sampleChunk("Q2_en_1", "Q2", 1, "en"),
	}))

	require.NoError(t, s.Delete(ctx, []string{"Q1_en_1"}))

	rec, err := s.Get(ctx, "Q1_en_1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestChunkStore_Embeddings(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEmbeddings(ctx,
		[]string{"Q1_en_1", "Q2_en_1"},
		[][]float32{{0.1, 0.2, 0.3}, {-1, 0, 1}}))

	got, err := s.GetEmbeddings(ctx, []string{"Q2_en_1", "Q404_en_1", "Q1_en_1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got["Q1_en_1"])
	assert.Equal(t, []float32{-1, 0, 1}, got["Q2_en_1"])
	assert.NotContains(t, got, "Q404_en_1")
}

func TestChunkStore_EmbeddingsReplaceOnSameDocID(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEmbeddings(ctx, []string{"Q1_en_1"}, [][]float32{{1, 0}}))
	require.NoError(t, s.SaveEmbeddings(ctx, []string{"Q1_en_1"}, [][]float32{{0, 1}}))

	got, err := s.GetEmbeddings(ctx, []string{"Q1_en_1"})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, got["Q1_en_1"])
}

func TestChunkStore_SaveEmbeddingsLengthMismatch(t *testing.T) {
	s := newTestChunkStore(t)

	err := s.SaveEmbeddings(context.Background(), []string{"Q1_en_1"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestChunkStore_DeleteRemovesEmbeddings(t *testing.T) {
	s := newTestChunkStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBatch(ctx, []*ChunkRecord{
		sampleChunk("Q1_en_1", "Q1", 1, "en"),
	}))
	require.NoError(t, s.SaveEmbeddings(ctx, []string{"Q1_en_1"}, [][]float32{{1, 0}}))

	require.NoError(t, s.Delete(ctx, []string{"Q1_en_1"}))

	got, err := s.GetEmbeddings(ctx, []string{"Q1_en_1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
