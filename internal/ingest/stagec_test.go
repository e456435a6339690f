package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exowanderer/WikidataTextEmbedding/internal/index"
	"github.com/exowanderer/WikidataTextEmbedding/internal/store"
	"github.com/exowanderer/WikidataTextEmbedding/internal/wikidata"
)

// stringClaim builds a normal-rank statement carrying one plain string
// value, the simplest claim shape the textifier renders.
func stringClaim(value string) []wikidata.Claim {
	return []wikidata.Claim{{
		Rank: wikidata.RankNormal,
		MainSnak: wikidata.Snak{
			SnakType: wikidata.SnakValue,
			DataType: "string",
			DataValue: &wikidata.DataValue{
				Type:  "string",
				Value: json.RawMessage(strconv.Quote(value)),
			},
		},
	}}
}

func TestRunIndex_WarnsOnUnprojectedEntity(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t, "")

	// Q2 is sighted in the ID store but never projected, as happens
	// when a dump pass is interrupted between stages.
	seedIDs(t, f.ids, "Q1", "Q2")
	require.NoError(t, f.entities.BulkInsert(ctx, []*store.EntityRecord{
		{ID: "Q1", Label: "first", Description: "fixture entity"},
	}))

	result, err := f.runner.RunIndex(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.Entities)
	assert.Equal(t, int64(1), result.Matched)
	assert.Equal(t, 1, result.Warnings)

	count, err := f.idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.Chunks, count)

	docs, err := f.idx.Fetch(ctx, []string{index.DocID("Q2", "en", 1)})
	require.NoError(t, err)
	assert.Empty(t, docs)

	assert.Contains(t, f.out.String(), "WARN: Q2: entity not projected into en")
}

func TestRunIndex_WarnsOnUnrenderableClaims(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t, "")

	seedIDs(t, f.ids, "Q8")
	require.NoError(t, f.entities.BulkInsert(ctx, []*store.EntityRecord{{
		ID:          "Q8",
		Label:       "broken",
		Description: "entity with a mangled claim payload",
		Claims: map[string][]wikidata.Claim{
			"P31": {{
				Rank: wikidata.RankNormal,
				MainSnak: wikidata.Snak{
					SnakType: wikidata.SnakValue,
					DataType: "wikibase-item",
					DataValue: &wikidata.DataValue{
						Type:  "wikibase-entityid",
						Value: json.RawMessage(`[1, 2]`),
					},
				},
			}},
		},
	}}))

	result, err := f.runner.RunIndex(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Entities)
	assert.Equal(t, int64(0), result.Matched)
	assert.Equal(t, int64(0), result.Chunks)
	assert.Equal(t, 1, result.Warnings)

	assert.Contains(t, f.out.String(), "WARN: Q8:")
	assert.Contains(t, f.out.String(), "decode entity id value")
}

func TestRunIndex_SplitsOversizedEntities(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t, "")
	f.cfg.Chunking.MaxTokens = 40

	claims := map[string][]wikidata.Claim{}
	recs := make([]*store.EntityRecord, 0, 7)
	for i := 1; i <= 6; i++ {
		pid := fmt.Sprintf("P%d", i)
		claims[pid] = stringClaim(fmt.Sprintf(
			"a reasonably long value number %d that pushes the rendered text past the budget", i))
		recs = append(recs, &store.EntityRecord{ID: pid, Label: "attribute " + pid})
	}
	recs = append(recs, &store.EntityRecord{
		ID:          "Q7",
		Label:       "chunky",
		Description: "entity with many attributes",
		Aliases:     []string{"chunkster"},
		Claims:      claims,
	})
	seedIDs(t, f.ids, "Q7")
	require.NoError(t, f.entities.BulkInsert(ctx, recs))

	result, err := f.runner.RunIndex(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Entities)
	assert.Equal(t, int64(1), result.Matched)
	assert.GreaterOrEqual(t, result.Chunks, int64(2))

	docs, err := f.idx.Fetch(ctx, []string{
		index.DocID("Q7", "en", 1),
		index.DocID("Q7", "en", 2),
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, 1, docs[0].ChunkID)
	assert.Equal(t, 2, docs[1].ChunkID)
	assert.NotEqual(t, docs[0].Text, docs[1].Text)

	// Every chunk repeats the entity header and carries the checksum
	// of its own text.
	for _, doc := range docs {
		assert.Equal(t, "Q7", doc.QID)
		assert.Contains(t, doc.Text, "chunky, entity with many attributes")
		assert.Equal(t, []string{"chunkster"}, doc.Aliases)
		sum := md5.Sum([]byte(doc.Text))
		assert.Equal(t, hex.EncodeToString(sum[:]), doc.MD5)
	}
}

func TestRunIndex_ClassifiesPropertyDocuments(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(t, "")

	require.NoError(t, f.ids.BulkUpsert(ctx, []wikidata.Ref{
		{ID: "P569", InWikipedia: true, IsProperty: true},
	}))
	require.NoError(t, f.entities.BulkInsert(ctx, []*store.EntityRecord{
		{ID: "P569", Label: "date of birth", Description: "date on which the subject was born"},
	}))

	result, err := f.runner.RunIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Matched)

	docs, err := f.idx.Fetch(ctx, []string{index.DocID("P569", "en", 1)})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.True(t, docs[0].IsProperty)
	assert.False(t, docs[0].IsItem)
	assert.Equal(t, 1, docs[0].ChunkID)
}

func TestRunIndex_CancelledContext(t *testing.T) {
	f := newRunnerFixture(t, "")
	seedIDs(t, f.ids, "Q1")
	require.NoError(t, f.entities.BulkInsert(context.Background(), []*store.EntityRecord{
		{ID: "Q1", Label: "first", Description: "fixture entity"},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.runner.RunIndex(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	cp, err := LoadCheckpoint(f.cfg.Stores.Dir)
	require.NoError(t, err)
	assert.Nil(t, cp)
}
