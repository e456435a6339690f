package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exowanderer/WikidataTextEmbedding/internal/store"
	"github.com/exowanderer/WikidataTextEmbedding/internal/wikidata"
)

func newLangStore(t *testing.T) *store.LangStore {
	t.Helper()
	entities, err := store.NewLangStore("", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = entities.Close() })
	return entities
}

func seedIDs(t *testing.T, ids *store.IDStore, qids ...string) {
	t.Helper()
	refs := make([]wikidata.Ref, len(qids))
	for i, id := range qids {
		refs[i] = wikidata.Ref{ID: id, InWikipedia: true}
	}
	require.NoError(t, ids.BulkUpsert(context.Background(), refs))
}

func TestEntityProjector_SkipsUnsighted(t *testing.T) {
	ctx := context.Background()
	ids := newIDStore(t)
	entities := newLangStore(t)
	p := NewEntityProjector(ids, entities, "en", 10)

	require.NoError(t, p.Handle(ctx, parseEntity(t, claimedEntityJSON)))
	require.NoError(t, p.Flush(ctx))

	assert.Equal(t, int64(0), p.Projected())
	rec, err := entities.Get(ctx, "Q42")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEntityProjector_ProjectsSightedEntity(t *testing.T) {
	ctx := context.Background()
	ids := newIDStore(t)
	entities := newLangStore(t)
	seedIDs(t, ids, "Q42")
	p := NewEntityProjector(ids, entities, "en", 10)

	require.NoError(t, p.Handle(ctx, parseEntity(t, claimedEntityJSON)))
	require.NoError(t, p.Flush(ctx))
	assert.Equal(t, int64(1), p.Projected())

	rec, err := entities.Get(ctx, "Q42")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Douglas Adams", rec.Label)
	assert.Equal(t, "English writer", rec.Description)
	assert.Len(t, rec.Claims["P31"], 1)
}

func TestEntityProjector_ProjectsAliases(t *testing.T) {
	ctx := context.Background()
	ids := newIDStore(t)
	entities := newLangStore(t)
	seedIDs(t, ids, "Q42")
	p := NewEntityProjector(ids, entities, "en", 10)

	e := parseEntity(t, `{
		"id": "Q42", "type": "item",
		"labels": {"en": {"language": "en", "value": "Douglas Adams"}},
		"aliases": {
			"en": [{"language": "en", "value": "DNA"}],
			"mul": [{"language": "mul", "value": "DNA"}, {"language": "mul", "value": "Douglas N. Adams"}]
		}
	}`)
	require.NoError(t, p.Handle(ctx, e))
	require.NoError(t, p.Flush(ctx))

	rec, err := entities.Get(ctx, "Q42")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"DNA", "Douglas N. Adams"}, rec.Aliases)
}

func TestEntityProjector_FlushesAtThreshold(t *testing.T) {
	ctx := context.Background()
	ids := newIDStore(t)
	entities := newLangStore(t)
	seedIDs(t, ids, "Q1", "Q2")
	p := NewEntityProjector(ids, entities, "en", 2)

	require.NoError(t, p.Handle(ctx, parseEntity(t, wikiEntityJSON("Q1", "one"))))
	assert.Equal(t, 1, p.Pending())

	require.NoError(t, p.Handle(ctx, parseEntity(t, wikiEntityJSON("Q2", "two"))))
	assert.Equal(t, 0, p.Pending())

	count, err := entities.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestEntityProjector_DefaultBatchSize(t *testing.T) {
	p := NewEntityProjector(newIDStore(t), newLangStore(t), "en", -1)
	assert.Equal(t, DefaultBatchEntities, p.batchSize)
}
