package retrieve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCases(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cases.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCases(t *testing.T) {
	path := writeCases(t, "query,expected,language\nwho wrote the guide,Q1,en\na German city,Q3,\n")

	cases, err := LoadCases(path)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, Case{Query: "who wrote the guide", Expected: "Q1", Language: "en"}, cases[0])
	assert.Equal(t, Case{Query: "a German city", Expected: "Q3"}, cases[1])
}

func TestLoadCases_NoHeader(t *testing.T) {
	path := writeCases(t, "who wrote the guide,Q1\n")

	cases, err := LoadCases(path)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "Q1", cases[0].Expected)
}

func TestLoadCases_BadEntityID(t *testing.T) {
	path := writeCases(t, "query,expected\nsome query,notanid\n")

	_, err := LoadCases(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an entity id")
}

func TestLoadCases_HeaderOnly(t *testing.T) {
	path := writeCases(t, "query,expected\n")

	_, err := LoadCases(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cases")
}

func TestLoadCases_MissingFile(t *testing.T) {
	_, err := LoadCases(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestLoadQueries_PlainColumn(t *testing.T) {
	path := writeCases(t, "who wrote the guide\na German city\n")

	queries, columns, err := LoadQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"who wrote the guide", "a German city"}, queries)
	assert.Empty(t, columns)
}

func TestLoadQueries_ComparatorColumns(t *testing.T) {
	path := writeCases(t, "query,first,second\nwho wrote the guide,Q1,Q2\na German city,Q3,Q1\n")

	queries, columns, err := LoadQueries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"who wrote the guide", "a German city"}, queries)
	require.Len(t, columns, 2)
	assert.Equal(t, []string{"Q1", "Q3"}, columns[0])
	assert.Equal(t, []string{"Q2", "Q1"}, columns[1])
}

func TestLoadQueries_BadComparator(t *testing.T) {
	path := writeCases(t, "query,first\nwho wrote the guide,Q1\na German city,notanid\n")

	_, _, err := LoadQueries(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an entity id")
}

func TestLoadQueries_RaggedRows(t *testing.T) {
	path := writeCases(t, "query,first\nwho wrote the guide,Q1\na German city,Q3,Q4\n")

	_, _, err := LoadQueries(path)
	assert.Error(t, err)
}

func TestLoadQueries_Empty(t *testing.T) {
	path := writeCases(t, "")

	_, _, err := LoadQueries(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no queries")
}

func TestEvaluate(t *testing.T) {
	idx, embedder := seedIndex(t, []seedDoc{
		{"Q1", "en", "Douglas Adams is an English writer and humorist."},
		{"Q2", "en", "The Hitchhiker's Guide to the Galaxy is a comedy series."},
		{"Q3", "en", "Cologne is a city on the Rhine in Germany."},
	})
	r, err := NewRetriever(idx, embedder)
	require.NoError(t, err)

	cases := []Case{
		{Query: "Douglas Adams is an English writer and humorist.", Expected: "Q1"},
		{Query: "Cologne is a city on the Rhine in Germany.", Expected: "Q3"},
	}
	m, err := Evaluate(context.Background(), r, cases, Options{K: 3})
	require.NoError(t, err)

	assert.Equal(t, 2, m.Cases)
	assert.Equal(t, 3, m.K)
	assert.InDelta(t, 1.0, m.HitsAtK, 1e-9)
	assert.InDelta(t, 1.0, m.MRR, 1e-9)
}

func TestEvaluate_Miss(t *testing.T) {
	idx, embedder := seedIndex(t, []seedDoc{
		{"Q1", "en", "Douglas Adams is an English writer and humorist."},
	})
	r, err := NewRetriever(idx, embedder)
	require.NoError(t, err)

	cases := []Case{
		{Query: "Douglas Adams is an English writer and humorist.", Expected: "Q1"},
		{Query: "something entirely different", Expected: "Q999"},
	}
	m, err := Evaluate(context.Background(), r, cases, Options{K: 1})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, m.HitsAtK, 1e-9)
	assert.InDelta(t, 0.5, m.MRR, 1e-9)
}

func TestEvaluate_NoCases(t *testing.T) {
	idx, embedder := seedIndex(t, nil)
	r, err := NewRetriever(idx, embedder)
	require.NoError(t, err)

	m, err := Evaluate(context.Background(), r, nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Cases)
	assert.Zero(t, m.HitsAtK)
}

func TestEntityRank_DedupsChunks(t *testing.T) {
	ids := []string{"Q1_en_1", "Q1_en_2", "Q2_en_1", "Q3_en_1"}

	assert.Equal(t, 1, entityRank(ids, "Q1"))
	assert.Equal(t, 2, entityRank(ids, "Q2"))
	assert.Equal(t, 3, entityRank(ids, "Q3"))
	assert.Equal(t, 0, entityRank(ids, "Q4"))
	assert.Equal(t, 0, entityRank(nil, "Q1"))
}
