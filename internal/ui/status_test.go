package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatus() StatusInfo {
	return StatusInfo{
		Collection:       "wikidex",
		Backend:          "local",
		IDsTotal:         5000,
		IDsInWikipedia:   1200,
		IDsProperties:    300,
		Entities:         4800,
		Chunks:           2600,
		IndexDocs:        2600,
		CachedPassages:   2600,
		CachedQueries:    40,
		DataSize:         42 * 1024 * 1024,
		LastStage:        "index",
		LastDumpDate:     "2024-09-18",
		LastLanguage:     "en",
		LastIngest:       time.Now().Add(-2 * time.Hour),
		EmbedderProvider: "jina",
		EmbedderModel:    "jina-embeddings-v3",
		EmbedderStatus:   "ready",
		IndexStatus:      "ready",
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given: a status renderer without color
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering a full status
	require.NoError(t, r.Render(sampleStatus()))

	// Then: all sections appear
	output := buf.String()
	assert.Contains(t, output, "Collection: wikidex")
	assert.Contains(t, output, "5000 (1200 in Wikipedia, 300 properties)")
	assert.Contains(t, output, "Entities:     4800")
	assert.Contains(t, output, "Chunks:       2600")
	assert.Contains(t, output, "Index (local):")
	assert.Contains(t, output, "Documents:    2600")
	assert.Contains(t, output, "Passages:     2600")
	assert.Contains(t, output, "Queries:      40")
	assert.Contains(t, output, "42.0 MB")
	assert.Contains(t, output, "jina-embeddings-v3")
	assert.Contains(t, output, "ready")
	assert.Contains(t, output, "dump 2024-09-18 (en)")
	assert.Contains(t, output, "2 hours ago")
}

func TestStatusRenderer_Render_NoCheckpoint(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	info := sampleStatus()
	info.LastIngest = time.Time{}
	require.NoError(t, r.Render(info))

	assert.NotContains(t, buf.String(), "Last ingest:")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	// Given: a status renderer
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering as JSON
	require.NoError(t, r.RenderJSON(sampleStatus()))

	// Then: the output parses back with the same numbers
	var decoded StatusInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "wikidex", decoded.Collection)
	assert.Equal(t, int64(1200), decoded.IDsInWikipedia)
	assert.Equal(t, int64(2600), decoded.IndexDocs)
	assert.Equal(t, "jina", decoded.EmbedderProvider)
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"just now", time.Now().Add(-10 * time.Second), "just now"},
		{"minutes", time.Now().Add(-5 * time.Minute), "5 minutes ago"},
		{"one hour", time.Now().Add(-1*time.Hour - time.Minute), "1 hour ago"},
		{"days", time.Now().Add(-48*time.Hour - time.Minute), "2 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatTime(tt.t))
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 B"},
		{2 * 1024, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.bytes))
		})
	}
}
