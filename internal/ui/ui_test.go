package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_String(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageIDs, "Collecting IDs"},
		{StageEntities, "Projecting"},
		{StageEmbedding, "Embedding"},
		{StagePushing, "Pushing"},
		{StageComplete, "Complete"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.String())
		})
	}
}

func TestStage_Icon(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageIDs, "IDS"},
		{StageEntities, "PROJ"},
		{StageEmbedding, "EMBED"},
		{StagePushing, "PUSH"},
		{StageComplete, "DONE"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage.Icon())
		})
	}
}

func TestIsTTY_WithBuffer_ReturnsFalse(t *testing.T) {
	// Given: a bytes.Buffer (not a TTY)
	buf := &bytes.Buffer{}

	// When: checking if it's a TTY
	result := IsTTY(buf)

	// Then: returns false
	assert.False(t, result)
}

func TestIsTTY_WithNil_ReturnsFalse(t *testing.T) {
	assert.False(t, IsTTY(nil))
}

func TestNewRenderer_NonTTY_ReturnsPlain(t *testing.T) {
	// Given: a non-TTY output
	buf := &bytes.Buffer{}

	// When: creating a renderer
	r := NewRenderer(Config{Output: buf})

	// Then: it is the plain renderer
	assert.IsType(t, &PlainRenderer{}, r)
}

func TestNewRenderer_ForcePlain(t *testing.T) {
	buf := &bytes.Buffer{}

	r := NewRenderer(Config{Output: buf, ForcePlain: true})

	assert.IsType(t, &PlainRenderer{}, r)
}
