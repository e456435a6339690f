package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress_OutputFormat(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	// When: updating progress
	r.UpdateProgress(ProgressEvent{
		Stage:     StageEmbedding,
		Current:   50,
		Total:     100,
		CurrentID: "Q42",
	})

	// Then: output is correctly formatted
	output := buf.String()
	assert.Contains(t, output, "[EMBED]")
	assert.Contains(t, output, "50/100")
	assert.Contains(t, output, "Q42")
}

func TestPlainRenderer_UpdateProgress_NoANSICodes(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	// When: rendering progress through all stages
	stages := []Stage{StageIDs, StageEntities, StageEmbedding, StagePushing}
	for _, stage := range stages {
		r.UpdateProgress(ProgressEvent{
			Stage:   stage,
			Current: 50,
			Total:   100,
			Message: "Processing...",
		})
	}

	// Then: output contains no ANSI escape codes
	output := buf.String()
	assert.NotContains(t, output, "\x1b[", "should not contain ANSI escape codes")
}

func TestPlainRenderer_UpdateProgress_UnknownTotal(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	// When: reporting a dump pass with no known total
	r.UpdateProgress(ProgressEvent{
		Stage:   StageIDs,
		Current: 100000,
		Message: "entities seen",
	})

	// Then: the running count is shown without a denominator
	output := buf.String()
	assert.Contains(t, output, "[IDS]")
	assert.Contains(t, output, "100000")
	assert.NotContains(t, output, "/")
}

func TestPlainRenderer_AddError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	r.AddError(ErrorEvent{
		ID:  "Q99",
		Err: errors.New("malformed claim"),
	})
	r.AddError(ErrorEvent{
		Err:    errors.New("slow embedder"),
		IsWarn: true,
	})

	output := buf.String()
	assert.Contains(t, output, "ERROR: Q99: malformed claim")
	assert.Contains(t, output, "WARN: slow embedder")
}

func TestPlainRenderer_Complete_Summary(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	// When: completing with stats
	r.Complete(CompletionStats{
		Entities: 1200,
		Chunks:   3400,
		Duration: 90 * time.Second,
		Warnings: 2,
		Stages: StageTimings{
			Read:    30 * time.Second,
			Textify: 10 * time.Second,
			Embed:   40 * time.Second,
			Push:    10 * time.Second,
		},
		Embedder: EmbedderInfo{
			Provider:   "static",
			Model:      "static-hash",
			Dimensions: 256,
		},
	})

	// Then: the summary includes counts, timings, and the embedder
	output := buf.String()
	assert.Contains(t, output, "1200 entities")
	assert.Contains(t, output, "3400 chunks")
	assert.Contains(t, output, "2 warnings")
	assert.Contains(t, output, "Stage breakdown:")
	assert.Contains(t, output, "Embed:")
	assert.Contains(t, output, "static-hash")
	assert.Contains(t, output, "256 dims")
}

func TestPlainRenderer_Complete_NoStats(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	r.Complete(CompletionStats{Duration: time.Second})

	output := buf.String()
	assert.Contains(t, output, "Complete: 0 entities, 0 chunks")
	assert.NotContains(t, output, "Stage breakdown:")
	assert.NotContains(t, output, "Embedder:")
}

func TestPlainRenderer_StartStop(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(Config{Output: buf})

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())
	assert.Empty(t, buf.String())
}
