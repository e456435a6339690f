package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const checkpointFileName = "checkpoint.json"

// Checkpoint records the last completed pipeline stage for the status
// command and for operators resuming multi-stage ingests.
type Checkpoint struct {
	Stage       string    `json:"stage"` // "ids", "entities", or "index"
	DumpPath    string    `json:"dump_path"`
	DumpDate    string    `json:"dump_date"`
	Language    string    `json:"language"`
	Entities    int64     `json:"entities"`
	Chunks      int64     `json:"chunks,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// SaveCheckpoint writes the checkpoint atomically into dir.
func SaveCheckpoint(dir string, cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(dir, checkpointFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, checkpointFileName)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads the checkpoint from dir. A missing file returns
// nil without error.
func LoadCheckpoint(dir string) (*Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(dir, checkpointFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &cp, nil
}
