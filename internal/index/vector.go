package index

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/exowanderer/WikidataTextEmbedding/internal/errors"
)

const (
	defaultGraphM        = 16
	defaultGraphEfSearch = 100

	// Level generation factor, 1/ln(M) for the default M.
	graphLevelFactor = 0.25
)

// VectorConfig controls the in-process vector graph.
type VectorConfig struct {
	// Dimensions is the expected embedding width. Required.
	Dimensions int
	// M is the maximum neighbor count per graph node.
	M int
	// EfSearch is the candidate pool size during search.
	EfSearch int
}

// VectorIndex is an HNSW graph over document embeddings. Graph keys
// are dense uint64s mapped to document IDs, so updates and lookups
// stay cheap while the graph itself never sees a string key. Vectors
// are normalized on the way in, which makes graph distance cosine
// distance and the reported score cosine similarity.
//
// Updates use lazy deletion: re-adding a document ID unmaps the old
// graph node instead of removing it. Orphaned nodes are skipped
// during search and dropped the next time the index is saved and
// reloaded.
type VectorIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	idMap   map[uint64]string
	keyMap  map[string]uint64
	nextKey uint64
	orphans int
	config  VectorConfig
	closed  bool
}

// vectorMetadata is the gob sidecar saved next to the graph file.
type vectorMetadata struct {
	IDMap   map[uint64]string
	NextKey uint64
	Config  VectorConfig
}

// NewVectorIndex creates an empty vector index.
func NewVectorIndex(cfg VectorConfig) (*VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("vector index dimensions must be positive, got %d", cfg.Dimensions), nil)
	}
	if cfg.M <= 0 {
		cfg.M = defaultGraphM
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = defaultGraphEfSearch
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = graphLevelFactor

	return &VectorIndex{
		graph:  graph,
		idMap:  make(map[uint64]string),
		keyMap: make(map[string]uint64),
		config: cfg,
	}, nil
}

// Add inserts or replaces vectors by document ID.
func (v *VectorIndex) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("id count %d does not match vector count %d", len(ids), len(vectors))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	for i, id := range ids {
		vec := vectors[i]
		if len(vec) != v.config.Dimensions {
			return errors.New(errors.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector for %s has %d dimensions, index expects %d",
					id, len(vec), v.config.Dimensions), nil)
		}

		normalized := make([]float32, len(vec))
		copy(normalized, vec)
		normalizeInPlace(normalized)

		if oldKey, ok := v.keyMap[id]; ok {
			delete(v.idMap, oldKey)
			v.orphans++
		}

		key := v.nextKey
		v.nextKey++
		v.graph.Add(hnsw.MakeNode(key, normalized))
		v.idMap[key] = id
		v.keyMap[id] = key
	}

	return nil
}

// Search returns the k nearest documents by cosine similarity.
func (v *VectorIndex) Search(vector []float32, k int) ([]Result, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(vector) != v.config.Dimensions {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has %d dimensions, index expects %d",
				len(vector), v.config.Dimensions), nil)
	}
	if k <= 0 || v.graph.Len() == 0 {
		return nil, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeInPlace(query)

	// Ask for extra candidates to cover nodes orphaned by updates.
	nodes := v.graph.Search(query, k+v.orphans)

	results := make([]Result, 0, k)
	for _, node := range nodes {
		id, ok := v.idMap[node.Key]
		if !ok {
			continue
		}
		distance := v.graph.Distance(query, node.Value)
		results = append(results, Result{ID: id, Score: float64(1 - distance)})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Contains reports whether a document ID has a live vector.
func (v *VectorIndex) Contains(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.keyMap[id]
	return ok
}

// Count returns the number of live vectors, excluding orphans.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

// Dimensions returns the configured embedding width.
func (v *VectorIndex) Dimensions() int {
	return v.config.Dimensions
}

// Save writes the graph to path and its ID mapping to path+".meta".
// Both writes go through a temp file and rename so a crash cannot
// leave a truncated index behind.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	if err := writeAtomic(path, func(f *os.File) error {
		w := bufio.NewWriter(f)
		if err := v.graph.Export(w); err != nil {
			return fmt.Errorf("failed to export graph: %w", err)
		}
		return w.Flush()
	}); err != nil {
		return err
	}

	meta := vectorMetadata{IDMap: v.idMap, NextKey: v.nextKey, Config: v.config}
	return writeAtomic(path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	})
}

// LoadVectorIndex reads a graph saved by Save. Orphaned nodes are
// counted so searches keep compensating for them.
func LoadVectorIndex(path string) (*VectorIndex, error) {
	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return nil, fmt.Errorf("failed to open index metadata: %w", err)
	}
	var meta vectorMetadata
	decodeErr := gob.NewDecoder(metaFile).Decode(&meta)
	_ = metaFile.Close()
	if decodeErr != nil {
		return nil, errors.New(errors.ErrCodeStoreCorrupt,
			fmt.Sprintf("vector index metadata at %s is unreadable", path+".meta"), decodeErr).
			WithSuggestion("Delete the index files and run a full reindex")
	}

	v, err := NewVectorIndex(meta.Config)
	if err != nil {
		return nil, err
	}

	graphFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer graphFile.Close()

	if err := v.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return nil, errors.New(errors.ErrCodeStoreCorrupt,
			fmt.Sprintf("vector index at %s is unreadable", path), err).
			WithSuggestion("Delete the index files and run a full reindex")
	}

	if meta.IDMap != nil {
		v.idMap = meta.IDMap
	}
	for key, id := range v.idMap {
		v.keyMap[id] = key
	}
	v.nextKey = meta.NextKey
	v.orphans = v.graph.Len() - len(v.idMap)

	return v, nil
}

// Close releases the index. Further calls fail.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func normalizeInPlace(vec []float32) {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
