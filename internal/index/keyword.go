package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

// proseAnalyzerName is the analyzer for chunk text: unicode word
// segmentation plus lowercasing, no stop words. The corpus mixes
// languages, so any fixed stop list would eat real terms.
const proseAnalyzerName = "wikidex_prose"

// matchAllBoost is the floor score given to non-matching documents so
// a query with little term overlap still fills its result budget.
const matchAllBoost = 0.01

// KeywordIndex is the BM25 leg of the local backend, a bleve index
// over chunk text with exact-match language and qid fields for
// filtering.
type KeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

type keywordDocument struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	QID      string `json:"qid"`
}

func createKeywordMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(proseAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add prose analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = proseAnalyzerName

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = proseAnalyzerName
	textField.Store = false
	textField.IncludeInAll = false

	// Language and qid index the whole value as one term so filters
	// match exactly ("zh-hans" never splits, "Q42" keeps its case).
	exactField := bleve.NewTextFieldMapping()
	exactField.Analyzer = keyword.Name
	exactField.Store = false
	exactField.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("text", textField)
	docMapping.AddFieldMappingsAt("language", exactField)
	docMapping.AddFieldMappingsAt("qid", exactField)
	indexMapping.DefaultMapping = docMapping

	return indexMapping, nil
}

// validateKeywordIndex checks the on-disk index before opening so a
// half-written index from a killed run is rebuilt instead of wedging
// every later command.
func validateKeywordIndex(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isKeywordCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewKeywordIndex opens or creates the keyword index at path. An
// empty path creates an in-memory index for testing. A corrupt
// on-disk index is cleared and recreated, which loses its contents
// until the next reindex.
func NewKeywordIndex(path string) (*KeywordIndex, error) {
	indexMapping, err := createKeywordMapping()
	if err != nil {
		return nil, err
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}

		if validErr := validateKeywordIndex(path); validErr != nil {
			slog.Warn("keyword_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w (original error: %v)",
					path, removeErr, validErr)
			}
			slog.Info("keyword_index_cleared", slog.String("path", path))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isKeywordCorruption(err) {
			slog.Warn("keyword_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword index: %w", err)
	}

	return &KeywordIndex{index: idx, path: path}, nil
}

// Index adds or replaces documents by ID.
func (k *KeywordIndex) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := k.index.NewBatch()
	for _, doc := range docs {
		kd := keywordDocument{Text: doc.Text, Language: doc.Language, QID: doc.QID}
		if err := batch.Index(doc.ID, kd); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := k.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute index batch: %w", err)
	}
	return nil
}

// Search returns up to limit documents ranked by BM25 relevance. The
// query is OR-ed with a match-all at matchAllBoost, so when fewer
// than limit documents share terms with the query the remainder fill
// in at the floor score. Filters apply before ranking.
func (k *KeywordIndex) Search(ctx context.Context, queryStr string, limit int, filter Filter) ([]Result, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if limit <= 0 || strings.TrimSpace(queryStr) == "" {
		return nil, nil
	}

	match := bleve.NewMatchQuery(queryStr)
	match.SetField("text")
	all := bleve.NewMatchAllQuery()
	all.SetBoost(matchAllBoost)

	full := bleve.NewConjunctionQuery(bleve.NewDisjunctionQuery(match, all))
	if len(filter.Languages) > 0 {
		langs := bleve.NewDisjunctionQuery()
		for _, lang := range filter.Languages {
			tq := bleve.NewTermQuery(lang)
			tq.SetField("language")
			langs.AddQuery(tq)
		}
		full.AddQuery(langs)
	}
	if filter.QID != "" {
		tq := bleve.NewTermQuery(filter.QID)
		tq.SetField("qid")
		full.AddQuery(tq)
	}

	req := bleve.NewSearchRequest(full)
	req.Size = limit

	res, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	results := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, Result{ID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (k *KeywordIndex) Count() (uint64, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return 0, fmt.Errorf("keyword index is closed")
	}
	return k.index.DocCount()
}

// Close releases the index. Idempotent.
func (k *KeywordIndex) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	return k.index.Close()
}
