// Package retrieve answers batched similarity and keyword queries
// against the document index. Queries are embedded through a
// persistent query-side cache, searched in parallel, and returned in
// input order.
package retrieve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/exowanderer/WikidataTextEmbedding/internal/embed"
	"github.com/exowanderer/WikidataTextEmbedding/internal/index"
	"github.com/exowanderer/WikidataTextEmbedding/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// DefaultK is the result budget per query when none is given.
const DefaultK = 10

// DefaultParallelism bounds concurrent queries per batch.
const DefaultParallelism = 4

// Mode selects the search leg.
type Mode string

const (
	// ModeDense searches by embedding cosine similarity.
	ModeDense Mode = "dense"
	// ModeKeyword searches by best-match text query.
	ModeKeyword Mode = "keyword"
)

// ParseMode validates a mode string from config or flags.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDense, ModeKeyword:
		return Mode(s), nil
	case "":
		return ModeDense, nil
	}
	return "", fmt.Errorf("unknown retrieval mode %q (want dense or keyword)", s)
}

// Options configure one batch call.
type Options struct {
	// K is the result budget per query (per comparator column for
	// comparative calls). Zero means DefaultK.
	K int
	// Language filters results; comma-separated codes are a
	// disjunction. Empty means all languages.
	Language string
	// Mode selects dense or keyword search. Empty means dense.
	Mode Mode
}

// QueryResult holds the ranked hits for one query.
type QueryResult struct {
	Query  string    `json:"query"`
	IDs    []string  `json:"ids"`
	Scores []float64 `json:"scores"`
}

// Retriever runs batch queries against one index with one embedder.
type Retriever struct {
	index    index.DocumentIndex
	embedder embed.Embedder
	cache    *store.EmbedCache
	cacheNS  string
	parallel int
}

// RetrieverOption configures optional collaborators.
type RetrieverOption func(*Retriever)

// WithQueryCache persists query embeddings in cache under the
// collection's query namespace, so repeated queries across runs skip
// the embedder.
func WithQueryCache(cache *store.EmbedCache, collection string) RetrieverOption {
	return func(r *Retriever) {
		r.cache = cache
		r.cacheNS = store.QueryNamespace(collection)
	}
}

// WithParallelism bounds concurrent queries per batch.
func WithParallelism(n int) RetrieverOption {
	return func(r *Retriever) {
		if n > 0 {
			r.parallel = n
		}
	}
}

// NewRetriever creates a Retriever. Index and embedder are required.
func NewRetriever(idx index.DocumentIndex, embedder embed.Embedder, opts ...RetrieverOption) (*Retriever, error) {
	if idx == nil {
		return nil, fmt.Errorf("%w: index is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	r := &Retriever{
		index:    idx,
		embedder: embedder,
		parallel: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// BatchRetrieve returns the top K hits for each query, in query order.
func (r *Retriever) BatchRetrieve(ctx context.Context, queries []string, opts Options) ([]QueryResult, error) {
	opts = applyDefaults(opts)
	langs := SplitLanguages(opts.Language)

	results := make([]QueryResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)

	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			res, err := r.retrieveOne(gctx, q, opts, langs)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// BatchRetrieveComparative scores each query against fixed candidate
// entities. comparators is a group of columns, one QID per row; row i
// belongs to query i. Per query the hits of every column are
// concatenated in group order, each column contributing up to K chunks
// of its candidate entity.
func (r *Retriever) BatchRetrieveComparative(ctx context.Context, queries []string, comparators [][]string, opts Options) ([]QueryResult, error) {
	opts = applyDefaults(opts)
	for c, column := range comparators {
		if len(column) != len(queries) {
			return nil, fmt.Errorf("comparator column %d has %d rows for %d queries", c, len(column), len(queries))
		}
	}
	langs := SplitLanguages(opts.Language)

	results := make([]QueryResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)

	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			query := strings.TrimSpace(q)
			out := QueryResult{Query: query}
			if query == "" {
				results[i] = out
				return nil
			}
			vec, err := r.embedQuery(gctx, query)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			for c, column := range comparators {
				hits, err := r.index.SearchVector(gctx, vec, opts.K, index.Filter{
					Languages: langs,
					QID:       column[i],
				})
				if err != nil {
					return fmt.Errorf("query %d comparator %d: %w", i, c, err)
				}
				ids, scores := splitResults(hits)
				out.IDs = append(out.IDs, ids...)
				out.Scores = append(out.Scores, scores...)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Retriever) retrieveOne(ctx context.Context, query string, opts Options, langs []string) (QueryResult, error) {
	query = strings.TrimSpace(query)
	out := QueryResult{Query: query}
	if query == "" {
		return out, nil
	}
	filter := index.Filter{Languages: langs}

	var hits []index.Result
	var err error
	if opts.Mode == ModeKeyword {
		hits, err = r.index.SearchKeyword(ctx, query, opts.K, filter)
	} else {
		var vec []float32
		vec, err = r.embedQuery(ctx, query)
		if err != nil {
			return out, err
		}
		hits, err = r.index.SearchVector(ctx, vec, opts.K, filter)
	}
	if err != nil {
		return out, err
	}
	out.IDs, out.Scores = splitResults(hits)
	return out, nil
}

// embedQuery embeds through the persistent query cache when one is
// configured.
func (r *Retriever) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if r.cache == nil {
		return r.embedder.Embed(ctx, text, embed.TaskQuery)
	}
	key := QueryKey(text)
	vec, ok, err := r.cache.Get(ctx, r.cacheNS, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check query cache: %w", err)
	}
	if ok {
		return vec, nil
	}
	vec, err = r.embedder.Embed(ctx, text, embed.TaskQuery)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Put(ctx, r.cacheNS, key, vec); err != nil {
		return nil, fmt.Errorf("failed to cache query embedding: %w", err)
	}
	return vec, nil
}

// QueryKey is the cache key for a query: free text is unbounded, so
// the key is its SHA-256 digest rather than the text itself.
func QueryKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SplitLanguages parses a comma-separated language filter into the
// disjunction list the index expects. Empty input means no filter.
func SplitLanguages(language string) []string {
	if strings.TrimSpace(language) == "" {
		return nil
	}
	parts := strings.Split(language, ",")
	langs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			langs = append(langs, p)
		}
	}
	return langs
}

func applyDefaults(opts Options) Options {
	if opts.K <= 0 {
		opts.K = DefaultK
	}
	if opts.Mode == "" {
		opts.Mode = ModeDense
	}
	return opts
}

func splitResults(hits []index.Result) ([]string, []float64) {
	if len(hits) == 0 {
		return nil, nil
	}
	ids := make([]string, len(hits))
	scores := make([]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[i] = h.Score
	}
	return ids, scores
}
