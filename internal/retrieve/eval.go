package retrieve

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Case is one evaluation row: a query and the entity expected among
// its results, with an optional per-case language filter.
type Case struct {
	Query    string
	Expected string
	Language string
}

// Metrics aggregates retrieval quality over a case set.
type Metrics struct {
	Cases   int     `json:"cases"`
	K       int     `json:"k"`
	HitsAtK float64 `json:"hits_at_k"`
	MRR     float64 `json:"mrr"`
}

var entityIDPattern = regexp.MustCompile(`^[QP]\d+$`)

// LoadCases reads evaluation cases from a CSV file with
// query,expected[,language] columns. A first row whose second field is
// not an entity ID is treated as a header and skipped.
func LoadCases(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cases file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cases := make([]Case, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("%s row %d: want query,expected[,language], got %d fields", path, i+1, len(row))
		}
		expected := strings.TrimSpace(row[1])
		if i == 0 && !entityIDPattern.MatchString(expected) {
			continue
		}
		if !entityIDPattern.MatchString(expected) {
			return nil, fmt.Errorf("%s row %d: %q is not an entity id", path, i+1, expected)
		}
		c := Case{
			Query:    strings.TrimSpace(row[0]),
			Expected: expected,
		}
		if len(row) > 2 {
			c.Language = strings.TrimSpace(row[2])
		}
		cases = append(cases, c)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("%s contains no cases", path)
	}
	return cases, nil
}

// LoadQueries reads retrieval queries from a CSV file. The first
// column is the query text; any further columns are comparator entity
// ids, returned column-major for BatchRetrieveComparative. A first row
// whose second field is not an entity ID is treated as a header and
// skipped; single-column files are taken verbatim.
func LoadQueries(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open queries file: %w", err)
	}
	defer f.Close()

	// The zero FieldsPerRecord makes csv enforce a rectangular file,
	// which comparator columns require.
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var queries []string
	var columns [][]string
	for i, row := range rows {
		if i == 0 && len(row) > 1 && !entityIDPattern.MatchString(strings.TrimSpace(row[1])) {
			continue
		}
		queries = append(queries, strings.TrimSpace(row[0]))
		if columns == nil {
			columns = make([][]string, len(row)-1)
		}
		for c := 1; c < len(row); c++ {
			qid := strings.TrimSpace(row[c])
			if !entityIDPattern.MatchString(qid) {
				return nil, nil, fmt.Errorf("%s row %d: %q is not an entity id", path, i+1, qid)
			}
			columns[c-1] = append(columns[c-1], qid)
		}
	}
	if len(queries) == 0 {
		return nil, nil, fmt.Errorf("%s contains no queries", path)
	}
	return queries, columns, nil
}

// Evaluate runs every case through the retriever and reports Hits@K
// and mean reciprocal rank. A case's own language overrides the
// options filter. Ranks count distinct entities: several chunks of one
// entity occupy a single rank.
func Evaluate(ctx context.Context, r *Retriever, cases []Case, opts Options) (Metrics, error) {
	opts = applyDefaults(opts)
	m := Metrics{Cases: len(cases), K: opts.K}
	if len(cases) == 0 {
		return m, nil
	}

	// Batch per language filter so each batch shares one filter.
	byLang := make(map[string][]int)
	for i, c := range cases {
		lang := c.Language
		if lang == "" {
			lang = opts.Language
		}
		byLang[lang] = append(byLang[lang], i)
	}

	var hits, rr float64
	for lang, rows := range byLang {
		queries := make([]string, len(rows))
		for j, i := range rows {
			queries[j] = cases[i].Query
		}
		batchOpts := opts
		batchOpts.Language = lang
		results, err := r.BatchRetrieve(ctx, queries, batchOpts)
		if err != nil {
			return m, err
		}
		for j, i := range rows {
			rank := entityRank(results[j].IDs, cases[i].Expected)
			if rank > 0 {
				hits++
				rr += 1.0 / float64(rank)
			}
		}
	}
	m.HitsAtK = hits / float64(len(cases))
	m.MRR = rr / float64(len(cases))
	return m, nil
}

// entityRank returns the 1-based rank of expected among the distinct
// entities behind the ranked document ids, or 0 when absent.
func entityRank(ids []string, expected string) int {
	rank := 0
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		qid := id
		if j := strings.IndexByte(id, '_'); j > 0 {
			qid = id[:j]
		}
		if _, ok := seen[qid]; ok {
			continue
		}
		seen[qid] = struct{}{}
		rank++
		if qid == expected {
			return rank
		}
	}
	return 0
}
