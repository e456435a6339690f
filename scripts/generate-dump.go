//go:build ignore

// Package main generates a synthetic Wikidata dump for load testing.
// Usage: go run scripts/generate-dump.go -entities 10000 -output testdata/bench-all.json.gz
//
// The output uses the real dump framing: a JSON array with one entity
// per line and a trailing comma, optionally gzipped. Entities carry
// labels, descriptions, and aliases in several languages, a mix of
// claim datatypes, and Wikipedia sitelinks for most items.
package main

import (
	"compress/gzip"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numEntities = flag.Int("entities", 10000, "Number of entities to generate")
	outputPath  = flag.String("output", "testdata/bench-all.json.gz", "Output file (.json or .json.gz)")
	seed        = flag.Int64("seed", 42, "Random seed for reproducibility")
	languages   = flag.String("languages", "en,de,fr,ar", "Comma-separated label languages")
	sitelinkPct = flag.Int("sitelinks", 80, "Percent of items with a Wikipedia sitelink")
)

var subjects = []string{
	"writer", "physicist", "river", "mountain", "village", "asteroid",
	"painting", "protein", "railway station", "football club", "church",
	"island", "composer", "software", "newspaper", "lake",
}

var places = []string{
	"Germany", "France", "Japan", "Brazil", "Kenya", "Norway",
	"Indonesia", "Canada", "Egypt", "Chile",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))
	langs := strings.Split(*languages, ",")

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0o755); err != nil {
		fatal(err)
	}
	f, err := os.Create(*outputPath)
	if err != nil {
		fatal(err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(*outputPath, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if _, err := io.WriteString(w, "[\n"); err != nil {
		fatal(err)
	}
	for i := 0; i < *numEntities; i++ {
		line, err := json.Marshal(makeEntity(rng, i, langs))
		if err != nil {
			fatal(err)
		}
		suffix := ",\n"
		if i == *numEntities-1 {
			suffix = "\n"
		}
		if _, err := w.Write(append(line, suffix...)); err != nil {
			fatal(err)
		}
	}
	if _, err := io.WriteString(w, "]\n"); err != nil {
		fatal(err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			fatal(err)
		}
	}
	fmt.Printf("Wrote %d entities to %s\n", *numEntities, *outputPath)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

type term struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type snak struct {
	SnakType  string `json:"snaktype"`
	Property  string `json:"property"`
	DataType  string `json:"datatype"`
	DataValue any    `json:"datavalue,omitempty"`
}

type claim struct {
	Type     string `json:"type"`
	Rank     string `json:"rank"`
	MainSnak snak   `json:"mainsnak"`
}

type sitelink struct {
	Site  string `json:"site"`
	Title string `json:"title"`
}

type entity struct {
	ID           string              `json:"id"`
	Type         string              `json:"type"`
	Labels       map[string]term     `json:"labels"`
	Descriptions map[string]term     `json:"descriptions"`
	Aliases      map[string][]term   `json:"aliases"`
	Claims       map[string][]claim  `json:"claims"`
	Sitelinks    map[string]sitelink `json:"sitelinks"`
}

func makeEntity(rng *rand.Rand, i int, langs []string) entity {
	// Every 50th entity is a property so both branches of the ID
	// store see traffic.
	if i%50 == 49 {
		return makeProperty(i)
	}

	subject := subjects[rng.Intn(len(subjects))]
	place := places[rng.Intn(len(places))]
	name := fmt.Sprintf("%s %d", capitalize(subject), i)

	e := entity{
		ID:           fmt.Sprintf("Q%d", 1000+i),
		Type:         "item",
		Labels:       map[string]term{},
		Descriptions: map[string]term{},
		Aliases:      map[string][]term{},
		Claims:       map[string][]claim{},
		Sitelinks:    map[string]sitelink{},
	}
	for _, lang := range langs {
		e.Labels[lang] = term{Language: lang, Value: name}
		e.Descriptions[lang] = term{Language: lang, Value: fmt.Sprintf("%s in %s", subject, place)}
	}
	e.Aliases[langs[0]] = []term{{Language: langs[0], Value: fmt.Sprintf("the %s of %s", subject, place)}}

	// P31 instance-of, P580 a date, P2044 a quantity
	e.Claims["P31"] = []claim{valueClaim("P31", "wikibase-entityid", map[string]any{
		"entity-type": "item",
		"id":          fmt.Sprintf("Q%d", 100+rng.Intn(50)),
	})}
	e.Claims["P580"] = []claim{valueClaim("P580", "time", map[string]any{
		"time":          fmt.Sprintf("+%04d-%02d-01T00:00:00Z", 1800+rng.Intn(220), 1+rng.Intn(12)),
		"precision":     11,
		"calendarmodel": "http://www.wikidata.org/entity/Q1985727",
	})}
	e.Claims["P2044"] = []claim{valueClaim("P2044", "quantity", map[string]any{
		"amount": fmt.Sprintf("+%d", rng.Intn(9000)),
		"unit":   "http://www.wikidata.org/entity/Q11573",
	})}

	if rng.Intn(100) < *sitelinkPct {
		e.Sitelinks[langs[0]+"wiki"] = sitelink{
			Site:  langs[0] + "wiki",
			Title: name,
		}
	}
	return e
}

func makeProperty(i int) entity {
	id := fmt.Sprintf("P%d", 9000+i)
	return entity{
		ID:   id,
		Type: "property",
		Labels: map[string]term{
			"en": {Language: "en", Value: fmt.Sprintf("relates to %d", i)},
		},
		Descriptions: map[string]term{
			"en": {Language: "en", Value: "synthetic benchmark property"},
		},
		Aliases:   map[string][]term{},
		Claims:    map[string][]claim{},
		Sitelinks: map[string]sitelink{},
	}
}

func valueClaim(property, datatype string, value any) claim {
	return claim{
		Type: "statement",
		Rank: "normal",
		MainSnak: snak{
			SnakType: "value",
			Property: property,
			DataType: datatype,
			DataValue: map[string]any{
				"type":  datavalueType(datatype),
				"value": value,
			},
		},
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func datavalueType(datatype string) string {
	switch datatype {
	case "wikibase-entityid":
		return "wikibase-entityid"
	case "time":
		return "time"
	case "quantity":
		return "quantity"
	default:
		return "string"
	}
}
