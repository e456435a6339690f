// Package wikidata models entities from the Wikidata JSON dump and the
// projections the pipeline derives from them: language-filtered terms,
// cleaned claims, and the identifiers an entity references.
package wikidata

import (
	"encoding/json"
	"strings"
)

// MultilingualCode is the language code Wikidata uses for terms that apply
// to all languages. Lookups fall back to it when the target language has
// no term of its own.
const MultilingualCode = "mul"

// Term is a single labeled value in one language.
type Term struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

// Sitelink links an entity to a page on a Wikimedia site.
type Sitelink struct {
	Site  string `json:"site"`
	Title string `json:"title"`
}

// Entity is one line of the dump: an item (Q...) or property (P...) with
// its terms, claims, and sitelinks.
type Entity struct {
	ID           string               `json:"id"`
	Type         string               `json:"type"`
	Labels       map[string]Term      `json:"labels"`
	Descriptions map[string]Term      `json:"descriptions"`
	Aliases      map[string][]Term    `json:"aliases"`
	Claims       map[string][]Claim   `json:"claims"`
	Sitelinks    map[string]*Sitelink `json:"sitelinks"`
}

// ParseEntity decodes one dump line. The caller is expected to have
// stripped array brackets and trailing commas already.
func ParseEntity(line []byte) (*Entity, error) {
	var e Entity
	if err := json.Unmarshal(line, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// IsItem reports whether the entity is an item (Q-prefixed ID).
func (e *Entity) IsItem() bool {
	return strings.HasPrefix(e.ID, "Q")
}

// IsProperty reports whether the entity is a property (P-prefixed ID).
func (e *Entity) IsProperty() bool {
	return strings.HasPrefix(e.ID, "P")
}

// Label returns the entity label in lang, falling back to the
// multilingual code, then to the empty string.
func (e *Entity) Label(lang string) string {
	if t, ok := e.Labels[lang]; ok {
		return t.Value
	}
	if t, ok := e.Labels[MultilingualCode]; ok {
		return t.Value
	}
	return ""
}

// Description returns the entity description in lang with the same
// fallback chain as Label.
func (e *Entity) Description(lang string) string {
	if t, ok := e.Descriptions[lang]; ok {
		return t.Value
	}
	if t, ok := e.Descriptions[MultilingualCode]; ok {
		return t.Value
	}
	return ""
}

// AliasValues returns the union of aliases in lang and the multilingual
// code, deduplicated, language-specific aliases first.
func (e *Entity) AliasValues(lang string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, code := range []string{lang, MultilingualCode} {
		for _, t := range e.Aliases[code] {
			if t.Value == "" || seen[t.Value] {
				continue
			}
			seen[t.Value] = true
			out = append(out, t.Value)
		}
	}
	return out
}

// HasSitelink reports whether the entity has a Wikipedia sitelink for
// lang, e.g. "enwiki" for "en".
func (e *Entity) HasSitelink(lang string) bool {
	_, ok := e.Sitelinks[lang+"wiki"]
	return ok
}

// InWikipedia reports whether the entity belongs to the target corpus:
// it must have a Wikipedia page in lang plus a label and a description
// in lang or the multilingual code.
func (e *Entity) InWikipedia(lang string) bool {
	if !e.HasSitelink(lang) {
		return false
	}
	if !e.hasTerm(e.Labels, lang) {
		return false
	}
	return e.hasTerm(e.Descriptions, lang)
}

func (e *Entity) hasTerm(terms map[string]Term, lang string) bool {
	if _, ok := terms[lang]; ok {
		return true
	}
	_, ok := terms[MultilingualCode]
	return ok
}
