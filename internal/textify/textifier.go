package textify

import (
	"context"
	"sort"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/exowanderer/WikidataTextEmbedding/internal/store"
	"github.com/exowanderer/WikidataTextEmbedding/internal/wikidata"
)

// DefaultLabelCacheSize bounds the label LRU. Hot properties like P31 and
// P279 appear on nearly every entity, so even a small cache removes most
// store round trips.
const DefaultLabelCacheSize = 100_000

// LabelSource resolves entity and property ids to labels in the target
// language. The second return reports whether the id is known at all, so
// a present-but-empty label stays distinguishable from a missing entity.
type LabelSource interface {
	Label(ctx context.Context, id string) (string, bool, error)
}

// Textifier renders language-projected entities as locale-formatted text.
// Label lookups go through a bounded LRU that also remembers misses, since
// dangling references repeat across entities just like hot properties.
type Textifier struct {
	loc    *Locale
	target string
	labels LabelSource
	cache  *lru.Cache[string, cachedLabel]
}

type cachedLabel struct {
	label string
	found bool
}

// New builds a textifier for one locale. target is the language code whose
// monolingual text values are kept; it usually matches loc.Code but may
// differ when rendering one language's data with another's phrasing.
func New(loc *Locale, target string, labels LabelSource, labelCacheSize int) *Textifier {
	if labelCacheSize <= 0 {
		labelCacheSize = DefaultLabelCacheSize
	}
	cache, _ := lru.New[string, cachedLabel](labelCacheSize)
	return &Textifier{
		loc:    loc,
		target: target,
		labels: labels,
		cache:  cache,
	}
}

// Locale returns the locale pack the textifier renders with.
func (t *Textifier) Locale() *Locale {
	return t.loc
}

// EntityText renders the full text for one entity record.
func (t *Textifier) EntityText(ctx context.Context, rec *store.EntityRecord) (string, error) {
	props, err := t.Properties(ctx, rec.Claims)
	if err != nil {
		return "", err
	}
	return t.loc.MergeEntityText(rec.Label, rec.Description, rec.Aliases, props), nil
}

// Chunks renders rec and splits the text with the given chunker.
func (t *Textifier) Chunks(ctx context.Context, rec *store.EntityRecord, c *Chunker) ([]string, error) {
	props, err := t.Properties(ctx, rec.Claims)
	if err != nil {
		return nil, err
	}
	return c.Chunk(t.loc, rec.Label, rec.Description, rec.Aliases, props), nil
}

// Properties renders an entity's claims into ordered property texts.
// Iteration follows ascending numeric property id so output is stable
// across runs regardless of map order. Per property, preferred-rank claims
// win over normal ones, unrenderable values drop their claim, and a
// property whose claims all drop disappears entirely. Suppressed values
// (empty strings) keep the property present with an empty claim list.
func (t *Textifier) Properties(ctx context.Context, claims map[string][]wikidata.Claim) ([]PropertyText, error) {
	pids := sortedIDs(claims)
	props := make([]PropertyText, 0, len(pids))
	for _, pid := range pids {
		selected := selectByRank(claims[pid])
		values := make([]ClaimText, 0, len(selected))
		present := false
		for i := range selected {
			text, ok, err := t.renderSnak(ctx, &selected[i].MainSnak)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			present = true
			if text == "" {
				continue
			}
			quals, err := t.renderQualifiers(ctx, selected[i].Qualifiers)
			if err != nil {
				return nil, err
			}
			values = append(values, ClaimText{Value: text, Qualifiers: quals})
		}
		if !present {
			continue
		}
		label, found, err := t.lookupLabel(ctx, pid)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		props = append(props, PropertyText{Label: label, Claims: values})
	}
	return props, nil
}

// renderSnak produces the text for one snak. ok reports whether the claim
// should be kept at all: false drops the claim, and when every claim of a
// property drops this way the property itself vanishes from the output.
// An empty string with ok true suppresses the value but keeps the
// property's presence.
func (t *Textifier) renderSnak(ctx context.Context, snak *wikidata.Snak) (string, bool, error) {
	if snak.SnakType != wikidata.SnakValue || snak.DataValue == nil {
		return t.loc.NoValue, true, nil
	}
	switch snak.DataType {
	case "wikibase-item", "wikibase-property":
		ev, err := snak.DataValue.EntityID()
		if err != nil {
			return "", false, err
		}
		id := ev.EntityID()
		if id == "" {
			return "", false, nil
		}
		label, found, err := t.lookupLabel(ctx, id)
		if err != nil {
			return "", false, err
		}
		if !found {
			return "", false, nil
		}
		return label, true, nil
	case "monolingualtext":
		mt, err := snak.DataValue.MonolingualText()
		if err != nil {
			return "", false, err
		}
		if mt.Language != t.target {
			return "", true, nil
		}
		return mt.Text, true, nil
	case "string":
		s, err := snak.DataValue.StringValue()
		if err != nil {
			return "", false, err
		}
		return s, true, nil
	case "time":
		tv, err := snak.DataValue.Time()
		if err != nil {
			return "", false, err
		}
		text, err := RenderTime(tv, t.loc)
		if err != nil {
			return "", false, err
		}
		return text, true, nil
	case "quantity":
		qv, err := snak.DataValue.Quantity()
		if err != nil {
			return "", false, err
		}
		unitID := qv.UnitID()
		if unitID == "" {
			return qv.Amount, true, nil
		}
		label, found, err := t.lookupLabel(ctx, unitID)
		if err != nil {
			return "", false, err
		}
		if !found {
			// A dangling unit still reads better as a bare id than as
			// a unitless number.
			label = unitID
		}
		return qv.Amount + " " + label, true, nil
	case "external-id":
		return "", false, nil
	default:
		return "", true, nil
	}
}

func (t *Textifier) renderQualifiers(ctx context.Context, qualifiers map[string][]wikidata.Snak) ([]QualifierText, error) {
	if len(qualifiers) == 0 {
		return nil, nil
	}
	pids := sortedIDs(qualifiers)
	out := make([]QualifierText, 0, len(pids))
	for _, pid := range pids {
		snaks := qualifiers[pid]
		values := make([]string, 0, len(snaks))
		present := false
		for i := range snaks {
			text, ok, err := t.renderSnak(ctx, &snaks[i])
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			present = true
			if text == "" {
				continue
			}
			values = append(values, text)
		}
		if !present {
			continue
		}
		label, found, err := t.lookupLabel(ctx, pid)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out = append(out, QualifierText{Label: label, Values: values})
	}
	return out, nil
}

func (t *Textifier) lookupLabel(ctx context.Context, id string) (string, bool, error) {
	if hit, ok := t.cache.Get(id); ok {
		return hit.label, hit.found, nil
	}
	label, found, err := t.labels.Label(ctx, id)
	if err != nil {
		return "", false, err
	}
	t.cache.Add(id, cachedLabel{label: label, found: found})
	return label, found, nil
}

// sortedIDs returns map keys ordered by numeric id. Ids without a numeric
// part sort after the numeric ones, lexically.
func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ni, iok := idNumber(ids[i])
		nj, jok := idNumber(ids[j])
		switch {
		case iok && jok:
			if ni != nj {
				return ni < nj
			}
			return ids[i] < ids[j]
		case iok != jok:
			return iok
		default:
			return ids[i] < ids[j]
		}
	})
	return ids
}

func idNumber(id string) (int64, bool) {
	if len(id) < 2 || (id[0] != 'P' && id[0] != 'Q') {
		return 0, false
	}
	n, err := strconv.ParseInt(id[1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// selectByRank applies preferred-over-normal selection. Deprecated claims
// were already removed during language projection but are filtered again
// in case raw claims reach the textifier.
func selectByRank(claims []wikidata.Claim) []wikidata.Claim {
	var preferred, normal []wikidata.Claim
	for _, c := range claims {
		switch c.Rank {
		case wikidata.RankPreferred:
			preferred = append(preferred, c)
		case wikidata.RankNormal, "":
			normal = append(normal, c)
		}
	}
	if len(preferred) > 0 {
		return preferred
	}
	return normal
}
