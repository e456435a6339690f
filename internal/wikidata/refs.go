package wikidata

// Ref is one identifier discovered during the first dump pass, with the
// flags the ID store accumulates across sightings.
type Ref struct {
	ID          string
	InWikipedia bool
	IsProperty  bool
}

// Refs returns every identifier this entity contributes to the ID store:
// the entity itself (flagged as in Wikipedia, the caller filters for
// that), every claim and qualifier property, every referenced item or
// property value, and the unit of every dimensioned quantity.
//
// Deprecated statements are walked too. Rank filtering belongs to the
// projection pass, and a label for a deprecated value is still a label.
func (e *Entity) Refs() []Ref {
	refs := []Ref{{ID: e.ID, InWikipedia: true, IsProperty: e.IsProperty()}}
	for pid, statements := range e.Claims {
		refs = append(refs, Ref{ID: pid, IsProperty: true})
		for _, st := range statements {
			refs = appendSnakRefs(refs, st.MainSnak)
			for qpid, qsnaks := range st.Qualifiers {
				refs = append(refs, Ref{ID: qpid, IsProperty: true})
				for _, qs := range qsnaks {
					refs = appendSnakRefs(refs, qs)
				}
			}
		}
	}
	return refs
}

// appendSnakRefs adds the identifiers a single snak points at: the
// target of an item or property value, or the unit entity of a
// quantity. Other datatypes reference nothing.
func appendSnakRefs(refs []Ref, s Snak) []Ref {
	if s.SnakType != SnakValue || s.DataValue == nil {
		return refs
	}
	switch s.DataType {
	case "wikibase-item":
		if v, err := s.DataValue.EntityID(); err == nil {
			if id := v.EntityID(); id != "" {
				refs = append(refs, Ref{ID: id})
			}
		}
	case "wikibase-property":
		if v, err := s.DataValue.EntityID(); err == nil {
			if id := v.EntityID(); id != "" {
				refs = append(refs, Ref{ID: id, IsProperty: true})
			}
		}
	case "quantity":
		if v, err := s.DataValue.Quantity(); err == nil {
			if unit := v.UnitID(); unit != "" {
				refs = append(refs, Ref{ID: unit})
			}
		}
	}
	return refs
}

// MergeRefs collapses duplicate sightings of an ID by OR-ing their
// flags, mirroring what the store's upsert does across batches.
func MergeRefs(refs []Ref) []Ref {
	merged := make(map[string]Ref, len(refs))
	order := make([]string, 0, len(refs))
	for _, r := range refs {
		if prev, ok := merged[r.ID]; ok {
			prev.InWikipedia = prev.InWikipedia || r.InWikipedia
			prev.IsProperty = prev.IsProperty || r.IsProperty
			merged[r.ID] = prev
			continue
		}
		merged[r.ID] = r
		order = append(order, r.ID)
	}
	out := make([]Ref, 0, len(order))
	for _, id := range order {
		out = append(out, merged[id])
	}
	return out
}
