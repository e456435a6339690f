package wikidata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quantitySnak(pid, amount, unit string) Snak {
	value, _ := json.Marshal(map[string]string{"amount": amount, "unit": unit})
	return Snak{
		SnakType:  SnakValue,
		Property:  pid,
		DataType:  "quantity",
		DataValue: &DataValue{Type: "quantity", Value: value},
	}
}

func refMap(refs []Ref) map[string]Ref {
	m := make(map[string]Ref, len(refs))
	for _, r := range MergeRefs(refs) {
		m[r.ID] = r
	}
	return m
}

func TestRefs_CollectsAllIdentifiers(t *testing.T) {
	e := &Entity{
		ID: "Q42",
		Claims: map[string][]Claim{
			"P31": {{
				Type:     "statement",
				Rank:     RankNormal,
				MainSnak: itemSnak("P31", "Q5"),
				Qualifiers: map[string][]Snak{
					"P1013": {itemSnak("P1013", "Q917")},
				},
			}},
			"P2048": {{
				Type:     "statement",
				Rank:     RankNormal,
				MainSnak: quantitySnak("P2048", "+1.96", "http://www.wikidata.org/entity/Q11573"),
			}},
		},
	}

	got := refMap(e.Refs())

	assert.Equal(t, Ref{ID: "Q42", InWikipedia: true}, got["Q42"])
	assert.Equal(t, Ref{ID: "P31", IsProperty: true}, got["P31"])
	assert.Equal(t, Ref{ID: "Q5"}, got["Q5"])
	assert.Equal(t, Ref{ID: "P1013", IsProperty: true}, got["P1013"])
	assert.Equal(t, Ref{ID: "Q917"}, got["Q917"])
	assert.Equal(t, Ref{ID: "P2048", IsProperty: true}, got["P2048"])
	assert.Equal(t, Ref{ID: "Q11573"}, got["Q11573"])
	assert.Len(t, got, 7)
}

func TestRefs_PropertyValueFlaggedAsProperty(t *testing.T) {
	value, _ := json.Marshal(map[string]any{"entity-type": "property", "id": "P1659"})
	e := &Entity{
		ID: "P31",
		Claims: map[string][]Claim{
			"P1659": {{
				Type: "statement",
				Rank: RankNormal,
				MainSnak: Snak{
					SnakType:  SnakValue,
					DataType:  "wikibase-property",
					DataValue: &DataValue{Type: "wikibase-entityid", Value: value},
				},
			}},
		},
	}

	got := refMap(e.Refs())
	assert.Equal(t, Ref{ID: "P31", InWikipedia: true, IsProperty: true}, got["P31"])
	assert.Equal(t, Ref{ID: "P1659", IsProperty: true}, got["P1659"])
}

func TestRefs_DimensionlessQuantityHasNoUnitRef(t *testing.T) {
	e := &Entity{
		ID: "Q1",
		Claims: map[string][]Claim{
			"P1971": {{
				Type:     "statement",
				Rank:     RankNormal,
				MainSnak: quantitySnak("P1971", "+3", "1"),
			}},
		},
	}

	got := refMap(e.Refs())
	assert.Len(t, got, 2)
	assert.Contains(t, got, "Q1")
	assert.Contains(t, got, "P1971")
}

func TestRefs_NoValueSnakContributesOnlyProperty(t *testing.T) {
	e := &Entity{
		ID: "Q1",
		Claims: map[string][]Claim{
			"P570": {{
				Type:     "statement",
				Rank:     RankNormal,
				MainSnak: Snak{SnakType: SnakNoValue, DataType: "time"},
			}},
		},
	}

	got := refMap(e.Refs())
	assert.Len(t, got, 2)
	assert.Contains(t, got, "P570")
}

func TestRefs_DeprecatedStatementsStillWalked(t *testing.T) {
	e := &Entity{
		ID: "Q1",
		Claims: map[string][]Claim{
			"P31": {{
				Type:     "statement",
				Rank:     RankDeprecated,
				MainSnak: itemSnak("P31", "Q5"),
			}},
		},
	}

	got := refMap(e.Refs())
	assert.Contains(t, got, "Q5")
}

func TestMergeRefs_ORsFlags(t *testing.T) {
	merged := MergeRefs([]Ref{
		{ID: "Q5"},
		{ID: "Q5", InWikipedia: true},
		{ID: "P31", IsProperty: true},
		{ID: "P31"},
	})

	require.Len(t, merged, 2)
	assert.Equal(t, Ref{ID: "Q5", InWikipedia: true}, merged[0])
	assert.Equal(t, Ref{ID: "P31", IsProperty: true}, merged[1])
}

func TestMergeRefs_PreservesFirstSeenOrder(t *testing.T) {
	merged := MergeRefs([]Ref{{ID: "Q2"}, {ID: "Q1"}, {ID: "Q2"}})
	require.Len(t, merged, 2)
	assert.Equal(t, "Q2", merged[0].ID)
	assert.Equal(t, "Q1", merged[1].ID)
}
