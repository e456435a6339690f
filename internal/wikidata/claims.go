package wikidata

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Snak types as they appear on the wire.
const (
	SnakValue     = "value"
	SnakNoValue   = "novalue"
	SnakSomeValue = "somevalue"
)

// Statement ranks.
const (
	RankPreferred  = "preferred"
	RankNormal     = "normal"
	RankDeprecated = "deprecated"
)

// Calendar model URIs used in time values.
const (
	CalendarGregorian = "http://www.wikidata.org/entity/Q1985727"
	CalendarJulian    = "http://www.wikidata.org/entity/Q1985786"
)

// Claim is one statement about an entity.
type Claim struct {
	ID              string            `json:"id,omitempty"`
	Type            string            `json:"type,omitempty"`
	Rank            string            `json:"rank,omitempty"`
	MainSnak        Snak              `json:"mainsnak"`
	Qualifiers      map[string][]Snak `json:"qualifiers,omitempty"`
	QualifiersOrder []string          `json:"qualifiers-order,omitempty"`
}

// Snak is a single property-value assertion.
type Snak struct {
	SnakType  string     `json:"snaktype"`
	Property  string     `json:"property,omitempty"`
	Hash      string     `json:"hash,omitempty"`
	DataType  string     `json:"datatype,omitempty"`
	DataValue *DataValue `json:"datavalue,omitempty"`
}

// DataValue carries a typed value. The payload stays raw until a typed
// accessor decodes it, so unknown value types pass through untouched.
type DataValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// EntityIDValue is the payload of a wikibase-entityid datavalue.
type EntityIDValue struct {
	EntityType string `json:"entity-type"`
	ID         string `json:"id,omitempty"`
	NumericID  int64  `json:"numeric-id,omitempty"`
}

// EntityID returns the entity identifier, reconstructing it from the
// numeric form in older dumps that omit the id field.
func (v EntityIDValue) EntityID() string {
	if v.ID != "" {
		return v.ID
	}
	switch v.EntityType {
	case "item":
		return fmt.Sprintf("Q%d", v.NumericID)
	case "property":
		return fmt.Sprintf("P%d", v.NumericID)
	}
	return ""
}

// TimeValue is the payload of a time datavalue.
type TimeValue struct {
	Time          string `json:"time"`
	Timezone      int    `json:"timezone"`
	Before        int    `json:"before"`
	After         int    `json:"after"`
	Precision     int    `json:"precision"`
	CalendarModel string `json:"calendarmodel"`
}

// QuantityValue is the payload of a quantity datavalue.
type QuantityValue struct {
	Amount     string `json:"amount"`
	Unit       string `json:"unit"`
	UpperBound string `json:"upperBound,omitempty"`
	LowerBound string `json:"lowerBound,omitempty"`
}

// UnitID returns the QID of the unit entity, or "" for dimensionless
// quantities (unit "1").
func (v QuantityValue) UnitID() string {
	if v.Unit == "" || v.Unit == "1" {
		return ""
	}
	if i := strings.LastIndex(v.Unit, "/"); i >= 0 {
		return v.Unit[i+1:]
	}
	return v.Unit
}

// MonolingualTextValue is the payload of a monolingualtext datavalue.
type MonolingualTextValue struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// EntityID decodes a wikibase-entityid payload.
func (d *DataValue) EntityID() (EntityIDValue, error) {
	var v EntityIDValue
	if err := json.Unmarshal(d.Value, &v); err != nil {
		return EntityIDValue{}, fmt.Errorf("decode entity id value: %w", err)
	}
	return v, nil
}

// Time decodes a time payload.
func (d *DataValue) Time() (TimeValue, error) {
	var v TimeValue
	if err := json.Unmarshal(d.Value, &v); err != nil {
		return TimeValue{}, fmt.Errorf("decode time value: %w", err)
	}
	return v, nil
}

// Quantity decodes a quantity payload.
func (d *DataValue) Quantity() (QuantityValue, error) {
	var v QuantityValue
	if err := json.Unmarshal(d.Value, &v); err != nil {
		return QuantityValue{}, fmt.Errorf("decode quantity value: %w", err)
	}
	return v, nil
}

// MonolingualText decodes a monolingualtext payload.
func (d *DataValue) MonolingualText() (MonolingualTextValue, error) {
	var v MonolingualTextValue
	if err := json.Unmarshal(d.Value, &v); err != nil {
		return MonolingualTextValue{}, fmt.Errorf("decode monolingual text value: %w", err)
	}
	return v, nil
}

// StringValue decodes a plain string payload.
func (d *DataValue) StringValue() (string, error) {
	var v string
	if err := json.Unmarshal(d.Value, &v); err != nil {
		return "", fmt.Errorf("decode string value: %w", err)
	}
	return v, nil
}

// CleanClaims projects the entity's claims down to what textification
// needs: statements that are not deprecated, each reduced to mainsnak,
// qualifiers, and rank. Statement hashes, redundant property keys,
// numeric fallback IDs, and qualifier ordering are dropped. Properties
// whose statements are all filtered out disappear entirely.
func (e *Entity) CleanClaims() map[string][]Claim {
	if len(e.Claims) == 0 {
		return nil
	}
	cleaned := make(map[string][]Claim, len(e.Claims))
	for pid, statements := range e.Claims {
		var kept []Claim
		for _, st := range statements {
			if st.Type != "statement" || st.Rank == RankDeprecated {
				continue
			}
			kept = append(kept, Claim{
				Rank:       st.Rank,
				MainSnak:   st.MainSnak.cleaned(),
				Qualifiers: cleanQualifiers(st.Qualifiers),
			})
		}
		if len(kept) > 0 {
			cleaned[pid] = kept
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

func cleanQualifiers(qualifiers map[string][]Snak) map[string][]Snak {
	if len(qualifiers) == 0 {
		return nil
	}
	out := make(map[string][]Snak, len(qualifiers))
	for pid, snaks := range qualifiers {
		cleaned := make([]Snak, 0, len(snaks))
		for _, s := range snaks {
			cleaned = append(cleaned, s.cleaned())
		}
		out[pid] = cleaned
	}
	return out
}

// cleaned strips the hash and the property key, which is redundant
// inside a claims map keyed by property. Entity ID payloads lose their
// numeric fallback.
func (s Snak) cleaned() Snak {
	out := Snak{
		SnakType: s.SnakType,
		DataType: s.DataType,
	}
	if s.DataValue == nil {
		return out
	}
	dv := &DataValue{Type: s.DataValue.Type, Value: s.DataValue.Value}
	if dv.Type == "wikibase-entityid" {
		if v, err := s.DataValue.EntityID(); err == nil {
			slim, merr := json.Marshal(EntityIDValue{EntityType: v.EntityType, ID: v.EntityID()})
			if merr == nil {
				dv.Value = slim
			}
		}
	}
	out.DataValue = dv
	return out
}
