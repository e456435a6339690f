// Package textify renders language-projected entities into locale-formatted
// prose and splits the result into token-bounded chunks for embedding.
package textify

import (
	"fmt"
	"sort"
	"strings"
)

// PropertyText is one property of an entity with its rendered claim values.
// An empty non-nil Claims slice marks a property whose values were all
// suppressed but whose presence is still worth stating; locales that have a
// "has X" form render it, the others skip the property.
type PropertyText struct {
	Label  string
	Claims []ClaimText
}

// ClaimText is a single rendered claim value plus its qualifiers.
type ClaimText struct {
	Value      string
	Qualifiers []QualifierText
}

// QualifierText is one qualifier property with its rendered values. The same
// empty non-nil convention as PropertyText.Claims applies to Values.
type QualifierText struct {
	Label  string
	Values []string
}

// Locale bundles the date vocabulary and text composition rules for one
// output language. The composition functions own all joiners, quotes, and
// punctuation so the rest of the package stays language-agnostic.
type Locale struct {
	Code    string
	NoValue string

	Months     [12]string
	Century    string
	Millennium string
	Decade     string
	AD         string
	BC         string

	// Year-count units for the geologic precisions, finest to coarsest.
	TenThousandYears     string
	HundredThousandYears string
	MillionYears         string
	TenMillionYears      string
	HundredMillionYears  string
	BillionYears         string

	merge      func(label, description string, aliases []string, properties []PropertyText) string
	qualifiers func(qualifiers []QualifierText) string
	properties func(properties []PropertyText) string
}

// MergeEntityText combines label, description, aliases, and rendered
// properties into the final entity text.
func (l *Locale) MergeEntityText(label, description string, aliases []string, properties []PropertyText) string {
	return l.merge(label, description, aliases, properties)
}

// PropertiesToText renders only the property lines.
func (l *Locale) PropertiesToText(properties []PropertyText) string {
	return l.properties(properties)
}

// QualifiersToText renders a claim's qualifiers.
func (l *Locale) QualifiersToText(qualifiers []QualifierText) string {
	return l.qualifiers(qualifiers)
}

// English is the default locale.
var English = &Locale{
	Code:    "en",
	NoValue: "no value",
	Months: [12]string{
		"Jan", "Feb", "Mar", "Apr", "May", "Jun",
		"Jul", "Aug", "Sep", "Oct", "Nov", "Dec",
	},
	Century:              "th century",
	Millennium:           "th millennium",
	Decade:               "s",
	AD:                   "AD",
	BC:                   "BC",
	TenThousandYears:     "ten thousand years",
	HundredThousandYears: "hundred thousand years",
	MillionYears:         "million years",
	TenMillionYears:      "tens of millions of years",
	HundredMillionYears:  "hundred million years",
	BillionYears:         "billion years",
	merge:                englishMerge,
	qualifiers:           englishQualifiers,
	properties:           englishProperties,
}

// German renders claim values in low-high quotes and joins qualifiers with
// semicolons inside a single parenthesis per claim.
var German = &Locale{
	Code:    "de",
	NoValue: "kein Wert",
	Months: [12]string{
		"Jan", "Feb", "Mär", "Apr", "Mai", "Jun",
		"Jul", "Aug", "Sep", "Okt", "Nov", "Dez",
	},
	Century:              ". Jahrhundert",
	Millennium:           ". Jahrtausend",
	Decade:               "er Jahre",
	AD:                   "n. Chr.",
	BC:                   "v. Chr.",
	TenThousandYears:     "Zehntausend Jahre",
	HundredThousandYears: "Hunderttausend Jahre",
	MillionYears:         "Millionen Jahre",
	TenMillionYears:      "Zehn Millionen Jahre",
	HundredMillionYears:  "Hundert Millionen Jahre",
	BillionYears:         "Milliarden Jahre",
	merge:                germanMerge,
	qualifiers:           germanQualifiers,
	properties:           germanProperties,
}

// Arabic uses the Arabic comma throughout and guillemets around claim
// values. Month names follow the Levantine calendar.
var Arabic = &Locale{
	Code:    "ar",
	NoValue: "لا قيمة",
	Months: [12]string{
		"كانون الثاني", "شباط", "آذار", "نيسان", "أيار", "حزيران",
		"تموز", "آب", "أيلول", "تشرين الأول", "تشرين الثاني", "كانون الأول",
	},
	Century:              "قرن",
	Millennium:           "ألفية",
	Decade:               "عقد",
	AD:                   "م",
	BC:                   "ق.م",
	TenThousandYears:     "عشرة آلاف سنة",
	HundredThousandYears: "مئات آلاف السنين",
	MillionYears:         "ملايين السنين",
	TenMillionYears:      "عشرات الملايين من السنين",
	HundredMillionYears:  "مئات الملايين من السنين",
	BillionYears:         "مليار سنة",
	merge:                arabicMerge,
	qualifiers:           arabicQualifiers,
	properties:           arabicProperties,
}

var locales = map[string]*Locale{
	"en": English,
	"de": German,
	"ar": Arabic,
}

// ForCode returns the locale pack registered for a language code.
func ForCode(code string) (*Locale, error) {
	loc, ok := locales[strings.ToLower(code)]
	if !ok {
		return nil, fmt.Errorf("no locale pack for language %q", code)
	}
	return loc, nil
}

// Languages lists the registered locale codes in sorted order.
func Languages() []string {
	codes := make([]string, 0, len(locales))
	for code := range locales {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func englishMerge(label, description string, aliases []string, properties []PropertyText) string {
	var b strings.Builder
	b.WriteString(label)
	b.WriteString(", ")
	b.WriteString(description)
	if len(aliases) > 0 {
		b.WriteString(", also known as ")
		b.WriteString(strings.Join(aliases, ", "))
	}
	if len(properties) > 0 {
		b.WriteString(". Attributes include: ")
		b.WriteString(englishProperties(properties))
	} else {
		b.WriteString(".")
	}
	return b.String()
}

func englishQualifiers(qualifiers []QualifierText) string {
	var b strings.Builder
	for _, q := range qualifiers {
		if len(q.Values) > 0 {
			if b.Len() > 0 {
				b.WriteString(" ")
			}
			b.WriteString("(")
			b.WriteString(q.Label)
			b.WriteString(": ")
			b.WriteString(strings.Join(q.Values, ", "))
			b.WriteString(")")
		} else if q.Values != nil {
			b.WriteString("(has ")
			b.WriteString(q.Label)
			b.WriteString(")")
		}
	}
	if b.Len() > 0 {
		return " " + b.String()
	}
	return ""
}

func englishProperties(properties []PropertyText) string {
	var b strings.Builder
	for _, p := range properties {
		if len(p.Claims) > 0 {
			var claims strings.Builder
			for _, c := range p.Claims {
				if claims.Len() > 0 {
					claims.WriteString(", ")
				}
				claims.WriteString(c.Value)
				if len(c.Qualifiers) > 0 {
					claims.WriteString(englishQualifiers(c.Qualifiers))
				}
			}
			b.WriteString("\n- ")
			b.WriteString(p.Label)
			b.WriteString(": \"")
			b.WriteString(claims.String())
			b.WriteString("\"")
		} else if p.Claims != nil {
			b.WriteString("\n- has ")
			b.WriteString(p.Label)
		}
	}
	return b.String()
}

func germanMerge(label, description string, aliases []string, properties []PropertyText) string {
	var b strings.Builder
	b.WriteString(label)
	b.WriteString(", ")
	b.WriteString(description)
	if len(aliases) > 0 {
		b.WriteString(", auch bekannt als ")
		b.WriteString(strings.Join(aliases, ", "))
	}
	if len(properties) > 0 {
		b.WriteString(". Attribute umfassen: ")
		b.WriteString(germanProperties(properties))
	} else {
		b.WriteString(".")
	}
	return b.String()
}

func germanQualifiers(qualifiers []QualifierText) string {
	var b strings.Builder
	for _, q := range qualifiers {
		if b.Len() > 0 {
			b.WriteString(" ; ")
		}
		b.WriteString(q.Label)
		b.WriteString(": ")
		b.WriteString(strings.Join(q.Values, ", "))
	}
	return b.String()
}

func germanProperties(properties []PropertyText) string {
	var b strings.Builder
	for _, p := range properties {
		if len(p.Claims) == 0 {
			continue
		}
		var claims strings.Builder
		for _, c := range p.Claims {
			if claims.Len() > 0 {
				claims.WriteString(",\n ")
			}
			claims.WriteString("„")
			claims.WriteString(c.Value)
			if len(c.Qualifiers) > 0 {
				claims.WriteString(" (")
				claims.WriteString(germanQualifiers(c.Qualifiers))
				claims.WriteString(")")
			}
			claims.WriteString("“")
		}
		b.WriteString("\n- ")
		b.WriteString(p.Label)
		b.WriteString(": ")
		b.WriteString(claims.String())
	}
	return b.String()
}

func arabicMerge(label, description string, aliases []string, properties []PropertyText) string {
	var b strings.Builder
	b.WriteString(label)
	b.WriteString("، ")
	b.WriteString(description)
	if len(aliases) > 0 {
		b.WriteString("، المعروف أيضًا باسم ")
		b.WriteString(strings.Join(aliases, "، "))
	}
	if len(properties) > 0 {
		b.WriteString(". السمات تتضمن: ")
		b.WriteString(arabicProperties(properties))
	} else {
		b.WriteString(".")
	}
	return b.String()
}

func arabicQualifiers(qualifiers []QualifierText) string {
	var b strings.Builder
	for _, q := range qualifiers {
		if len(q.Values) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ; ")
		}
		b.WriteString(q.Label)
		b.WriteString(": ")
		b.WriteString(strings.Join(q.Values, "، "))
	}
	if b.Len() > 0 {
		return " (" + b.String() + ")"
	}
	return ""
}

func arabicProperties(properties []PropertyText) string {
	var b strings.Builder
	for _, p := range properties {
		if len(p.Claims) == 0 {
			continue
		}
		var claims strings.Builder
		for _, c := range p.Claims {
			if claims.Len() > 0 {
				claims.WriteString("،\n ")
			}
			claims.WriteString("«")
			claims.WriteString(c.Value)
			if len(c.Qualifiers) > 0 {
				claims.WriteString(arabicQualifiers(c.Qualifiers))
			}
			claims.WriteString("»")
		}
		b.WriteString("\n- ")
		b.WriteString(p.Label)
		b.WriteString(": ")
		b.WriteString(claims.String())
	}
	return b.String()
}
