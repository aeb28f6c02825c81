// Package enrich fills in ingredient nutrition and provenance from an external
// knowledge base.
package enrich

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
)

// Result is the outcome of a knowledge-base lookup. Fields holds raw string
// values keyed by source field name.
type Result struct {
	Found  bool
	Fields map[string]string
}

// Source looks up an ingredient by name.
type Source interface {
	Lookup(ctx context.Context, name string) (Result, error)
}

// MaxDescriptionLen bounds the description copied from the source abstract.
const MaxDescriptionLen = 500

// Setter applies one raw source value to an enrichment. It reports false when
// the value could not be used.
type Setter func(e *mealgraph.Enrichment, raw string) bool

// Mapping is the table from source field to enrichment field. Source fields
// absent from the table are ignored.
var Mapping = map[string]Setter{
	"carbs":     nutrient("carbohydrates_g", 1),
	"protein":   nutrient("protein_g", 1),
	"fat":       nutrient("fat_g", 1),
	"calories":  nutrient("energy_kcal", 1),
	"energy_kj": nutrient("energy_kcal", 1/4.184),
	"fiber":     nutrient("fiber_g", 1),
	"sugar":     nutrient("sugar_g", 1),
	"water":     nutrient("water_g", 1),
	"vitaminC":  nutrient("vitamin_c_mg", 1),
	"vitaminA":  nutrient("vitamin_a_ug", 1),
	"vitaminB6": nutrient("vitamin_b6_mg", 1),
	"calcium":   nutrient("calcium_mg", 1),
	"iron":      nutrient("iron_mg", 1),
	"sodium":    nutrient("sodium_mg", 1),
	"potassium": nutrient("potassium_mg", 1),
	"magnesium": nutrient("magnesium_mg", 1),
	"zinc":      nutrient("zinc_mg", 1),
	"abstract": func(e *mealgraph.Enrichment, raw string) bool {
		s := truncate(strings.TrimSpace(raw), MaxDescriptionLen)
		if s == "" {
			return false
		}
		e.Description = &s
		return true
	},
	"thumbnail": text(func(e *mealgraph.Enrichment) **string { return &e.ImageURL }),
	"resource":  text(func(e *mealgraph.Enrichment) **string { return &e.DBpediaURI }),
	"label":     text(func(e *mealgraph.Enrichment) **string { return &e.DBpediaLabel }),
}

// Apply builds an enrichment from source fields and returns the number of
// fields that were set. Fields are applied in sorted order so that two fields
// targeting the same value resolve the same way on every run.
func Apply(fields map[string]string) (*mealgraph.Enrichment, int) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e := &mealgraph.Enrichment{}
	n := 0
	for _, k := range keys {
		set, ok := Mapping[k]
		if !ok {
			continue
		}
		if set(e, fields[k]) {
			n++
		}
	}
	return e, n
}

var numberRe = regexp.MustCompile(`[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`)

// ParseNumber returns the first number found in a literal such as "52 kcal"
// or "2.18E2".
func ParseNumber(raw string) (float64, bool) {
	m := numberRe.FindString(raw)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func nutrient(prop string, factor float64) Setter {
	return func(e *mealgraph.Enrichment, raw string) bool {
		v, ok := ParseNumber(raw)
		if !ok || v < 0 {
			return false
		}
		return e.Nutrition.SetNutrient(prop, v*factor)
	}
}

func text(field func(*mealgraph.Enrichment) **string) Setter {
	return func(e *mealgraph.Enrichment, raw string) bool {
		s := strings.TrimSpace(raw)
		if s == "" {
			return false
		}
		*field(e) = &s
		return true
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
