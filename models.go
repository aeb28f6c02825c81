package mealgraph

import "time"

// UnknownCategory is the placeholder category assigned to ingredients that were
// imported without one.
const UnknownCategory = "Unknown"

// Recipe represents a `:Recipe` node.
type Recipe struct {
	ID             string
	Title          string
	Rating         float64
	Calories       float64
	Protein        float64
	Fat            float64
	Sodium         float64
	Description    string
	Directions     string
	IngredientsRaw string
	Embedding      []float64
}

// Ingredient represents an `:Ingredient` node, including the optional nutrition
// and provenance fields written by enrichment.
type Ingredient struct {
	ID              string
	Name            string
	Category        string
	CaloriesPer100g float64
	KJPer100g       float64
	Nutrition       Nutrition
	Description     string
	ImageURL        string
	DBpediaURI      string
	DBpediaLabel    string
	EnrichedAt      string
	Embedding       []float64
}

// IsEnriched reports whether the ingredient already carries external provenance.
func (i *Ingredient) IsEnriched() bool {
	return i.DBpediaURI != ""
}

// NutritionalCompleteness returns the percentage (0-100) of tracked nutrition
// fields that are present on the ingredient.
func (i *Ingredient) NutritionalCompleteness() float64 {
	filled := 0
	for _, f := range nutritionFields {
		if !f.completeness {
			continue
		}
		if *f.ref(&i.Nutrition) != nil {
			filled++
		}
	}
	return float64(filled) / float64(completenessFieldCount) * 100
}

// Category represents a `:Category` node. Type is "recipe" or "ingredient".
type Category struct {
	ID        string
	Name      string
	Type      string
	Embedding []float64
}

// Nutrition holds the optional per-100g nutrition values. A nil pointer means
// the value is unknown, which is distinct from zero.
type Nutrition struct {
	CarbohydratesG *float64
	FatG           *float64
	ProteinG       *float64
	EnergyKcal     *float64
	FiberG         *float64
	SugarG         *float64
	WaterG         *float64
	VitaminCMg     *float64
	VitaminAUg     *float64
	VitaminB6Mg    *float64
	CalciumMg      *float64
	IronMg         *float64
	SodiumMg       *float64
	PotassiumMg    *float64
	MagnesiumMg    *float64
	ZincMg         *float64
}

// nutritionField binds one graph property to its Nutrition struct field.
type nutritionField struct {
	prop         string
	ref          func(*Nutrition) **float64
	completeness bool
}

var nutritionFields = []nutritionField{
	{"carbohydrates_g", func(n *Nutrition) **float64 { return &n.CarbohydratesG }, true},
	{"fat_g", func(n *Nutrition) **float64 { return &n.FatG }, true},
	{"protein_g", func(n *Nutrition) **float64 { return &n.ProteinG }, true},
	{"energy_kcal", func(n *Nutrition) **float64 { return &n.EnergyKcal }, true},
	{"fiber_g", func(n *Nutrition) **float64 { return &n.FiberG }, true},
	{"sugar_g", func(n *Nutrition) **float64 { return &n.SugarG }, true},
	{"water_g", func(n *Nutrition) **float64 { return &n.WaterG }, false},
	{"vitamin_c_mg", func(n *Nutrition) **float64 { return &n.VitaminCMg }, true},
	{"vitamin_a_ug", func(n *Nutrition) **float64 { return &n.VitaminAUg }, true},
	{"vitamin_b6_mg", func(n *Nutrition) **float64 { return &n.VitaminB6Mg }, true},
	{"calcium_mg", func(n *Nutrition) **float64 { return &n.CalciumMg }, true},
	{"iron_mg", func(n *Nutrition) **float64 { return &n.IronMg }, true},
	{"sodium_mg", func(n *Nutrition) **float64 { return &n.SodiumMg }, true},
	{"potassium_mg", func(n *Nutrition) **float64 { return &n.PotassiumMg }, true},
	{"magnesium_mg", func(n *Nutrition) **float64 { return &n.MagnesiumMg }, true},
	{"zinc_mg", func(n *Nutrition) **float64 { return &n.ZincMg }, true},
}

var completenessFieldCount = func() int {
	n := 0
	for _, f := range nutritionFields {
		if f.completeness {
			n++
		}
	}
	return n
}()

// SetNutrient sets the nutrition value stored under the given graph property.
// It reports false when prop is not a nutrition property.
func (n *Nutrition) SetNutrient(prop string, v float64) bool {
	for _, f := range nutritionFields {
		if f.prop == prop {
			val := v
			*f.ref(n) = &val
			return true
		}
	}
	return false
}

// Properties returns the present nutrition values keyed by graph property.
func (n *Nutrition) Properties() map[string]any {
	out := make(map[string]any)
	for _, f := range nutritionFields {
		if p := *f.ref(n); p != nil {
			out[f.prop] = *p
		}
	}
	return out
}

// Enrichment is a set-if-present update for an ingredient, assembled from an
// external knowledge-base lookup. Nil fields are left untouched on the node.
type Enrichment struct {
	Nutrition    Nutrition
	Description  *string
	ImageURL     *string
	DBpediaURI   *string
	DBpediaLabel *string
	EnrichedAt   time.Time
}

// Properties flattens the enrichment into graph properties. Only present values
// are included.
func (e *Enrichment) Properties() map[string]any {
	props := e.Nutrition.Properties()
	setString := func(prop string, v *string) {
		if v != nil {
			props[prop] = *v
		}
	}
	setString("description", e.Description)
	setString("image_url", e.ImageURL)
	setString("dbpedia_uri", e.DBpediaURI)
	setString("dbpedia_label", e.DBpediaLabel)
	if !e.EnrichedAt.IsZero() {
		props["enriched_at"] = e.EnrichedAt.UTC().Format(time.RFC3339)
	}
	return props
}

// Empty reports whether the enrichment carries no values besides its timestamp.
func (e *Enrichment) Empty() bool {
	props := e.Properties()
	delete(props, "enriched_at")
	return len(props) == 0
}

// IngredientRef is the minimal view of an ingredient used for duplicate detection.
type IngredientRef struct {
	ID       string
	Name     string
	Category string
}

// DisplayFields are the fields needed to render a search result row.
type DisplayFields struct {
	Title        string   `json:"title,omitempty"`
	Name         string   `json:"name,omitempty"`
	Description  string   `json:"description,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	Category     string   `json:"category,omitempty"`
	CategoryType string   `json:"category_type,omitempty"`
}

// EmbeddedNode is a node that carries an embedding, together with its display fields.
type EmbeddedNode struct {
	Kind   Kind
	ID     string
	Fields DisplayFields
	Vector []float64
}

// VectorRow is one id/vector pair of a bulk embedding write.
type VectorRow struct {
	ID     string    `json:"id"`
	Vector []float64 `json:"vector"`
}

// EmbeddingCoverage summarizes how many nodes of a kind carry an embedding.
type EmbeddingCoverage struct {
	WithEmbeddings int64   `json:"with_embeddings"`
	Total          int64   `json:"total"`
	Percentage     float64 `json:"percentage"`
}

// ExportRow is the raw material for the text that an external model embeds for a node.
type ExportRow struct {
	Kind         Kind
	ID           string
	Name         string
	Description  string
	CategoryType string
	Related      []string
	Categories   []string
	Nutrition    map[string]float64
}
