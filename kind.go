package mealgraph

import (
	"fmt"
	"strings"
)

// Kind identifies one of the node types stored in the graph. Its string form is
// the lower-case name used by clients ("recipe", "ingredient", "category").
type Kind string

const (
	KindRecipe     Kind = "recipe"
	KindIngredient Kind = "ingredient"
	KindCategory   Kind = "category"
)

// Kinds lists every node kind in canonical order. Ranking tie-breaks and "all"
// searches follow this order.
var Kinds = []Kind{KindRecipe, KindIngredient, KindCategory}

// kindSchema is the explicit mapping from a kind to its label and key properties.
type kindSchema struct {
	label    string
	idProp   string
	nameProp string
	rank     int
}

var schemas = map[Kind]kindSchema{
	KindRecipe:     {label: "Recipe", idProp: "recipe_id", nameProp: "title", rank: 0},
	KindIngredient: {label: "Ingredient", idProp: "ingredient_id", nameProp: "name", rank: 1},
	KindCategory:   {label: "Category", idProp: "category_id", nameProp: "name", rank: 2},
}

// ParseKind converts a client-supplied type name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := schemas[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := schemas[k]
	return ok
}

// Label returns the graph label for the kind, e.g. "Recipe".
func (k Kind) Label() string { return schemas[k].label }

// IDProp returns the property holding the externally visible identifier.
func (k Kind) IDProp() string { return schemas[k].idProp }

// NameProp returns the display-name property: title for recipes, name otherwise.
func (k Kind) NameProp() string { return schemas[k].nameProp }

// Rank is the position of the kind in Kinds.
func (k Kind) Rank() int { return schemas[k].rank }

// RelType is a directed relationship type between two node kinds.
type RelType string

const (
	Contains     RelType = "CONTAINS"
	BelongsTo    RelType = "BELONGS_TO"
	ClassifiedAs RelType = "CLASSIFIED_AS"
)

var relEndpoints = map[RelType][2]Kind{
	Contains:     {KindRecipe, KindIngredient},
	BelongsTo:    {KindRecipe, KindCategory},
	ClassifiedAs: {KindIngredient, KindCategory},
}

// Endpoints returns the source and target kinds of the relationship.
func (r RelType) Endpoints() (from Kind, to Kind, err error) {
	ends, ok := relEndpoints[r]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown type %q", ErrInvalidRelation, string(r))
	}
	return ends[0], ends[1], nil
}
