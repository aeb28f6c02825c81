package mealgraph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Mapper is the explicit mapping between an entity struct and a graph node. It
// replaces struct-tag reflection: every property a repository reads or writes is
// listed here, so property updates stay type-checked.
type Mapper[T any] struct {
	// Kind determines the label and the id/name properties.
	Kind Kind
	// ID returns the entity's externally visible identifier.
	ID func(*T) string
	// Name returns the entity's display name (title for recipes).
	Name func(*T) string
	// ToProps returns every mapped property except the id. Optional values that
	// are unset are omitted, so a save never clears them.
	ToProps func(*T) map[string]any
	// FromProps builds an entity from node properties.
	FromProps func(map[string]any) (*T, error)
}

// RecipeMapper maps Recipe to `:Recipe` nodes.
var RecipeMapper = Mapper[Recipe]{
	Kind: KindRecipe,
	ID:   func(r *Recipe) string { return r.ID },
	Name: func(r *Recipe) string { return r.Title },
	ToProps: func(r *Recipe) map[string]any {
		return map[string]any{
			"title":           r.Title,
			"rating":          r.Rating,
			"calories":        r.Calories,
			"protein":         r.Protein,
			"fat":             r.Fat,
			"sodium":          r.Sodium,
			"description":     r.Description,
			"directions":      r.Directions,
			"ingredients_raw": r.IngredientsRaw,
		}
	},
	FromProps: func(p map[string]any) (*Recipe, error) {
		vec, err := PropVector(p, "embedding")
		if err != nil {
			return nil, err
		}
		return &Recipe{
			ID:             PropString(p, "recipe_id"),
			Title:          PropString(p, "title"),
			Rating:         PropFloat(p, "rating"),
			Calories:       PropFloat(p, "calories"),
			Protein:        PropFloat(p, "protein"),
			Fat:            PropFloat(p, "fat"),
			Sodium:         PropFloat(p, "sodium"),
			Description:    PropString(p, "description"),
			Directions:     PropString(p, "directions"),
			IngredientsRaw: PropString(p, "ingredients_raw"),
			Embedding:      vec,
		}, nil
	},
}

// IngredientMapper maps Ingredient to `:Ingredient` nodes.
var IngredientMapper = Mapper[Ingredient]{
	Kind: KindIngredient,
	ID:   func(i *Ingredient) string { return i.ID },
	Name: func(i *Ingredient) string { return i.Name },
	ToProps: func(i *Ingredient) map[string]any {
		category := i.Category
		if strings.TrimSpace(category) == "" {
			category = UnknownCategory
		}
		props := i.Nutrition.Properties()
		props["name"] = i.Name
		props["category"] = category
		props["calories_per_100g"] = i.CaloriesPer100g
		props["kj_per_100g"] = i.KJPer100g
		for prop, v := range map[string]string{
			"description":   i.Description,
			"image_url":     i.ImageURL,
			"dbpedia_uri":   i.DBpediaURI,
			"dbpedia_label": i.DBpediaLabel,
			"enriched_at":   i.EnrichedAt,
		} {
			if v != "" {
				props[prop] = v
			}
		}
		return props
	},
	FromProps: func(p map[string]any) (*Ingredient, error) {
		vec, err := PropVector(p, "embedding")
		if err != nil {
			return nil, err
		}
		ing := &Ingredient{
			ID:              PropString(p, "ingredient_id"),
			Name:            PropString(p, "name"),
			Category:        PropString(p, "category"),
			CaloriesPer100g: PropFloat(p, "calories_per_100g"),
			KJPer100g:       PropFloat(p, "kj_per_100g"),
			Description:     PropString(p, "description"),
			ImageURL:        PropString(p, "image_url"),
			DBpediaURI:      PropString(p, "dbpedia_uri"),
			DBpediaLabel:    PropString(p, "dbpedia_label"),
			EnrichedAt:      PropString(p, "enriched_at"),
			Embedding:       vec,
		}
		if ing.Category == "" {
			ing.Category = UnknownCategory
		}
		for _, f := range nutritionFields {
			if v, ok := propNumber(p[f.prop]); ok {
				ing.Nutrition.SetNutrient(f.prop, v)
			}
		}
		return ing, nil
	},
}

// CategoryMapper maps Category to `:Category` nodes.
var CategoryMapper = Mapper[Category]{
	Kind: KindCategory,
	ID:   func(c *Category) string { return c.ID },
	Name: func(c *Category) string { return c.Name },
	ToProps: func(c *Category) map[string]any {
		return map[string]any{"name": c.Name, "type": c.Type}
	},
	FromProps: func(p map[string]any) (*Category, error) {
		vec, err := PropVector(p, "embedding")
		if err != nil {
			return nil, err
		}
		return &Category{
			ID:        PropString(p, "category_id"),
			Name:      PropString(p, "name"),
			Type:      PropString(p, "type"),
			Embedding: vec,
		}, nil
	},
}

// PropString reads a string property, returning "" when absent or not a string.
func PropString(p map[string]any, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// PropFloat reads a numeric property, returning 0 when absent.
func PropFloat(p map[string]any, key string) float64 {
	v, _ := propNumber(p[key])
	return v
}

func propNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// PropVector reads an embedding property. Vectors are stored as float lists,
// but older imports wrote them as JSON strings; both forms are accepted. A
// missing or empty value returns nil without error.
func PropVector(p map[string]any, key string) ([]float64, error) {
	return DecodeVector(p[key])
}

// DecodeVector converts a raw stored embedding value into a float vector.
func DecodeVector(raw any) ([]float64, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []float64:
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	case []any:
		if len(v) == 0 {
			return nil, nil
		}
		out := make([]float64, len(v))
		for i, item := range v {
			f, ok := propNumber(item)
			if !ok {
				return nil, fmt.Errorf("embedding element %d has type %T", i, item)
			}
			out[i] = f
		}
		return out, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var out []float64
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("decode embedding json: %w", err)
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported embedding type %T", raw)
	}
}
