package mealgraph

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind("  Recipe ")
	require.NoError(t, err)
	assert.Equal(t, KindRecipe, k)
	assert.Equal(t, "Recipe", k.Label())
	assert.Equal(t, "recipe_id", k.IDProp())
	assert.Equal(t, "title", k.NameProp())

	_, err = ParseKind("all")
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestRelTypeEndpoints(t *testing.T) {
	from, to, err := ClassifiedAs.Endpoints()
	require.NoError(t, err)
	assert.Equal(t, KindIngredient, from)
	assert.Equal(t, KindCategory, to)

	_, _, err = RelType("LIKES").Endpoints()
	assert.ErrorIs(t, err, ErrInvalidRelation)
}

func TestNutritionalCompleteness(t *testing.T) {
	ing := &Ingredient{}
	assert.Equal(t, 0.0, ing.NutritionalCompleteness())

	ing.Nutrition.SetNutrient("protein_g", 1)
	ing.Nutrition.SetNutrient("fat_g", 2)
	ing.Nutrition.SetNutrient("carbohydrates_g", 3)
	assert.InDelta(t, 20.0, ing.NutritionalCompleteness(), 1e-9)

	// water is stored but not tracked for completeness
	ing.Nutrition.SetNutrient("water_g", 80)
	assert.InDelta(t, 20.0, ing.NutritionalCompleteness(), 1e-9)

	assert.False(t, ing.Nutrition.SetNutrient("colour", 1))
}

func TestEnrichmentProperties(t *testing.T) {
	desc := "A spirit."
	e := &Enrichment{Description: &desc, EnrichedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	e.Nutrition.SetNutrient("energy_kcal", 83)

	props := e.Properties()
	assert.Equal(t, map[string]any{
		"description": "A spirit.",
		"energy_kcal": 83.0,
		"enriched_at": "2024-03-01T10:00:00Z",
	}, props)
	assert.False(t, e.Empty())

	assert.True(t, (&Enrichment{EnrichedAt: time.Now()}).Empty())
}

func TestDecodeVector(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    []float64
		wantErr bool
	}{
		{name: "nil", raw: nil, want: nil},
		{name: "float list", raw: []any{1.0, int64(2), 0.5}, want: []float64{1, 2, 0.5}},
		{name: "json string", raw: "[0.1, 0.2]", want: []float64{0.1, 0.2}},
		{name: "empty list", raw: []any{}, want: nil},
		{name: "blank string", raw: "  ", want: nil},
		{name: "bad element", raw: []any{"x"}, wantErr: true},
		{name: "bad json", raw: "[0.1,", wantErr: true},
		{name: "unsupported", raw: 42, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeVector(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIngredientMapperRoundTrip(t *testing.T) {
	props := map[string]any{
		"ingredient_id":     "ing-1",
		"name":              "Absinthe",
		"calories_per_100g": int64(348),
		"protein_g":         0.0,
		"dbpedia_uri":       "http://dbpedia.org/resource/Absinthe",
	}
	ing, err := IngredientMapper.FromProps(props)
	require.NoError(t, err)
	assert.Equal(t, UnknownCategory, ing.Category)
	assert.Equal(t, 348.0, ing.CaloriesPer100g)
	require.NotNil(t, ing.Nutrition.ProteinG)
	assert.Equal(t, 0.0, *ing.Nutrition.ProteinG)
	assert.True(t, ing.IsEnriched())

	out := IngredientMapper.ToProps(ing)
	assert.Equal(t, "Unknown", out["category"])
	assert.Equal(t, 0.0, out["protein_g"])
	assert.NotContains(t, out, "fat_g")
	assert.NotContains(t, out, "image_url")
	assert.NotContains(t, out, "ingredient_id")
}

func TestNewEmbeddingCoverage(t *testing.T) {
	assert.Equal(t, EmbeddingCoverage{WithEmbeddings: 1, Total: 3, Percentage: 33.3}, NewEmbeddingCoverage(1, 3))
	assert.Equal(t, EmbeddingCoverage{}, NewEmbeddingCoverage(0, 0))
}
