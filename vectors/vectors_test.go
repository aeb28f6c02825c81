package vectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/sqlgraph"
)

func TestDecodeSkipsUnusableItems(t *testing.T) {
	in := `[
		{"id": "r1", "type": "recipe", "embedding": [0.1, 0.2]},
		{"id": 42, "type": "Ingredient", "embedding": [1, 0]},
		{"id": "x", "type": "recipe", "embedding": []},
		{"id": "y", "type": "utensil", "embedding": [1, 1]},
		{"id": null, "type": "category", "embedding": [1, 1]},
		{"id": "c1", "type": "category", "embedding": [0, 1]}
	]`
	b, err := Decode(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 3, b.Skipped)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []mealgraph.VectorRow{{ID: "42", Vector: []float64{1, 0}}}, b.Rows[mealgraph.KindIngredient])

	_, err = Decode(strings.NewReader(`{"id": "r1"}`))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"r1","type":"recipe","embedding":[1,2,3]}]`), 0o600))

	b, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

type flakyWriter struct {
	failures int
	err      error
	calls    int
	sizes    []int
}

func (w *flakyWriter) SetEmbeddings(_ context.Context, _ mealgraph.Kind, rows []mealgraph.VectorRow) (int, error) {
	w.calls++
	if w.calls <= w.failures {
		return 0, w.err
	}
	w.sizes = append(w.sizes, len(rows))
	return len(rows), nil
}

func rowsOf(n, dim int) []mealgraph.VectorRow {
	out := make([]mealgraph.VectorRow, n)
	for i := range out {
		out[i] = mealgraph.VectorRow{ID: fmt.Sprintf("id-%03d", i), Vector: make([]float64, dim)}
	}
	return out
}

func TestPushChunksAndValidatesDimensions(t *testing.T) {
	w := &flakyWriter{}
	p := NewPusher(w, PushOptions{BatchSize: 2, Dimensions: 3}, nil)

	rows := rowsOf(5, 3)
	rows = append(rows, mealgraph.VectorRow{ID: "short", Vector: []float64{1}})
	b := &Batch{Rows: map[mealgraph.Kind][]mealgraph.VectorRow{mealgraph.KindRecipe: rows}}

	report, err := p.Push(context.Background(), b)
	require.NoError(t, err)
	res := report.Kinds[mealgraph.KindRecipe]
	require.NotNil(t, res)
	assert.Equal(t, 5, res.Updated)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, []int{2, 2, 1}, w.sizes)
	assert.Equal(t, 5, report.Updated())
}

func TestPushRetriesWholeBatch(t *testing.T) {
	w := &flakyWriter{failures: 2, err: fmt.Errorf("%w: leader switch", mealgraph.ErrStoreUnavailable)}
	p := NewPusher(w, PushOptions{BatchSize: 10, MaxRetries: 3, InitialInterval: time.Millisecond}, nil)
	b := &Batch{}
	b.Rows = map[mealgraph.Kind][]mealgraph.VectorRow{mealgraph.KindIngredient: rowsOf(4, 2)}

	report, err := p.Push(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, 3, w.calls)
	assert.Equal(t, []int{4}, w.sizes)
	assert.Equal(t, 4, report.Kinds[mealgraph.KindIngredient].Updated)
}

func TestPushGivesUp(t *testing.T) {
	w := &flakyWriter{failures: 10, err: mealgraph.ErrStoreUnavailable}
	p := NewPusher(w, PushOptions{MaxRetries: 1, InitialInterval: time.Millisecond}, nil)
	b := &Batch{Rows: map[mealgraph.Kind][]mealgraph.VectorRow{mealgraph.KindCategory: rowsOf(1, 2)}}

	_, err := p.Push(context.Background(), b)
	assert.ErrorIs(t, err, mealgraph.ErrStoreUnavailable)
	assert.Equal(t, 2, w.calls)

	bad := &flakyWriter{failures: 10, err: errors.New("syntax error")}
	_, err = NewPusher(bad, PushOptions{MaxRetries: 5, InitialInterval: time.Millisecond}, nil).Push(context.Background(), b)
	assert.ErrorContains(t, err, "syntax error")
	assert.Equal(t, 1, bad.calls)
}

func openGraph(t *testing.T) *sqlgraph.Store {
	t.Helper()
	s, err := sqlgraph.Open(filepath.Join(t.TempDir(), "vectors.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	kcal := 52.0
	require.NoError(t, sqlgraph.Save(ctx, s, mealgraph.RecipeMapper, &mealgraph.Recipe{ID: "r1", Title: "Apple Pie", Description: "Classic\npie"}))
	require.NoError(t, sqlgraph.Save(ctx, s, mealgraph.IngredientMapper, &mealgraph.Ingredient{ID: "i1", Name: "Apple", Nutrition: mealgraph.Nutrition{EnergyKcal: &kcal}}))
	require.NoError(t, sqlgraph.Save(ctx, s, mealgraph.CategoryMapper, &mealgraph.Category{ID: "c1", Name: "Desserts", Type: "recipe"}))
	require.NoError(t, s.Connect(ctx, mealgraph.Contains, "r1", "i1"))
	require.NoError(t, s.Connect(ctx, mealgraph.BelongsTo, "r1", "c1"))
	return s
}

func TestExport(t *testing.T) {
	s := openGraph(t)
	docs, err := NewExporter(s, nil).Export(context.Background(), mealgraph.Kinds, 0)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, Document{ID: "r1", Type: "recipe", Text: "Apple Pie. Classic pie. Ingredients: Apple. Categories: Desserts."}, docs[0])
	assert.Equal(t, "Apple. Nutrition: calories: 52. Used in recipes: Apple Pie.", docs[1].Text)
	assert.Equal(t, "Desserts. Type: recipe. Contains: Apple Pie.", docs[2].Text)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, docs))
	var back []Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, docs, back)
}

func TestTextDefaults(t *testing.T) {
	assert.Equal(t, "Category. Type: general. Contains: .", Text(mealgraph.ExportRow{Kind: mealgraph.KindCategory}))
	assert.Equal(t, "Ingredient. Nutrition: protein: 1.5g, carbs: 3g. Used in recipes: .",
		Text(mealgraph.ExportRow{Kind: mealgraph.KindIngredient, Nutrition: map[string]float64{"protein_g": 1.5, "carbohydrates_g": 3}}))
}

type countingEmbedder struct{ kinds []string }

func (e *countingEmbedder) Embed(_ context.Context, kind string, texts []string) ([][]float64, error) {
	e.kinds = append(e.kinds, kind)
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 1}
	}
	return out, nil
}

func TestGenerate(t *testing.T) {
	s := openGraph(t)
	ctx := context.Background()
	emb := &countingEmbedder{}
	g := NewGenerator(NewExporter(s, nil), emb, NewPusher(s, PushOptions{Dimensions: 2}, nil), nil)

	report, err := g.Generate(ctx, []mealgraph.Kind{mealgraph.KindRecipe, mealgraph.KindIngredient}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Updated())
	assert.Equal(t, []string{"recipe", "ingredient"}, emb.kinds)

	vec, err := s.GetEmbedding(ctx, mealgraph.KindRecipe, "r1")
	require.NoError(t, err)
	require.Len(t, vec, 2)
	assert.Equal(t, 1.0, vec[1])

	vec, err = s.GetEmbedding(ctx, mealgraph.KindCategory, "c1")
	require.NoError(t, err)
	assert.Nil(t, vec)
}
