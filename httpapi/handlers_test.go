package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/search"
)

type memRetriever struct {
	nodes map[mealgraph.Kind][]mealgraph.EmbeddedNode
	err   error
}

func (m *memRetriever) GetEmbedding(_ context.Context, kind mealgraph.Kind, id string) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, n := range m.nodes[kind] {
		if n.ID == id {
			return n.Vector, nil
		}
	}
	return nil, nil
}

func (m *memRetriever) ListEmbeddings(_ context.Context, kind mealgraph.Kind) ([]mealgraph.EmbeddedNode, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.nodes[kind], nil
}

func (m *memRetriever) EmbeddingStats(context.Context) (map[mealgraph.Kind]mealgraph.EmbeddingCoverage, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := map[mealgraph.Kind]mealgraph.EmbeddingCoverage{}
	for _, k := range mealgraph.Kinds {
		n := int64(len(m.nodes[k]))
		out[k] = mealgraph.NewEmbeddingCoverage(n, n)
	}
	return out, nil
}

type staticEmbedder struct{ vec []float64 }

func (s staticEmbedder) EmbedQuery(context.Context, string, string) ([]float64, error) {
	return s.vec, nil
}

func node(kind mealgraph.Kind, id, name string, vec ...float64) mealgraph.EmbeddedNode {
	f := mealgraph.DisplayFields{Name: name}
	if kind == mealgraph.KindRecipe {
		f = mealgraph.DisplayFields{Title: name}
	}
	return mealgraph.EmbeddedNode{Kind: kind, ID: id, Fields: f, Vector: vec}
}

func newTestRouter(r *memRetriever) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := search.NewEngine(r, staticEmbedder{vec: []float64{1, 0}}, search.Options{PerTypeLimit: 5}, nil)
	h := NewSearchHandler(engine, Defaults{Limit: 10, Threshold: 0.5}, nil)
	return NewRouter(RouterConfig{SearchHandler: h})
}

func pantry() *memRetriever {
	return &memRetriever{nodes: map[mealgraph.Kind][]mealgraph.EmbeddedNode{
		mealgraph.KindRecipe: {
			node(mealgraph.KindRecipe, "r1", "Lemon Tart", 1, 0),
			node(mealgraph.KindRecipe, "r2", "Beef Stew", 0, 1),
		},
		mealgraph.KindIngredient: {
			node(mealgraph.KindIngredient, "i1", "Lemon", 0.9, 0.1),
		},
	}}
}

func get(t *testing.T, r http.Handler, url string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	r.ServeHTTP(w, req)
	var body map[string]any
	if w.Header().Get("Content-Type") != "" && w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestSemanticSearch(t *testing.T) {
	r := newTestRouter(pantry())

	w, body := get(t, r, "/api/semantic-search?q=lemon")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "all", body["type"])
	assert.Equal(t, float64(2), body["count"])
	results := body["results"].([]any)
	first := results[0].(map[string]any)
	assert.Equal(t, "recipe", first["type"])
	assert.Equal(t, "r1", first["id"])
	assert.Equal(t, "Lemon Tart", first["title"])
	assert.Equal(t, 1.0, first["similarity_score"])

	w, body = get(t, r, "/api/semantic-search?q=lemon&type=ingredient&limit=1&threshold=0.2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestSemanticSearchBadRequests(t *testing.T) {
	r := newTestRouter(pantry())

	for _, url := range []string{
		"/api/semantic-search",
		"/api/semantic-search?q=x&type=utensil",
		"/api/semantic-search?q=x&limit=abc",
		"/api/semantic-search?q=x&threshold=2",
	} {
		w, body := get(t, r, url)
		assert.Equal(t, http.StatusBadRequest, w.Code, url)
		assert.Contains(t, body, "error", url)
	}
}

func TestSimilar(t *testing.T) {
	r := newTestRouter(pantry())

	w, body := get(t, r, "/api/recipe/r1/similar?target=all&threshold=0")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "all", body["type"])
	for _, res := range body["results"].([]any) {
		assert.NotEqual(t, "r1", res.(map[string]any)["id"])
	}
	assert.Equal(t, float64(2), body["count"])

	w, body = get(t, r, "/api/recipe/missing/similar")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), body["count"])

	w, _ = get(t, r, "/api/utensil/x/similar")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStoreUnavailableMapsTo503(t *testing.T) {
	r := newTestRouter(&memRetriever{err: mealgraph.ErrStoreUnavailable})

	w, body := get(t, r, "/api/semantic-search?q=lemon")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "store_unavailable", body["error"].(map[string]any)["code"])

	w, _ = get(t, r, "/api/embeddings/stats")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatsAndHealth(t *testing.T) {
	r := newTestRouter(pantry())

	w, body := get(t, r, "/api/embeddings/stats")
	require.Equal(t, http.StatusOK, w.Code)
	emb := body["embeddings"].(map[string]any)
	assert.Equal(t, float64(2), emb["recipe"].(map[string]any)["with_embeddings"])

	w, _ = get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
