package mealgraph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ingredientNode(id, name, category string) neo4j.Node {
	return neo4j.Node{
		ElementId: "e-" + id,
		Labels:    []string{"Ingredient"},
		Props:     map[string]any{"ingredient_id": id, "name": name, "category": category},
	}
}

func TestRepositorySaveValidates(t *testing.T) {
	runner := &fakeRunner{}
	repo := NewRepository(runner, IngredientMapper)

	err := repo.Save(context.Background(), &Ingredient{Name: "salt"})
	assert.ErrorContains(t, err, "id is required")

	err = repo.Save(context.Background(), &Ingredient{ID: "ing-1", Name: " "})
	assert.ErrorContains(t, err, "name is required")
	assert.Empty(t, runner.calls)
}

func TestRepositorySaveMerges(t *testing.T) {
	runner := &fakeRunner{}
	repo := NewRepository(runner, IngredientMapper)

	require.NoError(t, repo.Save(context.Background(), &Ingredient{ID: "ing-1", Name: "salt"}))
	require.Len(t, runner.calls, 1)
	q := strings.ToUpper(runner.lastCall().query)
	assert.Contains(t, q, "MERGE")
	assert.Contains(t, q, "INGREDIENT")
}

func TestRepositoryFindByID(t *testing.T) {
	runner := (&fakeRunner{}).
		enqueue(rows([]string{"n"}, []any{ingredientNode("ing-1", "salt", "Spice")}), nil).
		enqueue(rows([]string{"n"}), nil)
	repo := NewRepository(runner, IngredientMapper)

	ing, err := repo.FindByID(context.Background(), "ing-1")
	require.NoError(t, err)
	assert.Equal(t, "salt", ing.Name)
	assert.Equal(t, "Spice", ing.Category)

	_, err = repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryFindByIDPropagatesStoreErrors(t *testing.T) {
	storeErr := errors.Join(ErrStoreUnavailable, errors.New("connection refused"))
	runner := (&fakeRunner{}).enqueue(nil, storeErr)
	repo := NewRepository(runner, IngredientMapper)

	_, err := repo.FindByID(context.Background(), "ing-1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRepositorySearchByNameOrdersResults(t *testing.T) {
	runner := (&fakeRunner{}).enqueue(rows([]string{"n"},
		[]any{ingredientNode("ing-3", "sea salt", "Spice")},
		[]any{ingredientNode("ing-2", "salt", "Spice")},
		[]any{ingredientNode("ing-1", "salt", "Unknown")},
	), nil)
	repo := NewRepository(runner, IngredientMapper)

	got, err := repo.SearchByName(context.Background(), "SALT", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"ing-1", "ing-2", "ing-3"}, []string{got[0].ID, got[1].ID, got[2].ID})

	call := runner.lastCall()
	assert.Equal(t, "SALT", call.params["q"])
	assert.Contains(t, call.query, "toLower(n.name) CONTAINS toLower($q)")
}

func TestRepositorySearchByNameEmptyQuery(t *testing.T) {
	runner := &fakeRunner{}
	got, err := NewRepository(runner, RecipeMapper).SearchByName(context.Background(), "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, runner.calls)
}

func TestRepositoryFindAllAndCount(t *testing.T) {
	runner := (&fakeRunner{}).
		enqueue(rows([]string{"n"}, []any{neo4j.Node{Props: map[string]any{"category_id": "c1", "name": "Dessert", "type": "recipe"}}}), nil).
		enqueue(rows([]string{"total"}, []any{int64(7)}), nil)
	repo := NewRepository(runner, CategoryMapper)

	cats, err := repo.FindAll(context.Background(), -1, 10)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "recipe", cats[0].Type)
	assert.Equal(t, int64(0), runner.calls[0].params["skip"])

	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestRepositoryDelete(t *testing.T) {
	runner := (&fakeRunner{}).
		enqueue(rows([]string{"deleted"}, []any{int64(1)}), nil).
		enqueue(rows([]string{"deleted"}, []any{int64(0)}), nil)
	repo := NewRepository(runner, IngredientMapper)

	require.NoError(t, repo.Delete(context.Background(), "ing-1"))
	assert.NotContains(t, runner.lastCall().query, "DETACH")
	assert.ErrorIs(t, repo.Delete(context.Background(), "ing-2"), ErrNotFound)
}
