package dedup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/lock"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/sqlgraph"
)

func openGraph(t *testing.T) *sqlgraph.Store {
	t.Helper()
	s, err := sqlgraph.Open(filepath.Join(t.TempDir(), "dedup.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func saveIngredient(t *testing.T, s *sqlgraph.Store, id, name, category string) {
	t.Helper()
	require.NoError(t, sqlgraph.Save(context.Background(), s, mealgraph.IngredientMapper,
		&mealgraph.Ingredient{ID: id, Name: name, Category: category}))
}

func saveRecipe(t *testing.T, s *sqlgraph.Store, id string) {
	t.Helper()
	require.NoError(t, sqlgraph.Save(context.Background(), s, mealgraph.RecipeMapper,
		&mealgraph.Recipe{ID: id, Title: "Recipe " + id}))
}

func saveCategory(t *testing.T, s *sqlgraph.Store, id string) {
	t.Helper()
	require.NoError(t, sqlgraph.Save(context.Background(), s, mealgraph.CategoryMapper,
		&mealgraph.Category{ID: id, Name: "Category " + id, Type: "ingredient"}))
}

func connect(t *testing.T, s *sqlgraph.Store, rel mealgraph.RelType, from, to string) {
	t.Helper()
	require.NoError(t, s.Connect(context.Background(), rel, from, to))
}

type edgeSet struct {
	contains   []sqlgraph.Edge
	classified []sqlgraph.Edge
}

func edges(t *testing.T, s *sqlgraph.Store) edgeSet {
	t.Helper()
	ctx := context.Background()
	c, err := s.Edges(ctx, mealgraph.Contains)
	require.NoError(t, err)
	k, err := s.Edges(ctx, mealgraph.ClassifiedAs)
	require.NoError(t, err)
	return edgeSet{contains: c, classified: k}
}

func TestMergeAbsintheExample(t *testing.T) {
	s := openGraph(t)
	ctx := context.Background()
	saveRecipe(t, s, "R")
	saveIngredient(t, s, "A", "Absinthe", "Unknown")
	saveIngredient(t, s, "B", "absinthe", "Liquor")
	connect(t, s, mealgraph.Contains, "R", "A")
	connect(t, s, mealgraph.Contains, "R", "B")

	e := NewEngine(s, nil, nil)
	report, err := e.Run(ctx, Options{Parallelism: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, report.GroupCount)
	assert.Equal(t, 1, report.Deleted)

	_, err = sqlgraph.Get(ctx, s, mealgraph.IngredientMapper, "A")
	assert.ErrorIs(t, err, mealgraph.ErrNotFound)
	b, err := sqlgraph.Get(ctx, s, mealgraph.IngredientMapper, "B")
	require.NoError(t, err)
	assert.Equal(t, "absinthe", b.Name)
	assert.Equal(t, "Liquor", b.Category)

	assert.Equal(t, []sqlgraph.Edge{{Rel: mealgraph.Contains, FromID: "R", ToID: "B"}}, edges(t, s).contains)

	groups, err := e.FindDuplicateGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestMergeThreeNodeGroup(t *testing.T) {
	s := openGraph(t)
	ctx := context.Background()
	for _, id := range []string{"R1", "R2", "R3"} {
		saveRecipe(t, s, id)
	}
	saveCategory(t, s, "C1")
	saveCategory(t, s, "C2")
	saveIngredient(t, s, "X", "Garlic", "Unknown")
	saveIngredient(t, s, "Y", "garlic", "Vegetable")
	saveIngredient(t, s, "Z", "GARLIC", "")
	connect(t, s, mealgraph.Contains, "R1", "X")
	connect(t, s, mealgraph.Contains, "R1", "Y")
	connect(t, s, mealgraph.Contains, "R2", "Z")
	connect(t, s, mealgraph.Contains, "R3", "X")
	connect(t, s, mealgraph.Contains, "R3", "Z")
	connect(t, s, mealgraph.ClassifiedAs, "X", "C1")
	connect(t, s, mealgraph.ClassifiedAs, "Y", "C1")
	connect(t, s, mealgraph.ClassifiedAs, "Z", "C2")
	_, err := s.SetEmbeddings(ctx, mealgraph.KindIngredient, []mealgraph.VectorRow{{ID: "Z", Vector: []float64{0.1, 0.2}}})
	require.NoError(t, err)

	e := NewEngine(s, lock.NewLocal(), nil)
	report, err := e.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, 1, report.EmbeddingsCopied)

	got := edges(t, s)
	assert.Equal(t, []sqlgraph.Edge{
		{Rel: mealgraph.Contains, FromID: "R1", ToID: "Y"},
		{Rel: mealgraph.Contains, FromID: "R2", ToID: "Y"},
		{Rel: mealgraph.Contains, FromID: "R3", ToID: "Y"},
	}, got.contains)
	assert.Equal(t, []sqlgraph.Edge{
		{Rel: mealgraph.ClassifiedAs, FromID: "Y", ToID: "C1"},
		{Rel: mealgraph.ClassifiedAs, FromID: "Y", ToID: "C2"},
	}, got.classified)

	vec, err := s.GetEmbedding(ctx, mealgraph.KindIngredient, "Y")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, vec)

	n, err := s.Count(ctx, mealgraph.KindIngredient)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMergeNeverOverwritesSurvivorEmbedding(t *testing.T) {
	s := openGraph(t)
	ctx := context.Background()
	saveIngredient(t, s, "A", "Lime", "Fruit")
	saveIngredient(t, s, "B", "lime", "Unknown")
	_, err := s.SetEmbeddings(ctx, mealgraph.KindIngredient, []mealgraph.VectorRow{
		{ID: "A", Vector: []float64{1, 0}},
		{ID: "B", Vector: []float64{0, 1}},
	})
	require.NoError(t, err)

	report, err := NewEngine(s, nil, nil).Run(ctx, Options{})
	require.NoError(t, err)
	assert.Zero(t, report.EmbeddingsCopied)

	vec, err := s.GetEmbedding(ctx, mealgraph.KindIngredient, "A")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, vec)
}

func TestMergeTwiceMatchesMergeOnce(t *testing.T) {
	build := func(t *testing.T) *sqlgraph.Store {
		s := openGraph(t)
		saveRecipe(t, s, "R1")
		saveRecipe(t, s, "R2")
		saveCategory(t, s, "C")
		saveIngredient(t, s, "A", "Flour", "Baking")
		saveIngredient(t, s, "B", "flour", "Unknown")
		connect(t, s, mealgraph.Contains, "R1", "A")
		connect(t, s, mealgraph.Contains, "R1", "B")
		connect(t, s, mealgraph.Contains, "R2", "B")
		connect(t, s, mealgraph.ClassifiedAs, "B", "C")
		return s
	}
	ctx := context.Background()

	once := build(t)
	_, err := NewEngine(once, nil, nil).Run(ctx, Options{})
	require.NoError(t, err)

	// Simulate a crash after the edge transfer but before the delete, then retry
	// the whole pair and the whole run.
	twice := build(t)
	e := NewEngine(twice, nil, nil)
	_, err = twice.TransferContains(ctx, "B", "A")
	require.NoError(t, err)
	_, err = e.MergePair(ctx, "A", "B")
	require.NoError(t, err)
	res, err := e.MergePair(ctx, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, PairResult{}, res)
	report, err := e.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Zero(t, report.GroupCount)

	assert.Equal(t, edges(t, once), edges(t, twice))
}

func TestDryRunWritesNothing(t *testing.T) {
	s := openGraph(t)
	ctx := context.Background()
	saveIngredient(t, s, "A", "Egg", "Dairy")
	saveIngredient(t, s, "B", "egg", "")

	report, err := NewEngine(s, nil, nil).Run(ctx, Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, "A", report.Groups[0].Survivor().ID)

	n, err := s.Count(ctx, mealgraph.KindIngredient)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestManyGroupsInParallel(t *testing.T) {
	s := openGraph(t)
	ctx := context.Background()
	saveRecipe(t, s, "R")
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("Item%02d", i)
		saveIngredient(t, s, name+"-a", name, "Known")
		saveIngredient(t, s, name+"-b", name, "Unknown")
		connect(t, s, mealgraph.Contains, "R", name+"-b")
	}

	report, err := NewEngine(s, lock.NewLocal(), nil).Run(ctx, Options{Parallelism: 4})
	require.NoError(t, err)
	assert.Equal(t, 12, report.GroupCount)
	assert.Equal(t, 12, report.Deleted)
	assert.Equal(t, 12, report.ContainsMoved)

	groups, err := NewEngine(s, nil, nil).FindDuplicateGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

// stickyStore reports a relationship left on the loser after every transfer.
type stickyStore struct {
	refs    []mealgraph.IngredientRef
	deleted []string
}

func (s *stickyStore) DuplicateCandidates(context.Context) ([]mealgraph.IngredientRef, error) {
	return s.refs, nil
}
func (s *stickyStore) TransferContains(context.Context, string, string) (int, error) { return 1, nil }
func (s *stickyStore) TransferClassifiedAs(context.Context, string, string) (int, error) {
	return 0, nil
}
func (s *stickyStore) CopyEmbeddingIfMissing(context.Context, string, string) (bool, error) {
	return false, nil
}
func (s *stickyStore) RelationshipCount(context.Context, string) (int, error) { return 1, nil }
func (s *stickyStore) DeleteIngredient(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func TestInvariantViolationAbortsWithoutDelete(t *testing.T) {
	store := &stickyStore{refs: []mealgraph.IngredientRef{ref("A", "Rum", "Liquor"), ref("B", "rum", "Unknown")}}

	_, err := NewEngine(store, nil, nil).Run(context.Background(), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, mealgraph.ErrMergeInvariantViolation)

	var merr *MergeError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "A", merr.Survivor)
	assert.Equal(t, "B", merr.Loser)
	assert.Equal(t, StepVerify, merr.Step)
	assert.Empty(t, store.deleted)
}

// failingStore fails the candidate query.
type failingStore struct{ stickyStore }

func (*failingStore) DuplicateCandidates(context.Context) ([]mealgraph.IngredientRef, error) {
	return nil, mealgraph.ErrStoreUnavailable
}

func TestStoreUnavailableIsPropagated(t *testing.T) {
	_, err := NewEngine(&failingStore{}, nil, nil).Run(context.Background(), Options{})
	assert.ErrorIs(t, err, mealgraph.ErrStoreUnavailable)
}
