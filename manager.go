package mealgraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"

	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
)

// PersistenceManager is the central orchestrator for the persistence layer.
// It owns the query runner and provides access to repositories and to the
// cross-entity operations: relationships, embeddings, merges and enrichment.
type PersistenceManager struct {
	runner DBRunner
	log    *logger.Logger
}

// NewPersistenceManager creates a new instance of the PersistenceManager.
func NewPersistenceManager(runner DBRunner, log *logger.Logger) *PersistenceManager {
	if log == nil {
		log = logger.Nop()
	}
	return &PersistenceManager{runner: runner, log: log.With("component", "PersistenceManager")}
}

// RepositoryFor is a generic function that creates and returns a repository
// for a specific struct type T, managed by the given PersistenceManager.
func RepositoryFor[T any](pm *PersistenceManager, mapper Mapper[T]) *Repository[T] {
	return NewRepository(pm.runner, mapper)
}

// Recipes returns the recipe repository.
func (pm *PersistenceManager) Recipes() *Repository[Recipe] { return RepositoryFor(pm, RecipeMapper) }

// Ingredients returns the ingredient repository.
func (pm *PersistenceManager) Ingredients() *Repository[Ingredient] {
	return RepositoryFor(pm, IngredientMapper)
}

// Categories returns the category repository.
func (pm *PersistenceManager) Categories() *Repository[Category] {
	return RepositoryFor(pm, CategoryMapper)
}

// Connect creates a directed relationship between two existing nodes. The
// operation is idempotent: connecting an already-connected pair leaves exactly
// one edge.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - rel: The relationship type; it fixes the labels of both endpoints.
//   - fromID, toID: The ids of the source and target nodes.
//
// Returns:
//
//	ErrNotFound if either endpoint does not exist, ErrInvalidRelation for an
//	unknown relationship type, or a store error.
func (pm *PersistenceManager) Connect(ctx context.Context, rel RelType, fromID, toID string) error {
	from, to, err := rel.Endpoints()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
MATCH (a:%s {%s: $from})
MATCH (b:%s {%s: $to})
MERGE (a)-[:%s]->(b)
RETURN count(*) AS linked
`, from.Label(), from.IDProp(), to.Label(), to.IDProp(), string(rel))

	res, err := pm.runner.Run(ctx, query, map[string]any{"from": fromID, "to": toID})
	if err != nil {
		return err
	}
	if singleCount(res, "linked") == 0 {
		return fmt.Errorf("connect %s %s->%s: %w", rel, fromID, toID, ErrNotFound)
	}
	return nil
}

// Disconnect removes every relationship of the given type between two nodes.
// Removing a relationship that does not exist is not an error.
func (pm *PersistenceManager) Disconnect(ctx context.Context, rel RelType, fromID, toID string) error {
	from, to, err := rel.Endpoints()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
MATCH (a:%s {%s: $from})-[r:%s]->(b:%s {%s: $to})
DELETE r
`, from.Label(), from.IDProp(), string(rel), to.Label(), to.IDProp())
	_, err = pm.runner.Run(ctx, query, map[string]any{"from": fromID, "to": toID})
	return err
}

// FindGraph executes a graph query defined by a gocypher.QueryBuilder and maps the result
// into a generic graph structure composed of nodes and edges.
//
// The caller is responsible for constructing a valid query via the QueryBuilder, including
// a RETURN clause that specifies which nodes and relationships should be included in the
// final graph. For example, `RETURN r, c, i`.
//
// Nodes and relationships returned in several rows appear only once in the result.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - qb: A pointer to a configured gocypher.QueryBuilder instance that defines the graph to retrieve.
//
// Returns:
//   - A pointer to a GraphResult containing the de-duplicated nodes and edges from the query.
//   - An ErrNotFound error if the query executes successfully but returns zero records.
//   - Any other error encountered during query building or execution.
func (pm *PersistenceManager) FindGraph(ctx context.Context, qb *gocypher.QueryBuilder) (*GraphResult, error) {
	query, params, err := qb.Build()
	if err != nil {
		return nil, fmt.Errorf("could not build query: %w", err)
	}
	return pm.findGraph(ctx, query, params)
}

// RecipeGraph returns a recipe together with the ingredients it contains and the
// categories it belongs to.
func (pm *PersistenceManager) RecipeGraph(ctx context.Context, recipeID string) (*GraphResult, error) {
	query := `
MATCH (r:Recipe {recipe_id: $id})
OPTIONAL MATCH (r)-[c:CONTAINS]->(i:Ingredient)
OPTIONAL MATCH (r)-[b:BELONGS_TO]->(cat:Category)
RETURN r, c, i, b, cat
`
	return pm.findGraph(ctx, query, map[string]any{"id": recipeID})
}

func (pm *PersistenceManager) findGraph(ctx context.Context, query string, params map[string]any) (*GraphResult, error) {
	eagerResult, err := pm.runner.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	if len(eagerResult.Records) == 0 {
		return nil, ErrNotFound
	}

	graph := &GraphResult{
		Nodes: make([]*GraphNode, 0),
		Edges: make([]*Edge, 0),
	}
	seenNodeIDs := make(map[string]bool)
	seenEdgeIDs := make(map[string]bool)

	for _, record := range eagerResult.Records {
		for _, value := range record.Values {
			switch v := value.(type) {
			case neo4j.Node:
				if !seenNodeIDs[v.ElementId] {
					props := make(map[string]interface{}, len(v.Props))
					for k, p := range v.Props {
						if k == "embedding" {
							continue
						}
						props[k] = p
					}
					graph.Nodes = append(graph.Nodes, &GraphNode{
						ID:         v.ElementId,
						Labels:     v.Labels,
						Properties: props,
					})
					seenNodeIDs[v.ElementId] = true
				}

			case neo4j.Relationship:
				if !seenEdgeIDs[v.ElementId] {
					graph.Edges = append(graph.Edges, &Edge{
						ID:     v.ElementId,
						Source: v.StartElementId,
						Target: v.EndElementId,
						Type:   v.Type,
					})
					seenEdgeIDs[v.ElementId] = true
				}
			}
		}
	}

	return graph, nil
}
