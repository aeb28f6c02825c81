package mealgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"
)

// Repository provides a generic abstraction for CRUD operations for a specific
// entity type T. It relies on an explicit Mapper to translate between struct
// fields and node properties.
type Repository[T any] struct {
	runner DBRunner
	mapper Mapper[T]
}

// NewRepository creates a new generic repository for the type T.
//
// Parameters:
//   - runner: An instance of DBRunner, used to execute all Cypher queries.
//   - mapper: The field mapping table for T.
//
// Returns:
//
//	A new Repository instance.
func NewRepository[T any](runner DBRunner, mapper Mapper[T]) *Repository[T] {
	return &Repository[T]{runner: runner, mapper: mapper}
}

// Kind returns the node kind this repository manages.
func (r *Repository[T]) Kind() Kind { return r.mapper.Kind }

// Save creates a new node or updates an existing one.
// It uses a MERGE query on the kind's id property; all other mapped properties
// are set on the node. Embeddings are never written here, they belong to the
// bulk vector pass.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - entity: A pointer to the struct instance to be saved.
//
// Returns:
//
//	An error if the entity is missing its id or display name, or if the query fails.
func (r *Repository[T]) Save(ctx context.Context, entity *T) error {
	id := r.mapper.ID(entity)
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("save %s: id is required", r.mapper.Kind)
	}
	if strings.TrimSpace(r.mapper.Name(entity)) == "" {
		return fmt.Errorf("save %s %s: %s is required", r.mapper.Kind, id, r.mapper.Kind.NameProp())
	}

	setProps := make(map[string]interface{})
	for propName, value := range r.mapper.ToProps(entity) {
		// The property is prefixed with 'n.' for the SET clause.
		setProps["n."+propName] = value
	}

	qb := gocypher.NewQueryBuilder().
		Merge(gocypher.N("n", r.mapper.Kind.Label()).WithProperties(map[string]interface{}{r.mapper.Kind.IDProp(): id})).
		Set(setProps).
		Return("n")

	query, params, err := qb.Build()
	if err != nil {
		return err
	}
	_, err = r.runner.Run(ctx, query, params)
	return err
}

// FindByID retrieves a single entity from the database by its id.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - id: The id value of the entity to find.
//
// Returns:
//
//	A pointer to the found entity, ErrNotFound if no record is found, or another
//	error if the query or mapping fails.
func (r *Repository[T]) FindByID(ctx context.Context, id string) (*T, error) {
	// 1. Build the query using gocypher.
	props := map[string]interface{}{r.mapper.Kind.IDProp(): id}
	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("n", r.mapper.Kind.Label()).WithProperties(props)).
		Return("n").
		Build()
	if err != nil {
		return nil, err
	}

	// 2. Execute the query using the runner.
	eagerResult, err := r.runner.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	// 3. Process the result records.
	if len(eagerResult.Records) == 0 {
		return nil, ErrNotFound
	}
	if len(eagerResult.Records) > 1 {
		// This indicates a data integrity issue, as an id lookup should be unique.
		return nil, fmt.Errorf("expected 1 record but found %d", len(eagerResult.Records))
	}

	entities, err := r.decode(eagerResult.Records)
	if err != nil {
		return nil, err
	}
	return entities[0], nil
}

// FindAll returns one page of entities ordered by id.
func (r *Repository[T]) FindAll(ctx context.Context, skip, limit int) ([]*T, error) {
	if limit <= 0 {
		return []*T{}, nil
	}
	if skip < 0 {
		skip = 0
	}
	kind := r.mapper.Kind
	query := fmt.Sprintf(`
MATCH (n:%s)
RETURN n
ORDER BY n.%s
SKIP $skip
LIMIT $limit
`, kind.Label(), kind.IDProp())
	res, err := r.runner.Run(ctx, query, map[string]any{"skip": int64(skip), "limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	return r.decode(res.Records)
}

// Count returns the number of nodes of the repository's kind.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`MATCH (n:%s) RETURN count(n) AS total`, r.mapper.Kind.Label())
	res, err := r.runner.Run(ctx, query, nil)
	if err != nil {
		return 0, err
	}
	return singleCount(res, "total"), nil
}

// SearchByName performs a case-insensitive substring match on the kind's name
// property (title for recipes). Results are ordered by name, then id.
func (r *Repository[T]) SearchByName(ctx context.Context, q string, limit int) ([]*T, error) {
	q = strings.TrimSpace(q)
	if q == "" || limit <= 0 {
		return []*T{}, nil
	}
	kind := r.mapper.Kind
	query := fmt.Sprintf(`
MATCH (n:%s)
WHERE toLower(n.%s) CONTAINS toLower($q)
RETURN n
ORDER BY n.%s, n.%s
LIMIT $limit
`, kind.Label(), kind.NameProp(), kind.NameProp(), kind.IDProp())
	res, err := r.runner.Run(ctx, query, map[string]any{"q": q, "limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	out, err := r.decode(res.Records)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		ni, nj := r.mapper.Name(out[i]), r.mapper.Name(out[j])
		if ni != nj {
			return ni < nj
		}
		return r.mapper.ID(out[i]) < r.mapper.ID(out[j])
	})
	return out, nil
}

// Delete removes a node by id. Unlike a detach delete it refuses to remove a
// node that still has relationships: the store rejects the transaction and the
// error is returned.
func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	kind := r.mapper.Kind
	query := fmt.Sprintf(`
MATCH (n:%s {%s: $id})
DELETE n
RETURN count(*) AS deleted
`, kind.Label(), kind.IDProp())
	res, err := r.runner.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return err
	}
	if singleCount(res, "deleted") == 0 {
		return ErrNotFound
	}
	return nil
}

// decode maps the `n` column of each record into an entity.
func (r *Repository[T]) decode(records []*neo4j.Record) ([]*T, error) {
	out := make([]*T, 0, len(records))
	for _, record := range records {
		node, err := recordNode(record, "n")
		if err != nil {
			return nil, err
		}
		entity, err := r.mapper.FromProps(node.Props)
		if err != nil {
			return nil, fmt.Errorf("map %s node: %w", r.mapper.Kind, err)
		}
		out = append(out, entity)
	}
	return out, nil
}
