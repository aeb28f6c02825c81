package mealgraph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// The merge steps below each run as their own transaction and are individually
// idempotent, so a merge interrupted between steps can simply be run again.

// DuplicateCandidates returns the ingredients whose lower-cased names collide
// with at least one other ingredient. The caller does the authoritative grouping.
func (pm *PersistenceManager) DuplicateCandidates(ctx context.Context) ([]IngredientRef, error) {
	query := `
MATCH (i:Ingredient)
WITH toLower(i.name) AS key, collect(i) AS members
WHERE size(members) > 1
UNWIND members AS m
RETURN m.ingredient_id AS id, m.name AS name, coalesce(m.category, '') AS category
ORDER BY id
`
	res, err := pm.runner.Run(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	out := make([]IngredientRef, 0, len(res.Records))
	for _, rec := range res.Records {
		out = append(out, IngredientRef{
			ID:       recordString(rec, "id"),
			Name:     recordString(rec, "name"),
			Category: recordString(rec, "category"),
		})
	}
	return out, nil
}

// TransferContains repoints every CONTAINS edge that targets the loser to the
// survivor. MERGE keeps the survivor's edge set a union without duplicates;
// the loser's edge is deleted in the same transaction.
func (pm *PersistenceManager) TransferContains(ctx context.Context, loserID, survivorID string) (int, error) {
	query := `
MATCH (loser:Ingredient {ingredient_id: $loser})<-[r:CONTAINS]-(recipe:Recipe)
MATCH (keep:Ingredient {ingredient_id: $survivor})
MERGE (recipe)-[:CONTAINS]->(keep)
DELETE r
RETURN count(r) AS moved
`
	res, err := pm.runner.Run(ctx, query, map[string]any{"loser": loserID, "survivor": survivorID})
	if err != nil {
		return 0, err
	}
	return int(singleCount(res, "moved")), nil
}

// TransferClassifiedAs repoints every CLASSIFIED_AS edge leaving the loser so it
// leaves the survivor instead, with the same union semantics as TransferContains.
func (pm *PersistenceManager) TransferClassifiedAs(ctx context.Context, loserID, survivorID string) (int, error) {
	query := `
MATCH (loser:Ingredient {ingredient_id: $loser})-[r:CLASSIFIED_AS]->(category:Category)
MATCH (keep:Ingredient {ingredient_id: $survivor})
MERGE (keep)-[:CLASSIFIED_AS]->(category)
DELETE r
RETURN count(r) AS moved
`
	res, err := pm.runner.Run(ctx, query, map[string]any{"loser": loserID, "survivor": survivorID})
	if err != nil {
		return 0, err
	}
	return int(singleCount(res, "moved")), nil
}

// CopyEmbeddingIfMissing copies the loser's embedding onto the survivor only when
// the survivor has none. It reports whether a copy happened.
func (pm *PersistenceManager) CopyEmbeddingIfMissing(ctx context.Context, loserID, survivorID string) (bool, error) {
	query := `
MATCH (loser:Ingredient {ingredient_id: $loser})
MATCH (keep:Ingredient {ingredient_id: $survivor})
WHERE keep.embedding IS NULL AND loser.embedding IS NOT NULL
SET keep.embedding = loser.embedding
RETURN count(keep) AS copied
`
	res, err := pm.runner.Run(ctx, query, map[string]any{"loser": loserID, "survivor": survivorID})
	if err != nil {
		return false, err
	}
	return singleCount(res, "copied") > 0, nil
}

// RelationshipCount returns the number of relationships attached to an
// ingredient in either direction, or ErrNotFound if it does not exist.
func (pm *PersistenceManager) RelationshipCount(ctx context.Context, id string) (int, error) {
	query := `
MATCH (n:Ingredient {ingredient_id: $id})
RETURN size([(n)--() | 1]) AS rels
`
	res, err := pm.runner.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return 0, err
	}
	if len(res.Records) == 0 {
		return 0, ErrNotFound
	}
	return int(recordInt(res.Records[0], "rels")), nil
}

// DeleteIngredient deletes an ingredient that has no relationships left. The
// store rejects deleting a node with attached relationships; that rejection is
// reported as ErrMergeInvariantViolation rather than cascading.
func (pm *PersistenceManager) DeleteIngredient(ctx context.Context, id string) error {
	err := pm.Ingredients().Delete(ctx, id)
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) && strings.HasPrefix(nerr.Code, "Neo.ClientError.Schema.ConstraintValidationFailed") {
		return fmt.Errorf("%w: ingredient %s still has relationships: %s", ErrMergeInvariantViolation, id, nerr.Msg)
	}
	return err
}
