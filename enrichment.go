package mealgraph

import (
	"context"
	"fmt"
)

// IngredientsForEnrichment returns up to limit ingredients ordered by name; a
// non-positive limit returns all of them. A non-empty name restricts the result
// to that ingredient (case-insensitive). When onlyUnenriched is set, ingredients
// that already carry external provenance are skipped.
func (pm *PersistenceManager) IngredientsForEnrichment(ctx context.Context, name string, onlyUnenriched bool, limit int) ([]*Ingredient, error) {
	query := `
MATCH (n:Ingredient)
WHERE ($name = '' OR toLower(n.name) = toLower($name))
  AND (NOT $only_unenriched OR n.dbpedia_uri IS NULL)
RETURN n
ORDER BY n.name, n.ingredient_id
`
	params := map[string]any{"name": name, "only_unenriched": onlyUnenriched}
	if limit > 0 {
		query += "LIMIT $limit\n"
		params["limit"] = int64(limit)
	}
	res, err := pm.runner.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return pm.Ingredients().decode(res.Records)
}

// ApplyEnrichment merges the present values of e into an ingredient's
// properties. Absent values leave existing properties untouched.
func (pm *PersistenceManager) ApplyEnrichment(ctx context.Context, id string, e *Enrichment) error {
	props := e.Properties()
	if len(props) == 0 {
		return nil
	}
	query := `
MATCH (n:Ingredient {ingredient_id: $id})
SET n += $props
RETURN count(n) AS updated
`
	res, err := pm.runner.Run(ctx, query, map[string]any{"id": id, "props": props})
	if err != nil {
		return err
	}
	if singleCount(res, "updated") == 0 {
		return fmt.Errorf("enrich ingredient %s: %w", id, ErrNotFound)
	}
	return nil
}
