package mealgraph

import (
	"context"
	"fmt"
)

// SetEmbeddings writes one batch of vectors in a single transaction. Rows whose
// id does not match a node are ignored; the number of updated nodes is returned.
// Either every row of the batch is applied or none is.
func (pm *PersistenceManager) SetEmbeddings(ctx context.Context, kind Kind, rows []VectorRow) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
	if len(rows) == 0 {
		return 0, nil
	}
	batch := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		batch = append(batch, map[string]any{"id": row.ID, "vector": row.Vector})
	}
	query := fmt.Sprintf(`
UNWIND $batch AS row
MATCH (n:%s {%s: row.id})
SET n.embedding = row.vector
RETURN count(n) AS updated
`, kind.Label(), kind.IDProp())

	res, err := pm.runner.Run(ctx, query, map[string]any{"batch": batch})
	if err != nil {
		return 0, err
	}
	return int(singleCount(res, "updated")), nil
}

// ExportRows returns the text sources for embedding generation, ordered by id.
// A non-positive limit exports every node of the kind.
func (pm *PersistenceManager) ExportRows(ctx context.Context, kind Kind, limit int) ([]ExportRow, error) {
	var query string
	switch kind {
	case KindRecipe:
		query = `
MATCH (r:Recipe)
OPTIONAL MATCH (r)-[:CONTAINS]->(i:Ingredient)
WITH r, collect(DISTINCT i.name) AS related
OPTIONAL MATCH (r)-[:BELONGS_TO]->(c:Category)
WITH r, related, collect(DISTINCT c.name) AS categories
RETURN r.recipe_id AS id, r.title AS name, coalesce(r.description, '') AS description,
       related, categories, r{.calories, .protein, .fat, .sodium} AS nutrition
ORDER BY id
`
	case KindIngredient:
		query = `
MATCH (i:Ingredient)
OPTIONAL MATCH (i)-[:CLASSIFIED_AS]->(c:Category)
WITH i, collect(DISTINCT c.name) AS categories
OPTIONAL MATCH (r:Recipe)-[:CONTAINS]->(i)
WITH i, categories, collect(DISTINCT r.title)[0..5] AS related
RETURN i.ingredient_id AS id, i.name AS name, coalesce(i.description, '') AS description,
       related, categories + [coalesce(i.category, 'Unknown')] AS categories,
       i{.energy_kcal, .protein_g, .fat_g, .carbohydrates_g} AS nutrition
ORDER BY id
`
	case KindCategory:
		query = `
MATCH (c:Category)
OPTIONAL MATCH (c)<-[:BELONGS_TO|CLASSIFIED_AS]-(m)
WITH c, collect(DISTINCT coalesce(m.title, m.name))[0..10] AS related
RETURN c.category_id AS id, c.name AS name, '' AS description,
       coalesce(c.type, '') AS category_type, related, [] AS categories, {} AS nutrition
ORDER BY id
`
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}

	params := map[string]any{}
	if limit > 0 {
		query += "LIMIT $limit\n"
		params["limit"] = int64(limit)
	}

	res, err := pm.runner.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	out := make([]ExportRow, 0, len(res.Records))
	for _, rec := range res.Records {
		row := ExportRow{
			Kind:         kind,
			ID:           recordString(rec, "id"),
			Name:         recordString(rec, "name"),
			Description:  recordString(rec, "description"),
			CategoryType: recordString(rec, "category_type"),
			Related:      recordStrings(rec, "related"),
			Categories:   recordStrings(rec, "categories"),
			Nutrition:    map[string]float64{},
		}
		if raw, ok := recordValue(rec, "nutrition").(map[string]any); ok {
			for k, v := range raw {
				if f, ok := propNumber(v); ok {
					row.Nutrition[k] = f
				}
			}
		}
		out = append(out, row)
	}
	return out, nil
}
