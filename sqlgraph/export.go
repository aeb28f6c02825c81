package sqlgraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
)

type nodeRow struct {
	id    string
	name  string
	props map[string]any
}

func (s *Store) nodes(ctx context.Context, kind mealgraph.Kind, filter string, args ...any) ([]nodeRow, error) {
	query := `SELECT id, name, props FROM nodes WHERE kind = ?` + filter
	rows, err := s.db.QueryContext(ctx, query, append([]any{string(kind)}, args...)...)
	if err != nil {
		return nil, unavailable("list nodes", err)
	}
	defer rows.Close()

	var out []nodeRow
	for rows.Next() {
		var (
			n   nodeRow
			raw string
		)
		if err := rows.Scan(&n.id, &n.name, &raw); err != nil {
			return nil, unavailable("scan node", err)
		}
		n.props = map[string]any{}
		if err := json.Unmarshal([]byte(raw), &n.props); err != nil {
			return nil, fmt.Errorf("decode props of %s %s: %w", kind, n.id, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list nodes", err)
	}
	return out, nil
}

// neighbours maps each node id to the names of the nodes linked to it by rel,
// looking in the given direction.
func (s *Store) neighbours(ctx context.Context, rel mealgraph.RelType, outgoing bool) (map[string][]string, error) {
	query := `
		SELECT e.from_id, n.name FROM edges e
		JOIN nodes n ON n.kind = e.to_kind AND n.id = e.to_id
		WHERE e.rel = ? ORDER BY e.from_id, n.name`
	if !outgoing {
		query = `
		SELECT e.to_id, n.name FROM edges e
		JOIN nodes n ON n.kind = e.from_kind AND n.id = e.from_id
		WHERE e.rel = ? ORDER BY e.to_id, n.name`
	}
	rows, err := s.db.QueryContext(ctx, query, string(rel))
	if err != nil {
		return nil, unavailable("list neighbours", err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, unavailable("scan neighbour", err)
		}
		out[id] = append(out[id], name)
	}
	return out, rows.Err()
}

// ExportRows returns the text sources for embedding generation, ordered by id.
// A non-positive limit exports every node of the kind.
func (s *Store) ExportRows(ctx context.Context, kind mealgraph.Kind, limit int) ([]mealgraph.ExportRow, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", mealgraph.ErrUnknownKind, string(kind))
	}
	filter := " ORDER BY id"
	var args []any
	if limit > 0 {
		filter += " LIMIT ?"
		args = append(args, limit)
	}
	nodes, err := s.nodes(ctx, kind, filter, args...)
	if err != nil {
		return nil, err
	}

	var related, categories map[string][]string
	var nutritionProps []string
	switch kind {
	case mealgraph.KindRecipe:
		if related, err = s.neighbours(ctx, mealgraph.Contains, true); err != nil {
			return nil, err
		}
		if categories, err = s.neighbours(ctx, mealgraph.BelongsTo, true); err != nil {
			return nil, err
		}
		nutritionProps = []string{"calories", "protein", "fat", "sodium"}
	case mealgraph.KindIngredient:
		if categories, err = s.neighbours(ctx, mealgraph.ClassifiedAs, true); err != nil {
			return nil, err
		}
		if related, err = s.neighbours(ctx, mealgraph.Contains, false); err != nil {
			return nil, err
		}
		nutritionProps = []string{"energy_kcal", "protein_g", "fat_g", "carbohydrates_g"}
	case mealgraph.KindCategory:
		related = map[string][]string{}
		for _, rel := range []mealgraph.RelType{mealgraph.BelongsTo, mealgraph.ClassifiedAs} {
			m, err := s.neighbours(ctx, rel, false)
			if err != nil {
				return nil, err
			}
			for id, names := range m {
				related[id] = append(related[id], names...)
			}
		}
	}

	out := make([]mealgraph.ExportRow, 0, len(nodes))
	for _, n := range nodes {
		row := mealgraph.ExportRow{
			Kind:        kind,
			ID:          n.id,
			Name:        n.name,
			Description: mealgraph.PropString(n.props, "description"),
			Related:     dedupe(related[n.id]),
			Categories:  dedupe(categories[n.id]),
			Nutrition:   map[string]float64{},
		}
		switch kind {
		case mealgraph.KindIngredient:
			category := mealgraph.PropString(n.props, "category")
			if category == "" {
				category = mealgraph.UnknownCategory
			}
			row.Categories = append(row.Categories, category)
			if len(row.Related) > 5 {
				row.Related = row.Related[:5]
			}
		case mealgraph.KindCategory:
			row.CategoryType = mealgraph.PropString(n.props, "type")
			if len(row.Related) > 10 {
				row.Related = row.Related[:10]
			}
		}
		for _, p := range nutritionProps {
			if _, ok := n.props[p]; ok {
				row.Nutrition[p] = mealgraph.PropFloat(n.props, p)
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			seen[n] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// IngredientsForEnrichment returns up to limit ingredients ordered by name. A
// non-empty name restricts the result to that ingredient (case-insensitive).
// When onlyUnenriched is set, ingredients with a stored external URI are skipped.
func (s *Store) IngredientsForEnrichment(ctx context.Context, name string, onlyUnenriched bool, limit int) ([]*mealgraph.Ingredient, error) {
	filter := ""
	var args []any
	if name != "" {
		filter += " AND lower(name) = lower(?)"
		args = append(args, name)
	}
	if onlyUnenriched {
		filter += " AND json_extract(props, '$.dbpedia_uri') IS NULL"
	}
	filter += " ORDER BY name, id"
	if limit > 0 {
		filter += " LIMIT ?"
		args = append(args, limit)
	}
	nodes, err := s.nodes(ctx, mealgraph.KindIngredient, filter, args...)
	if err != nil {
		return nil, err
	}
	out := make([]*mealgraph.Ingredient, 0, len(nodes))
	for _, n := range nodes {
		n.props["ingredient_id"] = n.id
		ing, err := mealgraph.IngredientMapper.FromProps(n.props)
		if err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	return out, nil
}

// ApplyEnrichment merges the present values of e into an ingredient's properties.
func (s *Store) ApplyEnrichment(ctx context.Context, id string, e *mealgraph.Enrichment) error {
	updates := e.Properties()
	if len(updates) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		props, err := loadProps(ctx, tx, mealgraph.KindIngredient, id)
		if err != nil {
			return fmt.Errorf("enrich ingredient %s: %w", id, err)
		}
		for k, v := range updates {
			props[k] = v
		}
		return writeNode(ctx, tx, mealgraph.KindIngredient, id, mealgraph.PropString(props, "name"), props)
	})
}
