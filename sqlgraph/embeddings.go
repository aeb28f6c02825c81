package sqlgraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
)

// GetEmbedding returns the stored vector of a node, or nil when the node or its
// embedding is absent.
func (s *Store) GetEmbedding(ctx context.Context, kind mealgraph.Kind, id string) ([]float64, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", mealgraph.ErrUnknownKind, string(kind))
	}
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding FROM nodes WHERE kind = ? AND id = ?`, string(kind), id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get embedding", err)
	}
	return decodeVector(blob), nil
}

// ListEmbeddings returns every node of the kind with a non-empty embedding,
// ordered by id, in one query.
func (s *Store) ListEmbeddings(ctx context.Context, kind mealgraph.Kind) ([]mealgraph.EmbeddedNode, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", mealgraph.ErrUnknownKind, string(kind))
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, props, embedding FROM nodes
		WHERE kind = ? AND embedding IS NOT NULL AND length(embedding) > 0
		ORDER BY id`, string(kind))
	if err != nil {
		return nil, unavailable("list embeddings", err)
	}
	defer rows.Close()

	var out []mealgraph.EmbeddedNode
	for rows.Next() {
		var (
			id, name, raw string
			blob          []byte
		)
		if err := rows.Scan(&id, &name, &raw, &blob); err != nil {
			return nil, unavailable("scan embedding", err)
		}
		props := map[string]any{}
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			s.log.Warn("skipping node with malformed props", "kind", kind, "id", id, "error", err)
			continue
		}
		out = append(out, mealgraph.EmbeddedNode{
			Kind:   kind,
			ID:     id,
			Fields: displayFields(kind, name, props),
			Vector: decodeVector(blob),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list embeddings", err)
	}
	return out, nil
}

func displayFields(kind mealgraph.Kind, name string, props map[string]any) mealgraph.DisplayFields {
	switch kind {
	case mealgraph.KindRecipe:
		f := mealgraph.DisplayFields{Title: name, Description: mealgraph.PropString(props, "description")}
		if _, ok := props["rating"]; ok {
			r := mealgraph.PropFloat(props, "rating")
			f.Rating = &r
		}
		return f
	case mealgraph.KindIngredient:
		category := mealgraph.PropString(props, "category")
		if category == "" {
			category = mealgraph.UnknownCategory
		}
		return mealgraph.DisplayFields{
			Name:        name,
			Category:    category,
			Description: mealgraph.PropString(props, "description"),
		}
	default:
		return mealgraph.DisplayFields{Name: name, CategoryType: mealgraph.PropString(props, "type")}
	}
}

// EmbeddingStats reports embedding coverage for every kind.
func (s *Store) EmbeddingStats(ctx context.Context) (map[mealgraph.Kind]mealgraph.EmbeddingCoverage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, count(embedding), count(*) FROM nodes GROUP BY kind`)
	if err != nil {
		return nil, unavailable("embedding stats", err)
	}
	defer rows.Close()

	counts := map[mealgraph.Kind][2]int64{}
	for rows.Next() {
		var (
			kind        string
			with, total int64
		)
		if err := rows.Scan(&kind, &with, &total); err != nil {
			return nil, unavailable("scan stats", err)
		}
		counts[mealgraph.Kind(kind)] = [2]int64{with, total}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("embedding stats", err)
	}

	out := make(map[mealgraph.Kind]mealgraph.EmbeddingCoverage, len(mealgraph.Kinds))
	for _, k := range mealgraph.Kinds {
		c := counts[k]
		out[k] = mealgraph.NewEmbeddingCoverage(c[0], c[1])
	}
	return out, nil
}

// SetEmbeddings writes one batch of vectors in a single transaction and returns
// the number of nodes updated. Unknown ids are ignored.
func (s *Store) SetEmbeddings(ctx context.Context, kind mealgraph.Kind, rows []mealgraph.VectorRow) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", mealgraph.ErrUnknownKind, string(kind))
	}
	if len(rows) == 0 {
		return 0, nil
	}
	var updated int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE nodes SET embedding = ? WHERE kind = ? AND id = ?`)
		if err != nil {
			return unavailable("prepare embedding update", err)
		}
		defer stmt.Close()
		for _, row := range rows {
			res, err := stmt.ExecContext(ctx, encodeVector(row.Vector), string(kind), row.ID)
			if err != nil {
				return unavailable("update embedding", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return unavailable("update embedding", err)
			}
			updated += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
