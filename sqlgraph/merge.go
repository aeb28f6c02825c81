package sqlgraph

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
)

const ingredient = string(mealgraph.KindIngredient)

// DuplicateCandidates returns every ingredient ordered by id. SQLite's lower()
// only folds ASCII, so grouping is left entirely to the caller.
func (s *Store) DuplicateCandidates(ctx context.Context) ([]mealgraph.IngredientRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, coalesce(json_extract(props, '$.category'), '')
		FROM nodes WHERE kind = ? ORDER BY id`, ingredient)
	if err != nil {
		return nil, unavailable("list ingredients", err)
	}
	defer rows.Close()

	var out []mealgraph.IngredientRef
	for rows.Next() {
		var ref mealgraph.IngredientRef
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Category); err != nil {
			return nil, unavailable("scan ingredient", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list ingredients", err)
	}
	return out, nil
}

// TransferContains moves every CONTAINS edge pointing at the loser onto the
// survivor. Existing survivor edges are kept, so the result is a union.
func (s *Store) TransferContains(ctx context.Context, loserID, survivorID string) (int, error) {
	return s.transfer(ctx, mealgraph.Contains, loserID, survivorID, false)
}

// TransferClassifiedAs moves every CLASSIFIED_AS edge leaving the loser onto the
// survivor with the same union semantics.
func (s *Store) TransferClassifiedAs(ctx context.Context, loserID, survivorID string) (int, error) {
	return s.transfer(ctx, mealgraph.ClassifiedAs, loserID, survivorID, true)
}

// transfer repoints the loser's end of every rel edge. outgoing selects whether
// the ingredient is the edge's source or its target. Nothing moves if the
// survivor does not exist.
func (s *Store) transfer(ctx context.Context, rel mealgraph.RelType, loserID, survivorID string, outgoing bool) (int, error) {
	var moved int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := nodeExists(ctx, tx, mealgraph.KindIngredient, survivorID)
		if err != nil || !ok {
			return err
		}

		var copyStmt, deleteStmt string
		if outgoing {
			copyStmt = `
				INSERT OR IGNORE INTO edges (rel, from_kind, from_id, to_kind, to_id)
				SELECT rel, from_kind, ?, to_kind, to_id FROM edges
				WHERE rel = ? AND from_kind = ? AND from_id = ?`
			deleteStmt = `DELETE FROM edges WHERE rel = ? AND from_kind = ? AND from_id = ?`
		} else {
			copyStmt = `
				INSERT OR IGNORE INTO edges (rel, from_kind, from_id, to_kind, to_id)
				SELECT rel, from_kind, from_id, to_kind, ? FROM edges
				WHERE rel = ? AND to_kind = ? AND to_id = ?`
			deleteStmt = `DELETE FROM edges WHERE rel = ? AND to_kind = ? AND to_id = ?`
		}

		if _, err := tx.ExecContext(ctx, copyStmt, survivorID, string(rel), ingredient, loserID); err != nil {
			return unavailable("copy edges", err)
		}
		res, err := tx.ExecContext(ctx, deleteStmt, string(rel), ingredient, loserID)
		if err != nil {
			return unavailable("delete edges", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return unavailable("delete edges", err)
		}
		moved = int(n)
		return nil
	})
	return moved, err
}

// CopyEmbeddingIfMissing copies the loser's embedding to a survivor that has none.
func (s *Store) CopyEmbeddingIfMissing(ctx context.Context, loserID, survivorID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE nodes
		SET embedding = (SELECT embedding FROM nodes WHERE kind = ? AND id = ?)
		WHERE kind = ? AND id = ? AND embedding IS NULL
		  AND EXISTS (SELECT 1 FROM nodes WHERE kind = ? AND id = ? AND embedding IS NOT NULL)`,
		ingredient, loserID, ingredient, survivorID, ingredient, loserID)
	if err != nil {
		return false, unavailable("copy embedding", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("copy embedding", err)
	}
	return n > 0, nil
}

// RelationshipCount counts the edges touching an ingredient, or returns
// mealgraph.ErrNotFound when it does not exist.
func (s *Store) RelationshipCount(ctx context.Context, id string) (int, error) {
	var n int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ok, err := nodeExists(ctx, tx, mealgraph.KindIngredient, id)
		if err != nil {
			return err
		}
		if !ok {
			return mealgraph.ErrNotFound
		}
		err = tx.QueryRowContext(ctx, `
			SELECT count(*) FROM edges
			WHERE (from_kind = ? AND from_id = ?) OR (to_kind = ? AND to_id = ?)`,
			ingredient, id, ingredient, id).Scan(&n)
		if err != nil {
			return unavailable("count edges", err)
		}
		return nil
	})
	return n, err
}

// DeleteIngredient deletes an ingredient. A node that still has edges is
// rejected by the foreign keys and reported as an invariant violation.
func (s *Store) DeleteIngredient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE kind = ? AND id = ?`, ingredient, id)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("%w: ingredient %s still has relationships", mealgraph.ErrMergeInvariantViolation, id)
		}
		return unavailable("delete ingredient", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete ingredient", err)
	}
	if n == 0 {
		return mealgraph.ErrNotFound
	}
	return nil
}
