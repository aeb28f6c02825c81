// Package sqlgraph stores the recipe graph in a relational node/edge table pair
// on SQLite. It implements the same operations as the Neo4j adapter so the
// search, dedup, vector and enrichment passes run unchanged on either store.
package sqlgraph

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	props TEXT NOT NULL DEFAULT '{}',   -- JSON object of the mapped properties
	embedding BLOB,                     -- little-endian float64 vector
	PRIMARY KEY (kind, id)
);

-- No ON DELETE action: deleting a node that still has edges fails.
CREATE TABLE IF NOT EXISTS edges (
	rel TEXT NOT NULL,
	from_kind TEXT NOT NULL,
	from_id TEXT NOT NULL,
	to_kind TEXT NOT NULL,
	to_id TEXT NOT NULL,
	PRIMARY KEY (rel, from_kind, from_id, to_kind, to_id),
	FOREIGN KEY (from_kind, from_id) REFERENCES nodes(kind, id),
	FOREIGN KEY (to_kind, to_id) REFERENCES nodes(kind, id)
);

CREATE INDEX IF NOT EXISTS idx_nodes_kind_name ON nodes(kind, name);
CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_kind, to_id);
CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_kind, from_id);
`

// Store is a SQLite-backed graph store.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open opens (creating if needed) the database at path. ":memory:" is accepted.
func Open(path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dsn = path
	}
	dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", mealgraph.ErrStoreUnavailable, err)
	}
	// A single connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: enable foreign keys: %w", mealgraph.ErrStoreUnavailable, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: init schema: %w", mealgraph.ErrStoreUnavailable, err)
	}
	return &Store{db: db, log: log.With("component", "SQLGraph")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", mealgraph.ErrStoreUnavailable, op, err)
}

// Save upserts an entity. Properties missing from the mapped set keep their
// stored value; the embedding is never touched.
func Save[T any](ctx context.Context, s *Store, mapper mealgraph.Mapper[T], entity *T) error {
	id := mapper.ID(entity)
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("save %s: id is required", mapper.Kind)
	}
	name := mapper.Name(entity)
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("save %s %s: %s is required", mapper.Kind, id, mapper.Kind.NameProp())
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		props, err := loadProps(ctx, tx, mapper.Kind, id)
		if err != nil && !errors.Is(err, mealgraph.ErrNotFound) {
			return err
		}
		if props == nil {
			props = map[string]any{}
		}
		for k, v := range mapper.ToProps(entity) {
			props[k] = v
		}
		return writeNode(ctx, tx, mapper.Kind, id, name, props)
	})
}

// Get loads one entity by id, or returns mealgraph.ErrNotFound.
func Get[T any](ctx context.Context, s *Store, mapper mealgraph.Mapper[T], id string) (*T, error) {
	var (
		props map[string]any
		blob  []byte
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT props, embedding FROM nodes WHERE kind = ? AND id = ?`, string(mapper.Kind), id,
		).Scan(&raw, &blob)
		if errors.Is(err, sql.ErrNoRows) {
			return mealgraph.ErrNotFound
		}
		if err != nil {
			return unavailable("get node", err)
		}
		return json.Unmarshal([]byte(raw), &props)
	})
	if err != nil {
		return nil, err
	}
	props[mapper.Kind.IDProp()] = id
	if vec := decodeVector(blob); vec != nil {
		props["embedding"] = vec
	}
	return mapper.FromProps(props)
}

// Count returns the number of nodes of a kind.
func (s *Store) Count(ctx context.Context, kind mealgraph.Kind) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM nodes WHERE kind = ?`, string(kind)).Scan(&n)
	if err != nil {
		return 0, unavailable("count nodes", err)
	}
	return n, nil
}

// Connect creates a relationship between two existing nodes. Connecting an
// already connected pair is a no-op.
func (s *Store) Connect(ctx context.Context, rel mealgraph.RelType, fromID, toID string) error {
	from, to, err := rel.Endpoints()
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, n := range []struct {
			kind mealgraph.Kind
			id   string
		}{{from, fromID}, {to, toID}} {
			ok, err := nodeExists(ctx, tx, n.kind, n.id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("connect %s %s->%s: %s %s: %w", rel, fromID, toID, n.kind, n.id, mealgraph.ErrNotFound)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO edges (rel, from_kind, from_id, to_kind, to_id)
			VALUES (?, ?, ?, ?, ?)`, string(rel), string(from), fromID, string(to), toID)
		if err != nil {
			return unavailable("insert edge", err)
		}
		return nil
	})
}

// Disconnect removes a relationship. Removing a missing one is not an error.
func (s *Store) Disconnect(ctx context.Context, rel mealgraph.RelType, fromID, toID string) error {
	from, to, err := rel.Endpoints()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM edges WHERE rel = ? AND from_kind = ? AND from_id = ? AND to_kind = ? AND to_id = ?`,
		string(rel), string(from), fromID, string(to), toID)
	if err != nil {
		return unavailable("delete edge", err)
	}
	return nil
}

// Edge is one stored relationship.
type Edge struct {
	Rel    mealgraph.RelType
	FromID string
	ToID   string
}

// Edges returns every relationship of the given type ordered by endpoints.
func (s *Store) Edges(ctx context.Context, rel mealgraph.RelType) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id FROM edges WHERE rel = ? ORDER BY from_id, to_id`, string(rel))
	if err != nil {
		return nil, unavailable("list edges", err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		e := Edge{Rel: rel}
		if err := rows.Scan(&e.FromID, &e.ToID); err != nil {
			return nil, unavailable("scan edge", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func nodeExists(ctx context.Context, tx *sql.Tx, kind mealgraph.Kind, id string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE kind = ? AND id = ?`, string(kind), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("lookup node", err)
	}
	return true, nil
}

func loadProps(ctx context.Context, tx *sql.Tx, kind mealgraph.Kind, id string) (map[string]any, error) {
	var raw string
	err := tx.QueryRowContext(ctx, `SELECT props FROM nodes WHERE kind = ? AND id = ?`, string(kind), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mealgraph.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("load props", err)
	}
	props := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("decode props of %s %s: %w", kind, id, err)
	}
	return props, nil
}

func writeNode(ctx context.Context, tx *sql.Tx, kind mealgraph.Kind, id, name string, props map[string]any) error {
	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encode props of %s %s: %w", kind, id, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (kind, id, name, props) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET name = excluded.name, props = excluded.props`,
		string(kind), id, name, string(raw))
	if err != nil {
		return unavailable("upsert node", err)
	}
	return nil
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	if len(b) < 8 {
		return nil
	}
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
