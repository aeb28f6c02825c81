package mealgraph

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// displayProps lists, per kind, the properties projected alongside an embedding
// so a search result can be rendered without a second round trip.
var displayProps = map[Kind][]string{
	KindRecipe:     {"title", "description", "rating"},
	KindIngredient: {"name", "category", "description"},
	KindCategory:   {"name", "type"},
}

// GetEmbedding returns the stored vector of one node. A missing node or a node
// without an embedding yields (nil, nil): absence is not an error.
func (pm *PersistenceManager) GetEmbedding(ctx context.Context, kind Kind, id string) ([]float64, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
	query := fmt.Sprintf(`
MATCH (n:%s {%s: $id})
RETURN n.embedding AS embedding
`, kind.Label(), kind.IDProp())

	res, err := pm.runner.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	vec, err := DecodeVector(recordValue(res.Records[0], "embedding"))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind, id, err)
	}
	return vec, nil
}

// ListEmbeddings fetches, in a single query, every node of the kind that has a
// non-empty embedding, together with its display fields. Nodes whose stored
// vector cannot be decoded are logged and skipped.
func (pm *PersistenceManager) ListEmbeddings(ctx context.Context, kind Kind) ([]EmbeddedNode, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
	cols := make([]string, 0, len(displayProps[kind])+2)
	cols = append(cols, fmt.Sprintf("n.%s AS id", kind.IDProp()))
	for _, p := range displayProps[kind] {
		cols = append(cols, fmt.Sprintf("n.%s AS %s", p, p))
	}
	cols = append(cols, "n.embedding AS embedding")

	query := fmt.Sprintf(`
MATCH (n:%s)
WHERE n.embedding IS NOT NULL AND size(n.embedding) > 0
RETURN %s
ORDER BY id
`, kind.Label(), strings.Join(cols, ", "))

	res, err := pm.runner.Run(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	out := make([]EmbeddedNode, 0, len(res.Records))
	for _, rec := range res.Records {
		id := recordString(rec, "id")
		vec, err := DecodeVector(recordValue(rec, "embedding"))
		if err != nil {
			pm.log.Warn("skipping node with malformed embedding", "kind", kind, "id", id, "error", err)
			continue
		}
		if len(vec) == 0 {
			continue
		}
		out = append(out, EmbeddedNode{
			Kind:   kind,
			ID:     id,
			Fields: displayFieldsFromRecord(kind, rec),
			Vector: vec,
		})
	}
	return out, nil
}

func displayFieldsFromRecord(kind Kind, rec *neo4j.Record) DisplayFields {
	switch kind {
	case KindRecipe:
		return DisplayFields{
			Title:       recordString(rec, "title"),
			Description: recordString(rec, "description"),
			Rating:      recordFloatPtr(rec, "rating"),
		}
	case KindIngredient:
		category := recordString(rec, "category")
		if category == "" {
			category = UnknownCategory
		}
		return DisplayFields{
			Name:        recordString(rec, "name"),
			Category:    category,
			Description: recordString(rec, "description"),
		}
	default:
		return DisplayFields{
			Name:         recordString(rec, "name"),
			CategoryType: recordString(rec, "type"),
		}
	}
}

// EmbeddingStats reports embedding coverage for every kind.
func (pm *PersistenceManager) EmbeddingStats(ctx context.Context) (map[Kind]EmbeddingCoverage, error) {
	out := make(map[Kind]EmbeddingCoverage, len(Kinds))
	for _, kind := range Kinds {
		query := fmt.Sprintf(`
MATCH (n:%s)
RETURN count(n.embedding) AS with_embeddings, count(n) AS total
`, kind.Label())
		res, err := pm.runner.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		out[kind] = NewEmbeddingCoverage(singleCount(res, "with_embeddings"), singleCount(res, "total"))
	}
	return out, nil
}

// NewEmbeddingCoverage computes the coverage percentage rounded to one decimal.
func NewEmbeddingCoverage(with, total int64) EmbeddingCoverage {
	c := EmbeddingCoverage{WithEmbeddings: with, Total: total}
	if total > 0 {
		c.Percentage = math.Round(float64(with)/float64(total)*1000) / 10
	}
	return c
}
