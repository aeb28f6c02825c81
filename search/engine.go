// Package search ranks graph nodes by the cosine similarity of their stored
// embeddings to a query vector.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/similarity"
)

// ScoreDecimals is the precision of every reported similarity score.
const ScoreDecimals = 3

// DefaultPerTypeLimit caps each kind's contribution to a multi-kind search.
const DefaultPerTypeLimit = 5

// ErrNoEmbedder is returned by SearchText when the engine has no query embedder.
var ErrNoEmbedder = errors.New("no query embedder configured")

// Scope selects the kinds a search runs over: a single kind or ScopeAll.
type Scope string

// ScopeAll searches recipes, ingredients and categories together.
const ScopeAll Scope = "all"

// ParseScope accepts "all" or any kind name. An empty string means ScopeAll.
func ParseScope(s string) (Scope, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(ScopeAll) {
		return ScopeAll, nil
	}
	k, err := mealgraph.ParseKind(s)
	if err != nil {
		return "", err
	}
	return Scope(k), nil
}

// Kinds returns the kinds covered by the scope, in canonical order.
func (s Scope) Kinds() []mealgraph.Kind {
	if s == ScopeAll {
		return mealgraph.Kinds
	}
	return []mealgraph.Kind{mealgraph.Kind(s)}
}

// Retriever is the read side of the graph store the engine needs.
type Retriever interface {
	GetEmbedding(ctx context.Context, kind mealgraph.Kind, id string) ([]float64, error)
	ListEmbeddings(ctx context.Context, kind mealgraph.Kind) ([]mealgraph.EmbeddedNode, error)
	EmbeddingStats(ctx context.Context) (map[mealgraph.Kind]mealgraph.EmbeddingCoverage, error)
}

// QueryEmbedder turns free text into a query vector. kind is a kind name or "all"
// and selects the instruction the text is embedded with.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, kind string, text string) ([]float64, error)
}

// Result is one ranked search hit.
type Result struct {
	Type mealgraph.Kind `json:"type"`
	ID   string         `json:"id"`
	mealgraph.DisplayFields
	Score float64 `json:"similarity_score"`
}

// Options tunes the engine.
type Options struct {
	// PerTypeLimit caps how many results each kind contributes when several
	// kinds are searched together. Zero or less disables the cap.
	PerTypeLimit int
}

// Engine orchestrates retrieval, scoring, thresholding and cross-kind ranking.
type Engine struct {
	retriever Retriever
	embedder  QueryEmbedder
	opts      Options
	log       *logger.Logger
}

// NewEngine creates an Engine. embedder may be nil when only vector queries
// are needed.
func NewEngine(retriever Retriever, embedder QueryEmbedder, opts Options, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		retriever: retriever,
		embedder:  embedder,
		opts:      opts,
		log:       log.With("component", "SearchEngine"),
	}
}

// Search ranks every node of the scope against query and returns at most limit
// results with a rounded score of at least threshold, ordered by score
// descending, then kind order, then id.
//
// Candidates whose vector cannot be compared with the query are skipped and
// logged. A retrieval failure is returned as is.
func (e *Engine) Search(ctx context.Context, query []float64, scope Scope, limit int, threshold float64) ([]Result, error) {
	return e.rank(ctx, query, scope, limit, threshold, nil)
}

// SearchText embeds text with the scope's instruction and searches with it.
func (e *Engine) SearchText(ctx context.Context, text string, scope Scope, limit int, threshold float64) ([]Result, error) {
	if e.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if strings.TrimSpace(text) == "" || limit <= 0 {
		return []Result{}, nil
	}
	vec, err := e.embedder.EmbedQuery(ctx, string(scope), text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return e.Search(ctx, vec, scope, limit, threshold)
}

// FindSimilar ranks nodes against the stored embedding of the reference node.
// target defaults to the reference node's own kind. The reference node is never
// part of its own results. A reference without an embedding, including one that
// does not exist, yields an empty result.
func (e *Engine) FindSimilar(ctx context.Context, kind mealgraph.Kind, id string, target Scope, limit int, threshold float64) ([]Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", mealgraph.ErrUnknownKind, string(kind))
	}
	if target == "" {
		target = Scope(kind)
	}
	vec, err := e.retriever.GetEmbedding(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		e.log.Debug("reference node has no embedding", "kind", kind, "id", id)
		return []Result{}, nil
	}
	return e.rank(ctx, vec, target, limit, threshold, &nodeKey{kind: kind, id: id})
}

// Stats reports embedding coverage per kind.
func (e *Engine) Stats(ctx context.Context) (map[mealgraph.Kind]mealgraph.EmbeddingCoverage, error) {
	return e.retriever.EmbeddingStats(ctx)
}

type nodeKey struct {
	kind mealgraph.Kind
	id   string
}

type scored struct {
	node  mealgraph.EmbeddedNode
	raw   float64
	score float64
}

func (e *Engine) rank(ctx context.Context, query []float64, scope Scope, limit int, threshold float64, exclude *nodeKey) ([]Result, error) {
	if limit <= 0 {
		return []Result{}, nil
	}
	kinds := scope.Kinds()
	for _, k := range kinds {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: %q", mealgraph.ErrUnknownKind, string(k))
		}
	}
	if similarity.IsZero(query) {
		e.log.Warn("query vector has zero magnitude; every score is 0")
	}

	perKind := make([][]scored, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			nodes, err := e.retriever.ListEmbeddings(gctx, kind)
			if err != nil {
				return fmt.Errorf("list %s embeddings: %w", kind, err)
			}
			for j := range nodes {
				nodes[j].Kind = kind
			}
			perKind[i] = e.score(query, nodes, threshold, exclude)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	capped := len(kinds) > 1 && e.opts.PerTypeLimit > 0
	var merged []scored
	for _, hits := range perKind {
		sortScored(hits)
		if capped && len(hits) > e.opts.PerTypeLimit {
			hits = hits[:e.opts.PerTypeLimit]
		}
		merged = append(merged, hits...)
	}
	sortScored(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}

	out := make([]Result, 0, len(merged))
	for _, s := range merged {
		out = append(out, Result{
			Type:          s.node.Kind,
			ID:            s.node.ID,
			DisplayFields: s.node.Fields,
			Score:         s.score,
		})
	}
	return out, nil
}

// score compares every candidate with the query and keeps those at or above
// threshold. Scores are compared after rounding so a reported score is never
// below the threshold.
func (e *Engine) score(query []float64, nodes []mealgraph.EmbeddedNode, threshold float64, exclude *nodeKey) []scored {
	hits := make([]scored, 0, len(nodes))
	for _, n := range nodes {
		if exclude != nil && n.Kind == exclude.kind && n.ID == exclude.id {
			continue
		}
		raw, err := similarity.Cosine(query, n.Vector)
		if err != nil {
			e.log.Warn("skipping candidate", "kind", n.Kind, "id", n.ID, "error", err)
			continue
		}
		if similarity.IsZero(n.Vector) {
			e.log.Warn("candidate vector has zero magnitude", "kind", n.Kind, "id", n.ID)
		}
		s := similarity.Round(raw, ScoreDecimals)
		if s < threshold {
			continue
		}
		hits = append(hits, scored{node: n, raw: raw, score: s})
	}
	return hits
}

func sortScored(hits []scored) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.raw != b.raw {
			return a.raw > b.raw
		}
		if ra, rb := a.node.Kind.Rank(), b.node.Kind.Rank(); ra != rb {
			return ra < rb
		}
		return a.node.ID < b.node.ID
	})
}
