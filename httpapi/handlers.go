// Package httpapi exposes semantic search over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/search"
)

// MaxLimit caps the limit query parameter.
const MaxLimit = 100

// Searcher is the search surface the handlers serve.
type Searcher interface {
	SearchText(ctx context.Context, text string, scope search.Scope, limit int, threshold float64) ([]search.Result, error)
	FindSimilar(ctx context.Context, kind mealgraph.Kind, id string, target search.Scope, limit int, threshold float64) ([]search.Result, error)
	Stats(ctx context.Context) (map[mealgraph.Kind]mealgraph.EmbeddingCoverage, error)
}

// Defaults are applied when a request omits limit or threshold.
type Defaults struct {
	Limit     int
	Threshold float64
}

type SearchHandler struct {
	searcher Searcher
	defaults Defaults
	log      *logger.Logger
}

func NewSearchHandler(searcher Searcher, defaults Defaults, log *logger.Logger) *SearchHandler {
	if defaults.Limit <= 0 {
		defaults.Limit = 20
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SearchHandler{searcher: searcher, defaults: defaults, log: log.With("component", "SearchHandler")}
}

type searchResponse struct {
	Query     string          `json:"query,omitempty"`
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Threshold float64         `json:"threshold"`
	Count     int             `json:"count"`
	Results   []search.Result `json:"results"`
}

// SemanticSearch handles GET /api/semantic-search?q=&type=&limit=&threshold=.
func (h *SearchHandler) SemanticSearch(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		RespondError(c, http.StatusBadRequest, "missing_query", fmt.Errorf("query parameter q is required"))
		return
	}
	scope, err := search.ParseScope(c.Query("type"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	limit, threshold, ok := h.paging(c)
	if !ok {
		return
	}

	results, err := h.searcher.SearchText(c.Request.Context(), q, scope, limit, threshold)
	if err != nil {
		h.log.Error("semantic search failed", "query", q, "type", scope, "error", err)
		respondDomainError(c, err)
		return
	}
	RespondOK(c, searchResponse{Query: q, Type: string(scope), Threshold: threshold, Count: len(results), Results: results})
}

// Similar handles GET /api/:type/:id/similar?limit=&threshold=&target=.
func (h *SearchHandler) Similar(c *gin.Context) {
	kind, err := mealgraph.ParseKind(c.Param("type"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	id := c.Param("id")
	var target search.Scope
	if t := c.Query("target"); t != "" {
		if target, err = search.ParseScope(t); err != nil {
			respondDomainError(c, err)
			return
		}
	}
	limit, threshold, ok := h.paging(c)
	if !ok {
		return
	}

	results, err := h.searcher.FindSimilar(c.Request.Context(), kind, id, target, limit, threshold)
	if err != nil {
		h.log.Error("find similar failed", "type", kind, "id", id, "error", err)
		respondDomainError(c, err)
		return
	}
	scope := string(target)
	if scope == "" {
		scope = string(kind)
	}
	RespondOK(c, searchResponse{Type: scope, ID: id, Threshold: threshold, Count: len(results), Results: results})
}

// Stats handles GET /api/embeddings/stats.
func (h *SearchHandler) Stats(c *gin.Context) {
	stats, err := h.searcher.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("embedding stats failed", "error", err)
		respondDomainError(c, err)
		return
	}
	RespondOK(c, gin.H{"embeddings": stats})
}

func (h *SearchHandler) paging(c *gin.Context) (int, float64, bool) {
	limit := h.defaults.Limit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be a non-negative integer"))
			return 0, 0, false
		}
		limit = min(n, MaxLimit)
	}
	threshold := h.defaults.Threshold
	if s := c.Query("threshold"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < -1 || f > 1 {
			RespondError(c, http.StatusBadRequest, "invalid_threshold", fmt.Errorf("threshold must be a number between -1 and 1"))
			return 0, 0, false
		}
		threshold = f
	}
	return limit, threshold, true
}

// HealthCheck handles GET /healthz.
func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
