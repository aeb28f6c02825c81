package httpapi

import (
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	SearchHandler *SearchHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", HealthCheck)

	api := r.Group("/api")
	if cfg.SearchHandler != nil {
		api.GET("/semantic-search", cfg.SearchHandler.SemanticSearch)
		api.GET("/embeddings/stats", cfg.SearchHandler.Stats)
		api.GET("/:type/:id/similar", cfg.SearchHandler.Similar)
	}
	return r
}
