package main

import (
	"context"
	"fmt"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/config"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/dedup"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/embedder"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/enrich"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/lock"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/search"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/sqlgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/vectors"
)

// graphStore is everything the commands need from a graph adapter. Both the
// Neo4j persistence manager and the SQLite store satisfy it.
type graphStore interface {
	search.Retriever
	dedup.Store
	vectors.Writer
	vectors.Source
	enrich.Store
}

var (
	_ graphStore = (*mealgraph.PersistenceManager)(nil)
	_ graphStore = (*sqlgraph.Store)(nil)
)

// backend is an open graph store. neo is set only for the Neo4j driver.
type backend struct {
	store graphStore
	neo   *mealgraph.PersistenceManager
	close func()
}

func openBackend(ctx context.Context, c *config.Config) (*backend, error) {
	switch c.Store.Driver {
	case config.DriverSQLite:
		s, err := sqlgraph.Open(c.SQLite.Path, log)
		if err != nil {
			return nil, err
		}
		return &backend{store: s, close: func() { _ = s.Close() }}, nil
	default:
		exec, err := mealgraph.NewNeo4jExecutor(mealgraph.Neo4jConfig{
			URI:         c.Neo4j.URI,
			Username:    c.Neo4j.User,
			Password:    c.Neo4j.Password,
			Database:    c.Neo4j.Database,
			Timeout:     c.NeoTimeout(),
			MaxPoolSize: c.Neo4j.MaxPoolSize,
		}, log)
		if err != nil {
			return nil, err
		}
		if err := exec.Verify(ctx); err != nil {
			_ = exec.Close(context.WithoutCancel(ctx))
			return nil, err
		}
		pm := mealgraph.NewPersistenceManager(exec, log)
		return &backend{
			store: pm,
			neo:   pm,
			close: func() { _ = exec.Close(context.Background()) },
		}, nil
	}
}

func newEmbedder(ctx context.Context, c *config.Config) (*embedder.Embedder, error) {
	return embedder.NewFromConfig(ctx, embedder.Config{
		Provider:   c.Embedding.Provider,
		BaseURL:    c.Embedding.BaseURL,
		APIKey:     c.Embedding.APIKey,
		Model:      c.Embedding.Model,
		Dimensions: c.Embedding.Dimensions,
	}, log)
}

// newSearchEngine builds a search engine. The query embedder is optional: when
// it cannot be configured, text search reports ErrNoEmbedder and vector-based
// operations keep working.
func newSearchEngine(ctx context.Context, c *config.Config, store search.Retriever) *search.Engine {
	var qe search.QueryEmbedder
	if emb, err := newEmbedder(ctx, c); err != nil {
		log.Warn("text search disabled", "error", err)
	} else {
		qe = emb
	}
	return search.NewEngine(store, qe, search.Options{PerTypeLimit: c.Search.PerTypeLimit}, log)
}

// newLocker returns the shared Redis lock when redis.addr is set, and an
// in-process lock otherwise.
func newLocker(c *config.Config) (lock.Locker, func(), error) {
	if c.Redis.Addr == "" {
		return lock.NewLocal(), func() {}, nil
	}
	r, err := lock.NewRedis(lock.RedisOptions{Addr: c.Redis.Addr, TTL: c.Dedup.LockTTL}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect merge lock: %w", err)
	}
	return r, func() { _ = r.Close() }, nil
}

func newPusher(c *config.Config, w vectors.Writer, batchSize int) *vectors.Pusher {
	if batchSize <= 0 {
		batchSize = c.Vectors.BatchSize
	}
	return vectors.NewPusher(w, vectors.PushOptions{
		BatchSize:  batchSize,
		MaxRetries: c.Vectors.MaxRetries,
		Dimensions: c.Embedding.Dimensions,
	}, log)
}

// parseKinds turns a --type value into kinds; empty or "all" selects every kind.
func parseKinds(s string) ([]mealgraph.Kind, error) {
	scope, err := search.ParseScope(s)
	if err != nil {
		return nil, err
	}
	return scope.Kinds(), nil
}
