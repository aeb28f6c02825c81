// Package mealgraph maps the recipe knowledge graph (recipes, ingredients and
// categories) onto Neo4j and provides the store operations used by semantic
// search, ingredient deduplication, vector pushes and enrichment.
package mealgraph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
)

// DBRunner defines the interface for a generic query executor.
// It abstracts the execution of a Cypher query, allowing for different implementations
// or mocking in tests.
type DBRunner interface {
	// Run executes a given Cypher query with parameters and returns a fully-buffered result.
	// Each call runs in its own transaction.
	Run(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error)
}

// Neo4jConfig holds the connection settings for a Neo4jExecutor.
type Neo4jConfig struct {
	URI         string
	Username    string
	Password    string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
}

//---

// Neo4jExecutor is a concrete implementation of the DBRunner interface that uses the
// official Neo4j Go driver. It manages the driver instance and the target database name.
type Neo4jExecutor struct {
	Driver neo4j.DriverWithContext
	DBName string
	log    *logger.Logger
}

// NewNeo4jExecutor creates and initializes a new Neo4jExecutor.
// It creates the driver but does not contact the server; call Verify for that.
//
// Parameters:
//   - cfg: Connection settings. Zero Timeout and MaxPoolSize fall back to 10s and 50.
//   - log: Logger used for connection-level events.
//
// Returns:
//
//	A pointer to the newly created Neo4jExecutor or an error if the driver creation fails.
func NewNeo4jExecutor(cfg Neo4jConfig, log *logger.Logger) (*Neo4jExecutor, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4j executor: logger required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPool := cfg.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = maxPool
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	return &Neo4jExecutor{
		Driver: driver,
		DBName: cfg.Database,
		log:    log.With("component", "Neo4jExecutor"),
	}, nil
}

// Verify checks the connectivity to the Neo4j database.
//
// Returns:
//
//	An error wrapping ErrStoreUnavailable if the connection cannot be established.
func (e *Neo4jExecutor) Verify(ctx context.Context) error {
	if err := e.Driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("%w: verify connectivity: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the driver and its connection pool.
func (e *Neo4jExecutor) Close(ctx context.Context) error {
	if e == nil || e.Driver == nil {
		return nil
	}
	err := e.Driver.Close(ctx)
	e.Driver = nil
	return err
}

// Run executes a Cypher query using the modern ExecuteQuery function, which handles
// session and transaction management automatically for robust and simple execution.
// This function is suitable for both read and write operations.
//
// Parameters:
//   - ctx: The context for the query execution.
//   - query: The Cypher query string to execute.
//   - params: A map of parameters to be used in the query.
//
// Returns:
//
//	An EagerResult containing all buffered records from the query, or an error
//	wrapping ErrStoreUnavailable if the execution fails.
func (e *Neo4jExecutor) Run(ctx context.Context, query string, params map[string]interface{}) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(
		ctx,
		e.Driver,
		query,
		params,
		neo4j.EagerResultTransformer, // Buffers all results in memory before returning.
		neo4j.ExecuteQueryWithDatabase(e.DBName),
	)

	if err != nil {
		e.log.Debug("neo4j query failed", "error", err)
		return nil, fmt.Errorf("%w: error executing neo4j query: %w", ErrStoreUnavailable, err)
	}

	return result, nil
}
