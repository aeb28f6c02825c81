package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverNeo4j, cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Search.PerTypeLimit)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, 0.7, cfg.Search.DefaultThreshold)
	assert.Equal(t, 4, cfg.Dedup.Parallelism)
	assert.Equal(t, 30*time.Second, cfg.Dedup.LockTTL)
	assert.Equal(t, 200, cfg.Vectors.BatchSize)
	assert.Equal(t, 3, cfg.Vectors.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.NeoTimeout())
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mealgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: SQLite
sqlite:
  path: /tmp/graph.db
search:
  per_type_limit: 3
  default_threshold: 0.5
`), 0o600))
	t.Setenv("MEALGRAPH_SEARCH_PER_TYPE_LIMIT", "7")
	t.Setenv("MEALGRAPH_DEDUP_LOCK_TTL", "1m")
	t.Setenv("MEALGRAPH_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/graph.db", cfg.SQLite.Path)
	assert.Equal(t, 7, cfg.Search.PerTypeLimit)
	assert.Equal(t, 0.5, cfg.Search.DefaultThreshold)
	assert.Equal(t, time.Minute, cfg.Dedup.LockTTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("MEALGRAPH_STORE_DRIVER", "postgres")
	_, err := Load("")
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateDriverRequirements(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Neo4j.URI = " "
	assert.ErrorContains(t, cfg.Validate(), "neo4j.uri is required")

	cfg.Store.Driver = DriverSQLite
	cfg.SQLite.Path = ""
	assert.ErrorContains(t, cfg.Validate(), "sqlite.path is required")

	cfg.SQLite.Path = "x.db"
	cfg.Search.PerTypeLimit = 0
	assert.ErrorContains(t, cfg.Validate(), "PerTypeLimit")
}
