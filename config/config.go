// Package config loads mealgraph settings from an optional YAML file, a .env
// file and MEALGRAPH_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "MEALGRAPH"

const (
	DriverNeo4j  = "neo4j"
	DriverSQLite = "sqlite"
)

type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Neo4j     Neo4jConfig     `mapstructure:"neo4j"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Search    SearchConfig    `mapstructure:"search"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Vectors   VectorsConfig   `mapstructure:"vectors"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=neo4j sqlite"`
}

type Neo4jConfig struct {
	URI            string `mapstructure:"uri"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	Database       string `mapstructure:"database"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
	MaxPoolSize    int    `mapstructure:"max_pool_size" validate:"gte=0"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	// Addr enables the shared merge lock when set.
	Addr string `mapstructure:"addr"`
}

type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	BaseURL    string `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions" validate:"gte=0"`
}

type SearchConfig struct {
	PerTypeLimit     int     `mapstructure:"per_type_limit" validate:"gte=1"`
	DefaultLimit     int     `mapstructure:"default_limit" validate:"gte=1"`
	DefaultThreshold float64 `mapstructure:"default_threshold" validate:"gte=-1,lte=1"`
}

type DedupConfig struct {
	Parallelism int           `mapstructure:"parallelism" validate:"gte=1"`
	LockTTL     time.Duration `mapstructure:"lock_ttl" validate:"gt=0"`
}

type VectorsConfig struct {
	BatchSize  int `mapstructure:"batch_size" validate:"gte=1"`
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`
}

type EnrichConfig struct {
	Endpoint          string  `mapstructure:"endpoint" validate:"omitempty,url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode" validate:"oneof=production development"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", DriverNeo4j)
	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.user", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "")
	v.SetDefault("neo4j.timeout_seconds", 30)
	v.SetDefault("neo4j.max_pool_size", 50)
	v.SetDefault("sqlite.path", "mealgraph.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("search.per_type_limit", 5)
	v.SetDefault("search.default_limit", 20)
	v.SetDefault("search.default_threshold", 0.7)
	v.SetDefault("dedup.parallelism", 4)
	v.SetDefault("dedup.lock_ttl", "30s")
	v.SetDefault("vectors.batch_size", 200)
	v.SetDefault("vectors.max_retries", 3)
	v.SetDefault("enrich.endpoint", "https://dbpedia.org/sparql")
	v.SetDefault("enrich.requests_per_second", 1.0)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.mode", "production")
}

// Load reads the configuration. cfgFile may be empty. A missing .env file is
// not an error.
func Load(cfgFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	switch c.Store.Driver {
	case DriverNeo4j:
		if strings.TrimSpace(c.Neo4j.URI) == "" {
			return errors.New("invalid configuration: neo4j.uri is required for the neo4j driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLite.Path) == "" {
			return errors.New("invalid configuration: sqlite.path is required for the sqlite driver")
		}
	}
	return nil
}

// NeoTimeout returns the Neo4j connection timeout.
func (c *Config) NeoTimeout() time.Duration {
	return time.Duration(c.Neo4j.TimeoutSeconds) * time.Second
}
