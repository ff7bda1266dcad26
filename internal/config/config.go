package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/regcheck/internal/resilience"
	"github.com/kailas-cloud/regcheck/internal/usecase/decision"
)

// Config holds the regcheck configuration.
type Config struct {
	HTTP       HTTPConfig        `yaml:"http"`
	Auth       AuthConfig        `yaml:"auth"`
	Logging    LoggingConfig     `yaml:"logging"`
	Storage    StorageConfig     `yaml:"storage"`
	Redis      RedisConfig       `yaml:"redis"`
	Postgres   PostgresConfig    `yaml:"postgres"`
	Index      IndexConfig       `yaml:"index"`
	Embedding  EmbeddingConfig   `yaml:"embedding"`
	Generation GenerationConfig  `yaml:"generation"`
	Retrieval  RetrievalConfig   `yaml:"retrieval"`
	Decision   decision.Config   `yaml:"decision"`
	Check      CheckConfig       `yaml:"check"`
	Ingest     IngestConfig      `yaml:"ingest"`
	NATS       NATSConfig        `yaml:"nats"`
	Resilience resilience.Config `yaml:"resilience"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// StorageConfig selects the Document Store backend.
type StorageConfig struct {
	Driver    string `yaml:"driver"` // memory, redis, postgres (default: memory)
	KeyPrefix string `yaml:"key_prefix"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig holds PostgreSQL pool settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Index backends.
const (
	IndexMemory   = "memory"
	IndexRedis    = "redis"
	IndexPGVector = "pgvector"
)

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Backend         string `yaml:"backend"`   // memory, redis, pgvector (default: memory)
	Algorithm       string `yaml:"algorithm"` // flat (exact) or hnsw (approximate)
	Dimensions      int    `yaml:"dimensions"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
	HNSWEFRuntime   int    `yaml:"hnsw_ef_runtime"`
}

// EmbeddingConfig holds the embedding provider and decorator settings.
type EmbeddingConfig struct {
	Provider            string        `yaml:"provider"`
	APIKey              string        `yaml:"api_key"`
	BaseURL             string        `yaml:"base_url"`
	Model               string        `yaml:"model"`
	DocumentInstruction string        `yaml:"document_instruction"`
	QueryInstruction    string        `yaml:"query_instruction"`
	MaxBatchSize        int           `yaml:"max_batch_size"`
	Cache               bool          `yaml:"cache"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	HealthCheck         bool          `yaml:"health_check"`
}

// GenerationConfig holds the optional generation collaborator settings.
type GenerationConfig struct {
	Mode         string        `yaml:"mode"` // off, uncertain, always (default: off)
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	MaxTokens    int           `yaml:"max_tokens"`
	Temperature  float32       `yaml:"temperature"`
	Timeout      time.Duration `yaml:"timeout"`
	SystemPrompt string        `yaml:"system_prompt"`
}

// RetrievalConfig holds default retrieval options.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	// MinSimilarity must equal decision.min_similarity. Zero inherits it.
	MinSimilarity float64 `yaml:"min_similarity"`
	Lowercase     bool    `yaml:"lowercase"`
	// Mode is semantic or hybrid. Hybrid adds keyword matching over the Document Store.
	Mode           string  `yaml:"mode"`
	ExactThreshold float64 `yaml:"exact_threshold"`
}

// CheckConfig holds check pipeline settings.
type CheckConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	MaxBatchSize int  `yaml:"max_batch_size"`
	Enrich       bool `yaml:"enrich"`
	Warmup       bool `yaml:"warmup"`
}

// NATSConfig holds the optional NATS ingestion consumer settings.
type NATSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	UpsertSubject  string        `yaml:"upsert_subject"`
	RetractSubject string        `yaml:"retract_subject"`
	Queue          string        `yaml:"queue"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands environment references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	// Decision bands may legitimately be zero, so they are seeded before decoding.
	cfg := Config{Decision: decision.DefaultConfig(), Resilience: resilience.DefaultConfig()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "regcheck:"
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
	if c.Index.Backend == "" {
		c.Index.Backend = IndexMemory
	}
	if c.Index.Algorithm == "" {
		c.Index.Algorithm = "flat"
	}
	if c.Index.Dimensions <= 0 {
		c.Index.Dimensions = 1024
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Index.HNSWEFRuntime <= 0 {
		c.Index.HNSWEFRuntime = 64
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.MaxBatchSize <= 0 {
		c.Embedding.MaxBatchSize = 256
	}
	if c.Embedding.CacheTTL <= 0 {
		c.Embedding.CacheTTL = 30 * 24 * time.Hour
	}
	if c.Generation.Mode == "" {
		c.Generation.Mode = "off"
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 300
	}
	if c.Generation.Timeout <= 0 {
		c.Generation.Timeout = 5 * time.Second
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.MinSimilarity == 0 {
		c.Retrieval.MinSimilarity = c.Decision.MinSimilarity
	}
	if c.Retrieval.Mode == "" {
		c.Retrieval.Mode = "semantic"
	}
	if c.Retrieval.ExactThreshold == 0 {
		c.Retrieval.ExactThreshold = 0.5
	}
	if len(c.Decision.Markers.Positive) == 0 && len(c.Decision.Markers.Negative) == 0 {
		c.Decision.Markers = decision.DefaultMarkers()
	}
	if c.Check.Timeout <= 0 {
		c.Check.Timeout = 10 * time.Second
	}
	if c.Ingest.MaxBatchSize <= 0 {
		c.Ingest.MaxBatchSize = 100
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverRedis:
		if len(c.Redis.Addrs) == 0 {
			errs = append(errs, errors.New("redis.addrs is required for the redis driver"))
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be memory, redis or postgres, got %q", c.Storage.Driver))
	}

	switch c.Index.Backend {
	case IndexMemory:
	case IndexRedis:
		if len(c.Redis.Addrs) == 0 {
			errs = append(errs, errors.New("redis.addrs is required for the redis index"))
		}
	case IndexPGVector:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the pgvector index"))
		}
	default:
		errs = append(errs, fmt.Errorf("index.backend must be memory, redis or pgvector, got %q", c.Index.Backend))
	}
	switch c.Index.Algorithm {
	case "flat", "hnsw":
	default:
		errs = append(errs, fmt.Errorf("index.algorithm must be flat or hnsw, got %q", c.Index.Algorithm))
	}

	if c.Embedding.Model == "" {
		errs = append(errs, errors.New("embedding.model is required"))
	}
	if c.Embedding.Cache && len(c.Redis.Addrs) == 0 {
		errs = append(errs, errors.New("embedding.cache requires redis.addrs"))
	}

	switch c.Generation.Mode {
	case "off":
	case "uncertain", "always":
		if c.Generation.Model == "" {
			errs = append(errs, errors.New("generation.model is required when generation is enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("generation.mode must be off, uncertain or always, got %q", c.Generation.Mode))
	}

	if c.Retrieval.TopK > 100 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be at most 100, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("retrieval.min_similarity must be within [-1, 1], got %v", c.Retrieval.MinSimilarity))
	}
	if c.Retrieval.MinSimilarity != c.Decision.MinSimilarity {
		errs = append(errs, fmt.Errorf("retrieval.min_similarity %v must equal decision.min_similarity %v",
			c.Retrieval.MinSimilarity, c.Decision.MinSimilarity))
	}
	switch c.Retrieval.Mode {
	case "semantic", "hybrid":
	default:
		errs = append(errs, fmt.Errorf("retrieval.mode must be semantic or hybrid, got %q", c.Retrieval.Mode))
	}
	if c.Retrieval.ExactThreshold <= 0 || c.Retrieval.ExactThreshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.exact_threshold must be within (0, 1], got %v", c.Retrieval.ExactThreshold))
	}
	if err := c.Decision.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("decision: %w", err))
	}
	return errors.Join(errs...)
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
