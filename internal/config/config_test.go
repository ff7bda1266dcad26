package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{
		HTTP:      HTTPConfig{Port: 8080},
		Embedding: EmbeddingConfig{Model: "bge-m3"},
	}
	cfg.Decision.HighConfidence = 0.7
	cfg.Decision.MinSimilarity = 0.3
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_DriverRequirements(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"redis driver without addrs", func(c *Config) { c.Storage.Driver = DriverRedis }, "redis.addrs"},
		{"postgres driver without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, "postgres.dsn"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"pgvector without dsn", func(c *Config) { c.Index.Backend = IndexPGVector }, "pgvector"},
		{"unknown backend", func(c *Config) { c.Index.Backend = "faiss" }, "index.backend"},
		{"bad algorithm", func(c *Config) { c.Index.Algorithm = "ivf" }, "index.algorithm"},
		{"cache without redis", func(c *Config) { c.Embedding.Cache = true }, "embedding.cache"},
		{"missing model", func(c *Config) { c.Embedding.Model = "" }, "embedding.model"},
		{"generation without model", func(c *Config) { c.Generation.Mode = "uncertain" }, "generation.model"},
		{"bad generation mode", func(c *Config) { c.Generation.Mode = "sometimes" }, "generation.mode"},
		{"top_k too large", func(c *Config) { c.Retrieval.TopK = 500 }, "retrieval.top_k"},
		{"inverted bands", func(c *Config) { c.Decision.MinSimilarity = 0.9 }, "decision"},
		{"retrieval floor above decision floor", func(c *Config) { c.Retrieval.MinSimilarity = 0.5 }, "must equal decision.min_similarity"},
		{"retrieval floor below decision floor", func(c *Config) { c.Retrieval.MinSimilarity = 0.1 }, "must equal decision.min_similarity"},
		{"unknown retrieval mode", func(c *Config) { c.Retrieval.Mode = "keyword" }, "retrieval.mode"},
		{"exact threshold out of range", func(c *Config) { c.Retrieval.ExactThreshold = 1.5 }, "retrieval.exact_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Storage.Driver != DriverMemory || cfg.Index.Backend != IndexMemory {
		t.Errorf("expected memory backends, got %q / %q", cfg.Storage.Driver, cfg.Index.Backend)
	}
	if cfg.Storage.KeyPrefix != "regcheck:" {
		t.Errorf("expected KeyPrefix='regcheck:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Check.Timeout != 10*time.Second {
		t.Errorf("expected check timeout 10s, got %v", cfg.Check.Timeout)
	}
	if cfg.Ingest.MaxBatchSize != 100 {
		t.Errorf("expected MaxBatchSize=100, got %d", cfg.Ingest.MaxBatchSize)
	}
	if cfg.Generation.Mode != "off" {
		t.Errorf("expected generation off, got %q", cfg.Generation.Mode)
	}
	if len(cfg.Decision.Markers.Positive) == 0 {
		t.Error("expected default markers")
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Index:     IndexConfig{HNSWM: 32, Dimensions: 384},
		Storage:   StorageConfig{KeyPrefix: "custom:"},
		Retrieval: RetrievalConfig{TopK: 10, MinSimilarity: 0.5},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Index.HNSWM != 32 || cfg.Index.Dimensions != 384 {
		t.Errorf("index overridden: %+v", cfg.Index)
	}
	if cfg.Storage.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Retrieval.TopK != 10 || cfg.Retrieval.MinSimilarity != 0.5 {
		t.Errorf("retrieval overridden: %+v", cfg.Retrieval)
	}
}

func TestParse(t *testing.T) {
	t.Setenv("REGCHECK_TEST_KEY", "sk-test")
	data := []byte(`
http:
  port: 8080
embedding:
  model: bge-m3
  api_key: ${REGCHECK_TEST_KEY}
  base_url: ${REGCHECK_TEST_UNSET:-http://localhost:11434/v1}
decision:
  high_confidence: 0.8
  markers:
    positive: ["включен"]
    negative: ["не включен"]
check:
  timeout: 3s
resilience:
  retry_max_attempts: 5
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Embedding.APIKey)
	}
	if cfg.Embedding.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("base url = %q", cfg.Embedding.BaseURL)
	}
	if cfg.Decision.HighConfidence != 0.8 || cfg.Decision.MinSimilarity != 0.3 {
		t.Errorf("decision = %+v", cfg.Decision)
	}
	if len(cfg.Decision.Markers.Positive) != 1 {
		t.Errorf("markers = %+v", cfg.Decision.Markers)
	}
	if cfg.Check.Timeout != 3*time.Second {
		t.Errorf("check timeout = %v", cfg.Check.Timeout)
	}
	if cfg.Resilience.RetryMaxAttempts != 5 || !cfg.Resilience.BreakerEnabled {
		t.Errorf("resilience = %+v", cfg.Resilience)
	}
	if cfg.Retrieval.MinSimilarity != 0.3 {
		t.Errorf("retrieval min similarity should follow decision, got %v", cfg.Retrieval.MinSimilarity)
	}
	if cfg.Retrieval.Mode != "semantic" || cfg.Retrieval.ExactThreshold != 0.5 {
		t.Errorf("retrieval mode defaults = %+v", cfg.Retrieval)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Error("expected YAML error")
	}
	if _, err := Parse([]byte("http:\n  port: 8080\n")); err == nil {
		t.Error("expected validation error for missing embedding model")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("REGCHECK_SET", "value")
	got := string(expandEnvVars([]byte("a: ${REGCHECK_SET}\nb: ${REGCHECK_MISSING:-fallback}\nc: ${REGCHECK_MISSING}")))
	want := "a: value\nb: fallback\nc: "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
