package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           int                 `json:"port"`
	JWTSecret      string              `json:"jwt_secret"`
	JWTTTLHours    int                 `json:"jwt_ttl_hours"`
	UploadLimitMB  int                 `json:"upload_limit_mb"`
	CORSAllowlist  []string            `json:"cors_allowlist"`
	AskRateLimitMS int                 `json:"ask_rate_limit_ms"`
	LogConfig      logger.LogConfig    `json:"log_config"`
	Memory         MemoryConfig        `json:"memory"`
	Chunker        ChunkerConfig       `json:"chunker"`
	Embedder       EmbedderConfig      `json:"embedder"`
	AI             AIConfig            `json:"ai"`
	SnapshotStore  SnapshotStoreConfig `json:"snapshot_store"`
	EmbedCache     EmbedCacheConfig    `json:"embed_cache"`
	Database       DatabaseConfig      `json:"database"`
	Tracing        TracingConfig       `json:"tracing"`
	Schedule       ScheduleConfig      `json:"schedule"`
}

type MemoryConfig struct {
	Dimension     int `json:"dimension"`
	MinChunkChars int `json:"min_chunk_chars"`
	DefaultTopK   int `json:"default_top_k"`
	EmbedTimeout  int `json:"embed_timeout"`
}

type ChunkerConfig struct {
	Type      string `json:"type"`
	ChunkSize int    `json:"chunk_size"`
	Overlap   int    `json:"overlap"`
	MinTokens int    `json:"min_tokens"`
}

// ProviderConfig names one provider instance. Data is handed to the
// provider factory as-is.
type ProviderConfig struct {
	Name     string                 `json:"name"`
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	Data     map[string]interface{} `json:"data"`
}

type EmbedderConfig struct {
	Providers []ProviderConfig `json:"providers"`
}

type AIConfig struct {
	Providers     []ProviderConfig `json:"providers"`
	Timeout       int              `json:"timeout"`
	MaxInputChars int              `json:"max_input_chars"`
}

type SnapshotStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type EmbedCacheConfig struct {
	LRUSize       int  `json:"lru_size"`
	LRUTTLMinutes int  `json:"lru_ttl_minutes"`
	UseDB         bool `json:"use_db"`
	MaxAgeDays    int  `json:"max_age_days"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

type TracingConfig struct {
	ServiceName  string  `json:"service_name"`
	Environment  string  `json:"environment"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
}

type ScheduleConfig struct {
	ScopeEvictionSpec string `json:"scope_eviction_spec"`
	ScopeIdleMinutes  int    `json:"scope_idle_minutes"`
	CacheCleanupSpec  string `json:"cache_cleanup_spec"`
}

// Load reads a JSON config, or YAML when the file ends in .yaml/.yml.
// ${VAR} references are expanded from the environment before decoding.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	raw = []byte(os.ExpandEnv(string(raw)))
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration that runs fully offline: local embedder,
// local snapshot directory, no generator.
func Default() *Config {
	cfg := &Config{
		SnapshotStore: SnapshotStoreConfig{
			Type: "local",
			Data: map[string]interface{}{"dir": "./data/memory"},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.UploadLimitMB == 0 {
		cfg.UploadLimitMB = 20
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Memory.Dimension == 0 {
		cfg.Memory.Dimension = 384
	}
	if cfg.Memory.MinChunkChars == 0 {
		cfg.Memory.MinChunkChars = 10
	}
	if cfg.Memory.DefaultTopK == 0 {
		cfg.Memory.DefaultTopK = 3
	}
	if cfg.Memory.EmbedTimeout == 0 {
		cfg.Memory.EmbedTimeout = 30
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "sentence"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 300
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 50
	}
	if cfg.Chunker.MinTokens == 0 {
		cfg.Chunker.MinTokens = 5
	}
	if len(cfg.Embedder.Providers) == 0 {
		cfg.Embedder.Providers = []ProviderConfig{{Name: "local", Provider: "local", Model: "hash-v1"}}
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 45
	}
	if cfg.AI.MaxInputChars == 0 {
		cfg.AI.MaxInputChars = 30000
	}
	if cfg.SnapshotStore.Type == "" {
		cfg.SnapshotStore.Type = "local"
	}
	if cfg.EmbedCache.LRUSize == 0 {
		cfg.EmbedCache.LRUSize = 4096
	}
	if cfg.EmbedCache.LRUTTLMinutes == 0 {
		cfg.EmbedCache.LRUTTLMinutes = 120
	}
	if cfg.EmbedCache.MaxAgeDays == 0 {
		cfg.EmbedCache.MaxAgeDays = 30
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "docmem"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1.0
	}
	if cfg.Schedule.ScopeEvictionSpec == "" {
		cfg.Schedule.ScopeEvictionSpec = "*/5 * * * *"
	}
	if cfg.Schedule.ScopeIdleMinutes == 0 {
		cfg.Schedule.ScopeIdleMinutes = 30
	}
	if cfg.Schedule.CacheCleanupSpec == "" {
		cfg.Schedule.CacheCleanupSpec = "30 3 * * *"
	}
}

func validate(cfg *Config) error {
	if cfg.Memory.Dimension < 0 {
		return fmt.Errorf("memory.dimension must be positive")
	}
	if cfg.Chunker.Overlap >= cfg.Chunker.ChunkSize {
		return fmt.Errorf("chunker.overlap must be smaller than chunker.chunk_size")
	}
	switch cfg.Chunker.Type {
	case "sentence", "word":
	default:
		return fmt.Errorf("chunker.type must be sentence or word")
	}
	if cfg.EmbedCache.UseDB && !cfg.Database.Enabled() {
		return fmt.Errorf("embed_cache.use_db requires database config")
	}
	for i, p := range cfg.Embedder.Providers {
		if strings.TrimSpace(p.Provider) == "" {
			return fmt.Errorf("embedder.providers[%d].provider is required", i)
		}
	}
	for i, p := range cfg.AI.Providers {
		if strings.TrimSpace(p.Provider) == "" {
			return fmt.Errorf("ai.providers[%d].provider is required", i)
		}
	}
	return nil
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(normalizeYAML(doc))
}

// normalizeYAML turns map[interface{}]interface{} nodes, which
// encoding/json refuses, into string-keyed maps.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, item := range t {
			t[k] = normalizeYAML(item)
		}
		return t
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []interface{}:
		for i, item := range t {
			t[i] = normalizeYAML(item)
		}
		return t
	default:
		return v
	}
}
