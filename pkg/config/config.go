// Package config loads convomem's startup configuration from process
// environment variables (prefixed PERSISTENCE_) and an optional config
// file, binding the feature flags and tunables named in the spec.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully-resolved startup configuration.
type Config struct {
	DBPath string

	// Feature flags
	EnableConnectionPool    bool
	EnableQueryOptimization bool
	EnableVectorIndex       bool
	EnableKnowledgeGraph    bool
	EnableAnalytics         bool

	// Tunables
	MaxConnections  int
	MinConnections  int
	CacheSizeKB     int
	QueryCacheTTLms int
	ToolTimeoutMs   int

	// Backend selection
	CacheBackend  string // "memory" (default) or "redis"
	RedisAddr     string
	VectorBackend string // "memory" (default) or "qdrant"
	QdrantAddr    string

	// Ambient
	LogLevel        string
	LogFormat       string
	TracingEnabled  bool
	TracingSampler  string
	TracingRatio    float64
	HTTPAddr        string // empty disables the admin HTTP surface

	// ProviderSeedPath, if set, names a YAML file of ProviderConfig rows
	// loaded once at startup (see LoadProviderSeed) to bootstrap
	// llm_providers without requiring an operator to call
	// configure_llm_provider by hand first.
	ProviderSeedPath string
}

// Load reads configuration from the environment and an optional config
// file discovered by viper, returning fully-defaulted settings.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", "./conversations.db")
	v.SetDefault("enable_connection_pool", true)
	v.SetDefault("enable_query_optimization", true)
	v.SetDefault("enable_vector_index", false)
	v.SetDefault("enable_knowledge_graph", true)
	v.SetDefault("enable_analytics", true)
	v.SetDefault("max_connections", 10)
	v.SetDefault("min_connections", 2)
	v.SetDefault("cache_size_kb", 2000)
	v.SetDefault("query_cache_ttl_ms", 300000)
	v.SetDefault("tool_timeout_ms", 30000)
	v.SetDefault("cache_backend", "memory")
	v.SetDefault("redis_addr", "")
	v.SetDefault("vector_backend", "memory")
	v.SetDefault("qdrant_addr", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "fmt")
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_sampler", "ratio")
	v.SetDefault("tracing_ratio", 1.0)
	v.SetDefault("http_addr", "")
	v.SetDefault("provider_seed_path", "")

	v.SetEnvPrefix("PERSISTENCE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName("convomem")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.convomem")
	_ = v.ReadInConfig() // absent config file is not an error

	cfg := &Config{
		DBPath:                  v.GetString("db_path"),
		EnableConnectionPool:    v.GetBool("enable_connection_pool"),
		EnableQueryOptimization: v.GetBool("enable_query_optimization"),
		EnableVectorIndex:       v.GetBool("enable_vector_index"),
		EnableKnowledgeGraph:    v.GetBool("enable_knowledge_graph"),
		EnableAnalytics:         v.GetBool("enable_analytics"),
		MaxConnections:          v.GetInt("max_connections"),
		MinConnections:          v.GetInt("min_connections"),
		CacheSizeKB:             v.GetInt("cache_size_kb"),
		QueryCacheTTLms:         v.GetInt("query_cache_ttl_ms"),
		ToolTimeoutMs:           v.GetInt("tool_timeout_ms"),
		CacheBackend:            v.GetString("cache_backend"),
		RedisAddr:               v.GetString("redis_addr"),
		VectorBackend:           v.GetString("vector_backend"),
		QdrantAddr:              v.GetString("qdrant_addr"),
		LogLevel:                v.GetString("log_level"),
		LogFormat:               v.GetString("log_format"),
		TracingEnabled:          v.GetBool("tracing_enabled"),
		TracingSampler:          v.GetString("tracing_sampler"),
		TracingRatio:            v.GetFloat64("tracing_ratio"),
		HTTPAddr:                v.GetString("http_addr"),
		ProviderSeedPath:        v.GetString("provider_seed_path"),
	}
	return cfg, nil
}
