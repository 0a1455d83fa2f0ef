package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the LogResolver server.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	VectorIndex VectorIndexConfig
	Embedding   EmbeddingConfig
	AI          AIConfig
	Pipeline    PipelineConfig
	Loki        LokiConfig
	Telemetry   TelemetryConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	LogLevel        string
	CORSOrigins     []string
	BootstrapAPIKey string
	RateLimitPerMin int
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	SQLitePath      string
	MigrationsPath  string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional. An empty URL disables the shared cache tier and
// API rate limiting.
type RedisConfig struct {
	URL string
}

type VectorIndexConfig struct {
	Backend string
	Table   string
}

type EmbeddingConfig struct {
	Provider    string
	Model       string
	Dimension   int
	BaseURL     string
	APIKey      string
	LoadTimeout time.Duration
	CacheSize   int
	CacheTTL    time.Duration
}

type AIConfig struct {
	Provider          string
	InferenceTimeout  time.Duration
	RequestsPerSecond float64
	MaxTokens         int
	Ollama            OllamaConfig
	VLLM              VLLMConfig
	OpenAI            OpenAIConfig
	OpenRouter        OpenAIConfig
	Anthropic         AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

// OpenAIConfig serves any OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type AnthropicConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// PipelineConfig holds the resolve pipeline tuning values.
type PipelineConfig struct {
	DefaultTopK      int
	MaxTopK          int
	PatternThreshold float64
	ContextMaxChars  int
	Temperature      float64
	StageTimeout     time.Duration
}

// LokiConfig is optional. An empty BaseURL disables log import.
type LokiConfig struct {
	BaseURL  string
	Username string
	Password string
	OrgID    string
	Timeout  time.Duration
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

var validProviders = map[string]bool{
	"ollama":     true,
	"vllm":       true,
	"openai":     true,
	"openrouter": true,
	"anthropic":  true,
}

var validEmbeddingProviders = map[string]bool{
	"hash":   true,
	"ollama": true,
	"openai": true,
}

var validVectorBackends = map[string]bool{
	"memory":   true,
	"sqlite":   true,
	"pgvector": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("RESOLVER_PORT", 8080),
			Env:             envString("RESOLVER_ENV", "development"),
			LogLevel:        envString("LOG_LEVEL", "info"),
			CORSOrigins:     envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			BootstrapAPIKey: os.Getenv("RESOLVER_BOOTSTRAP_API_KEY"),
			RateLimitPerMin: envInt("RESOLVER_RATE_LIMIT_PER_MIN", 100),
		},
		Database: DatabaseConfig{
			Driver:          envString("STORE_DRIVER", "postgres"),
			URL:             os.Getenv("DATABASE_URL"),
			SQLitePath:      envString("SQLITE_PATH", "logresolver.db"),
			MigrationsPath:  envString("MIGRATIONS_PATH", "migrations"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		VectorIndex: VectorIndexConfig{
			Backend: envString("VECTOR_BACKEND", "memory"),
			Table:   envString("VECTOR_TABLE", "log_embeddings"),
		},
		Embedding: EmbeddingConfig{
			Provider:    envString("EMBEDDING_PROVIDER", "hash"),
			Model:       os.Getenv("EMBEDDING_MODEL"),
			Dimension:   envInt("EMBEDDING_DIMENSION", 384),
			BaseURL:     os.Getenv("EMBEDDING_BASE_URL"),
			APIKey:      os.Getenv("EMBEDDING_API_KEY"),
			LoadTimeout: envDurationSecs("EMBEDDING_LOAD_TIMEOUT_SECS", 120*time.Second),
			CacheSize:   envInt("EMBEDDING_CACHE_SIZE", 4096),
			CacheTTL:    envDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),
		},
		AI: AIConfig{
			Provider:          os.Getenv("AI_PROVIDER"),
			InferenceTimeout:  envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			RequestsPerSecond: envFloat("AI_REQUESTS_PER_SECOND", 5),
			MaxTokens:         envInt("AI_MAX_TOKENS", 1000),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			OpenRouter: OpenAIConfig{
				BaseURL: envString("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
				APIKey:  os.Getenv("OPENROUTER_API_KEY"),
				Model:   envString("OPENROUTER_MODEL", "meta-llama/llama-3.1-8b-instruct"),
			},
			Anthropic: AnthropicConfig{
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				Model:   envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Pipeline: PipelineConfig{
			DefaultTopK:      envInt("DEFAULT_TOP_K", 5),
			MaxTopK:          envInt("MAX_TOP_K", 20),
			PatternThreshold: envFloat("PATTERN_THRESHOLD", 0.75),
			ContextMaxChars:  envInt("CONTEXT_MAX_CHARS", 4000),
			Temperature:      envFloat("GENERATION_TEMPERATURE", 0.3),
			StageTimeout:     envDurationSecs("RESOLVER_STAGE_TIMEOUT_SECS", 60*time.Second),
		},
		Loki: LokiConfig{
			BaseURL:  os.Getenv("LOKI_BASE_URL"),
			Username: os.Getenv("LOKI_USERNAME"),
			Password: os.Getenv("LOKI_PASSWORD"),
			OrgID:    envString("LOKI_ORG_ID", "default"),
			Timeout:  envDuration("LOKI_TIMEOUT", 30*time.Second),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:  envString("OTEL_SERVICE_NAME", "logresolver"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is sqlite")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of postgres, sqlite; got %q", c.Database.Driver)
	}

	if !validVectorBackends[c.VectorIndex.Backend] {
		return fmt.Errorf("VECTOR_BACKEND must be one of memory, sqlite, pgvector; got %q", c.VectorIndex.Backend)
	}
	if c.VectorIndex.Backend == "pgvector" && c.Database.Driver != "postgres" {
		return fmt.Errorf("VECTOR_BACKEND pgvector requires STORE_DRIVER postgres")
	}
	if c.VectorIndex.Backend == "sqlite" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("VECTOR_BACKEND sqlite requires STORE_DRIVER sqlite")
	}

	if !validEmbeddingProviders[c.Embedding.Provider] {
		return fmt.Errorf("EMBEDDING_PROVIDER must be one of hash, ollama, openai; got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("EMBEDDING_API_KEY or OPENAI_API_KEY is required when EMBEDDING_PROVIDER is openai")
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Loki.BaseURL != "" && !strings.HasPrefix(c.Loki.BaseURL, "http://") && !strings.HasPrefix(c.Loki.BaseURL, "https://") {
		return fmt.Errorf("LOKI_BASE_URL must start with http:// or https://, got %q", c.Loki.BaseURL)
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, openrouter, anthropic; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "openrouter" && c.AI.OpenRouter.APIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY is required when AI_PROVIDER is openrouter")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	if c.AI.RequestsPerSecond <= 0 {
		return fmt.Errorf("AI_REQUESTS_PER_SECOND must be positive, got %v", c.AI.RequestsPerSecond)
	}

	p := c.Pipeline
	if p.MaxTopK < 1 {
		return fmt.Errorf("MAX_TOP_K must be at least 1, got %d", p.MaxTopK)
	}
	if p.DefaultTopK < 1 || p.DefaultTopK > p.MaxTopK {
		return fmt.Errorf("DEFAULT_TOP_K must be between 1 and MAX_TOP_K (%d), got %d", p.MaxTopK, p.DefaultTopK)
	}
	if p.PatternThreshold < 0 || p.PatternThreshold > 1 {
		return fmt.Errorf("PATTERN_THRESHOLD must be within [0,1], got %v", p.PatternThreshold)
	}
	if p.ContextMaxChars < 1 {
		return fmt.Errorf("CONTEXT_MAX_CHARS must be positive, got %d", p.ContextMaxChars)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("GENERATION_TEMPERATURE must be within [0,2], got %v", p.Temperature)
	}
	if p.StageTimeout <= 0 {
		return fmt.Errorf("RESOLVER_STAGE_TIMEOUT_SECS must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
