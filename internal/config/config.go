// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names for embedding and generation backends.
const (
	ProviderLocal     = "local"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderAnthropic = "anthropic"
)

// Index backends.
const (
	IndexMemory    = "memory"
	IndexSurrealDB = "surrealdb"
	IndexPgvector  = "pgvector"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Crawl renderers.
const (
	RendererHTTP    = "http"
	RendererBrowser = "browser"
)

// DefaultSystemPrompt is used when a query carries no system prompt of its own.
const DefaultSystemPrompt = "You are a helpful AI assistant for this website. Answer questions based on the provided context. If you cannot find the answer in the context, politely say that you don't have that information."

// DefaultExcludePatterns are URL fragments the crawler never follows.
var DefaultExcludePatterns = []string{
	"/login", "/register", "/signup", "/signin", "/admin", "/api/", "/auth/",
	".pdf", ".jpg", ".png", ".gif", ".svg", ".zip", ".doc", ".docx", ".xls", ".xlsx",
	"/download", "/uploads", "javascript:", "mailto:", "tel:",
}

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration values.
type Config struct {
	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`

	// Embedding
	EmbedProvider   string        `yaml:"embed_provider"`
	EmbedModel      string        `yaml:"embed_model"`
	EmbedDimension  int           `yaml:"embed_dimension"`
	EmbedBatchSize  int           `yaml:"embed_batch_size"`
	EmbedMaxRetries int           `yaml:"embed_max_retries"`
	EmbedRetryDelay time.Duration `yaml:"embed_retry_delay"`
	EmbedBatchPause time.Duration `yaml:"embed_batch_pause"`

	// Generation
	LLMProvider  string  `yaml:"llm_provider"`
	LLMModel     string  `yaml:"llm_model"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	SystemPrompt string  `yaml:"system_prompt"`
	HistoryLimit int     `yaml:"history_limit"`

	// Provider endpoints and credentials
	OllamaHost      string `yaml:"ollama_host"`
	OpenAIAPIKey    string `yaml:"-"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	GoogleAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`

	// Segmentation
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
	TokenizerEncoding string `yaml:"tokenizer_encoding"`

	// Crawling
	CrawlRenderer     string        `yaml:"crawl_renderer"`
	CrawlPageTimeout  time.Duration `yaml:"crawl_page_timeout"`
	CrawlUserAgent    string        `yaml:"crawl_user_agent"`
	CrawlLinksPerPage int           `yaml:"crawl_links_per_page"`
	CrawlExclude      []string      `yaml:"crawl_exclude"`

	// Ingestion
	IngestBatchSize  int           `yaml:"ingest_batch_size"`
	IngestBatchPause time.Duration `yaml:"ingest_batch_pause"`

	// Retrieval
	TopK        int     `yaml:"top_k"`
	MaxDistance float64 `yaml:"max_distance"`

	// Vector index
	IndexBackend string `yaml:"index_backend"`
	IndexTable   string `yaml:"index_table"`

	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"-"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`

	// Postgres connection (pgvector backend)
	PostgresDSN string `yaml:"-"`

	// Job/session store
	StoreBackend string `yaml:"store_backend"`
	SQLitePath   string `yaml:"sqlite_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogFile:  "./logs/sitechat.log",
		LogLevel: slog.LevelInfo,

		EmbedProvider:   ProviderLocal,
		EmbedModel:      "all-minilm:l6-v2",
		EmbedDimension:  384,
		EmbedBatchSize:  100,
		EmbedMaxRetries: 3,
		EmbedRetryDelay: 2 * time.Second,
		EmbedBatchPause: 100 * time.Millisecond,

		LLMProvider:  ProviderLocal,
		LLMModel:     "llama3.2",
		Temperature:  0.7,
		MaxTokens:    500,
		SystemPrompt: DefaultSystemPrompt,
		HistoryLimit: 10,

		OllamaHost: "http://localhost:11434",

		ChunkSize:         500,
		ChunkOverlap:      50,
		TokenizerEncoding: "cl100k_base",

		CrawlRenderer:     RendererHTTP,
		CrawlPageTimeout:  30 * time.Second,
		CrawlUserAgent:    "sitechat-crawler/0.1",
		CrawlLinksPerPage: 10,
		CrawlExclude:      DefaultExcludePatterns,

		IngestBatchSize:  50,
		IngestBatchPause: 100 * time.Millisecond,

		TopK:        5,
		MaxDistance: 1.0,

		IndexBackend: IndexMemory,
		IndexTable:   "chunk",

		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "sitechat",
		SurrealDBDatabase:  "rag",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",

		StoreBackend: StoreMemory,
		SQLitePath:   "./data/sitechat.db",
	}
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first; SITECHAT_CONFIG may name a YAML file
// whose values replace the defaults. Environment variables win over both.
func Load() (Config, error) {
	// Missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("SITECHAT_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var raw struct {
		Config   `yaml:",inline"`
		LogLevel string `yaml:"log_level"`
	}
	raw.Config = *cfg
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	*cfg = raw.Config
	if raw.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(raw.LogLevel)
	}
	return nil
}

func applyEnv(cfg *Config) {
	// Logging
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = parseLogLevel(lvl)
	}

	// Embedding; EMBEDDING_PROVIDER falls back to LLM_PROVIDER
	cfg.EmbedProvider = getEnv("EMBEDDING_PROVIDER", getEnv("LLM_PROVIDER", cfg.EmbedProvider))
	cfg.EmbedModel = getEnv("EMBEDDING_MODEL", cfg.EmbedModel)
	cfg.EmbedDimension = getEnvInt("EMBEDDING_DIMENSION", cfg.EmbedDimension)
	cfg.EmbedBatchSize = getEnvInt("EMBEDDING_BATCH_SIZE", cfg.EmbedBatchSize)
	cfg.EmbedMaxRetries = getEnvInt("EMBEDDING_MAX_RETRIES", cfg.EmbedMaxRetries)
	cfg.EmbedRetryDelay = getEnvDuration("EMBEDDING_RETRY_DELAY", cfg.EmbedRetryDelay)
	cfg.EmbedBatchPause = getEnvDuration("EMBEDDING_BATCH_PAUSE", cfg.EmbedBatchPause)

	// Generation
	cfg.LLMProvider = getEnv("LLM_PROVIDER", cfg.LLMProvider)
	cfg.LLMModel = getEnv("LLM_MODEL", cfg.LLMModel)
	cfg.Temperature = getEnvFloat("TEMPERATURE", cfg.Temperature)
	cfg.MaxTokens = getEnvInt("MAX_TOKENS", cfg.MaxTokens)
	cfg.SystemPrompt = getEnv("SYSTEM_PROMPT", cfg.SystemPrompt)
	cfg.HistoryLimit = getEnvInt("HISTORY_LIMIT", cfg.HistoryLimit)

	// Providers
	cfg.OllamaHost = getEnv("OLLAMA_HOST", cfg.OllamaHost)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.GoogleAPIKey = getEnv("GOOGLE_API_KEY", cfg.GoogleAPIKey)
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)

	// Segmentation
	cfg.ChunkSize = getEnvInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.TokenizerEncoding = getEnv("TOKENIZER_ENCODING", cfg.TokenizerEncoding)

	// Crawling
	cfg.CrawlRenderer = getEnv("CRAWL_RENDERER", cfg.CrawlRenderer)
	cfg.CrawlPageTimeout = getEnvDuration("CRAWL_PAGE_TIMEOUT", cfg.CrawlPageTimeout)
	cfg.CrawlUserAgent = getEnv("CRAWL_USER_AGENT", cfg.CrawlUserAgent)
	cfg.CrawlLinksPerPage = getEnvInt("CRAWL_LINKS_PER_PAGE", cfg.CrawlLinksPerPage)
	if v := os.Getenv("CRAWL_EXCLUDE"); v != "" {
		cfg.CrawlExclude = splitList(v)
	}

	// Ingestion
	cfg.IngestBatchSize = getEnvInt("INGEST_BATCH_SIZE", cfg.IngestBatchSize)
	cfg.IngestBatchPause = getEnvDuration("INGEST_BATCH_PAUSE", cfg.IngestBatchPause)

	// Retrieval
	cfg.TopK = getEnvInt("TOP_K", cfg.TopK)
	cfg.MaxDistance = getEnvFloat("MAX_DISTANCE", cfg.MaxDistance)

	// Index
	cfg.IndexBackend = getEnv("INDEX_BACKEND", cfg.IndexBackend)
	cfg.IndexTable = getEnv("INDEX_TABLE", cfg.IndexTable)

	// SurrealDB
	cfg.SurrealDBURL = getEnv("SURREALDB_URL", cfg.SurrealDBURL)
	cfg.SurrealDBNamespace = getEnv("SURREALDB_NAMESPACE", cfg.SurrealDBNamespace)
	cfg.SurrealDBDatabase = getEnv("SURREALDB_DATABASE", cfg.SurrealDBDatabase)
	cfg.SurrealDBUser = getEnv("SURREALDB_USER", cfg.SurrealDBUser)
	cfg.SurrealDBPass = getEnv("SURREALDB_PASS", cfg.SurrealDBPass)
	cfg.SurrealDBAuthLevel = getEnv("SURREALDB_AUTH_LEVEL", cfg.SurrealDBAuthLevel)

	// Postgres
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)

	// Store
	cfg.StoreBackend = getEnv("STORE_BACKEND", cfg.StoreBackend)
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top k must be positive, got %d", c.TopK))
	}
	if c.IngestBatchSize <= 0 || c.EmbedBatchSize <= 0 {
		errs = append(errs, errors.New("batch sizes must be positive"))
	}
	switch c.IndexBackend {
	case IndexMemory, IndexSurrealDB:
	case IndexPgvector:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the pgvector index"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index backend %q", c.IndexBackend))
	}
	switch c.StoreBackend {
	case StoreMemory, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}
	switch c.CrawlRenderer {
	case RendererHTTP, RendererBrowser:
	default:
		errs = append(errs, fmt.Errorf("unknown crawl renderer %q", c.CrawlRenderer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		slog.Warn("ignoring non-integer environment value", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		slog.Warn("ignoring non-numeric environment value", "key", key, "value", val)
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("250ms") or plain seconds ("2").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	slog.Warn("ignoring invalid duration", "key", key, "value", val)
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
