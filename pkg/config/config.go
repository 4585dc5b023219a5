package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	LLM         LLMConfig
	GigaChat    GigaChatConfig
	Embedding   EmbeddingConfig
	Chunking    ChunkingConfig
	Extraction  ExtractionConfig
	RAG         RAGConfig
	Stream      StreamConfig
	VectorStore VectorStoreConfig
	Logger      LoggerConfig
}

type LoggerConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
}

// LLMConfig selects the generation backend. Provider is one of openai,
// anthropic or gigachat.
type LLMConfig struct {
	Provider             string
	Model                string
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	AnthropicAPIKey      string
	MaxTokens            int
	PromptPricePer1K     float64
	CompletionPricePer1K float64
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	InsecureSkipVerify bool
}

type EmbeddingConfig struct {
	Model          string
	APIKey         string
	BaseURL        string
	Dimensions     int
	PricePer1K     float64
	DailyBudgetUSD float64
	MaxTextLength  int
	BatchSize      int
	CacheTTL       time.Duration
}

type ChunkingConfig struct {
	Strategy         string
	Size             int
	Overlap          int
	MinSize          int
	MaxSize          int
	QualityThreshold float64
	TokenizerModel   string
}

type ExtractionConfig struct {
	FetchTimeout  time.Duration
	MaxFetchBytes int64
}

type RAGConfig struct {
	NamespacePrefix  string
	TopK             int
	MaxContextTokens int
	Temperature      float64
	ResponseCacheTTL time.Duration
	RetryAttempts    int
}

type StreamConfig struct {
	WordsPerChunk      int
	ChunkDelay         time.Duration
	RateLimitPerMinute int
	Burst              int
}

// VectorStoreConfig picks the vector backend: postgres, sqlite or memory.
type VectorStoreConfig struct {
	Backend    string
	SQLitePath string
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root.
	// Plain environment variables are used when none is found (Docker/K8s).
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT", 30)) * time.Second,
			CORSOrigins:  getEnv("SERVER_CORS_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ragvault"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Enabled:   getEnvBool("REDIS_ENABLED", false),
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "ragvault"),
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(getEnvInt("JWT_EXPIRATION_HOURS", 24)) * time.Hour,
		},
		LLM: LLMConfig{
			Provider:             strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:                getEnv("LLM_MODEL", "gpt-4o-mini"),
			OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", ""),
			AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
			MaxTokens:            getEnvInt("LLM_MAX_TOKENS", 1024),
			PromptPricePer1K:     getEnvFloat("LLM_PROMPT_PRICE_PER_1K", 0.00015),
			CompletionPricePer1K: getEnvFloat("LLM_COMPLETION_PRICE_PER_1K", 0.0006),
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: getEnvBool("GIGACHAT_INSECURE_SKIP_VERIFY", true),
		},
		Embedding: EmbeddingConfig{
			Model:          getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			APIKey:         getEnv("EMBEDDING_API_KEY", getEnv("OPENAI_API_KEY", "")),
			BaseURL:        getEnv("EMBEDDING_BASE_URL", ""),
			Dimensions:     getEnvInt("EMBEDDING_DIMENSIONS", 1536),
			PricePer1K:     getEnvFloat("EMBEDDING_PRICE_PER_1K", 0.00002),
			DailyBudgetUSD: getEnvFloat("EMBEDDING_DAILY_BUDGET_USD", 10),
			MaxTextLength:  getEnvInt("EMBEDDING_MAX_TEXT_LENGTH", 32000),
			BatchSize:      getEnvInt("EMBEDDING_BATCH_SIZE", 100),
			CacheTTL:       getEnvDuration("EMBEDDING_CACHE_TTL", 7*24*time.Hour),
		},
		Chunking: ChunkingConfig{
			Strategy:         getEnv("CHUNK_STRATEGY", "recursive"),
			Size:             getEnvInt("CHUNK_SIZE", 1000),
			Overlap:          getEnvInt("CHUNK_OVERLAP", 200),
			MinSize:          getEnvInt("CHUNK_MIN_SIZE", 100),
			MaxSize:          getEnvInt("CHUNK_MAX_SIZE", 2000),
			QualityThreshold: getEnvFloat("CHUNK_QUALITY_THRESHOLD", 0.3),
			TokenizerModel:   getEnv("CHUNK_TOKENIZER_MODEL", "gpt-4o-mini"),
		},
		Extraction: ExtractionConfig{
			FetchTimeout:  getEnvDuration("EXTRACT_FETCH_TIMEOUT", 30*time.Second),
			MaxFetchBytes: int64(getEnvInt("EXTRACT_MAX_FETCH_BYTES", 10<<20)),
		},
		RAG: RAGConfig{
			NamespacePrefix:  getEnv("RAG_NAMESPACE_PREFIX", "bot"),
			TopK:             getEnvInt("RAG_TOP_K", 5),
			MaxContextTokens: getEnvInt("RAG_MAX_CONTEXT_TOKENS", 3000),
			Temperature:      getEnvFloat("RAG_TEMPERATURE", 0.3),
			ResponseCacheTTL: getEnvDuration("RAG_RESPONSE_CACHE_TTL", 5*time.Minute),
			RetryAttempts:    getEnvInt("RAG_RETRY_ATTEMPTS", 3),
		},
		Stream: StreamConfig{
			WordsPerChunk:      getEnvInt("STREAM_WORDS_PER_CHUNK", 5),
			ChunkDelay:         getEnvDuration("STREAM_CHUNK_DELAY", 50*time.Millisecond),
			RateLimitPerMinute: getEnvInt("STREAM_RATE_LIMIT_PER_MINUTE", 30),
			Burst:              getEnvInt("STREAM_BURST", 5),
		},
		VectorStore: VectorStoreConfig{
			Backend:    strings.ToLower(getEnv("VECTOR_STORE_BACKEND", "postgres")),
			SQLitePath: getEnv("VECTOR_STORE_SQLITE_PATH", "ragvault.db"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
