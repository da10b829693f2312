package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	Port           int
	LogMode        string

	// open ai
	OpenAIKey            string
	OpenAIEmbeddingModel string
	OpenAIChatModel      string
	EmbeddingDimension   int
	GatewayTimeout       time.Duration

	// rag config
	ChunkSize           int
	ChunkOverlap        int
	TopKResults         int
	SimilarityThreshold float64
	ContextCharBudget   int

	// router config
	SQLRouteThreshold float64
	RAGRouteThreshold float64

	// generation config
	AnswerTemperature float32
	AnswerMaxTokens   int

	// ingestion config
	IngestWorkers   int
	InsertBatchSize int
}

func Load() *Config {
	godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		port = 8080
	}

	timeout, err := time.ParseDuration(getEnv("GATEWAY_TIMEOUT", "30s"))
	if err != nil {
		timeout = 30 * time.Second
	}

	return &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		Port:           port,
		LogMode:        getEnv("LOG_MODE", "dev"),

		// OpenAI
		OpenAIKey:            getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		OpenAIChatModel:      getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingDimension:   getEnvInt("EMBEDDING_DIMENSION", 1536),
		GatewayTimeout:       timeout,

		// RAG Config
		ChunkSize:           getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:        getEnvInt("CHUNK_OVERLAP", 200),
		TopKResults:         getEnvInt("TOP_K_RESULTS", 8),
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.5),
		ContextCharBudget:   getEnvInt("CONTEXT_CHAR_BUDGET", 8000),

		// Router Config
		SQLRouteThreshold: getEnvFloat("SQL_ROUTE_THRESHOLD", 0.35),
		RAGRouteThreshold: getEnvFloat("RAG_ROUTE_THRESHOLD", 0.35),

		// Generation Config
		AnswerTemperature: float32(getEnvFloat("ANSWER_TEMPERATURE", 0.1)),
		AnswerMaxTokens:   getEnvInt("ANSWER_MAX_TOKENS", 1200),

		// Ingestion Config
		IngestWorkers:   getEnvInt("INGEST_WORKERS", 4),
		InsertBatchSize: getEnvInt("INSERT_BATCH_SIZE", 100),
	}

}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
