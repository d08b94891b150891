package config

import (
	"errors"
	"log/slog"
	"os"
	"time"
)

const (
	IS_PROD        = false
	LOG_LEVEL_PROD = slog.LevelInfo
	TRACE_ID_KEY   = "traceId"

	RATE_LIMIT_PER_SECOND       = 2
	BURST_RATE_LIMIT_PER_SECOND = 5

	// EmbeddingOutputDimensionality must stay constant for the lifetime of a
	// persisted index; mixing dimensions is fatal at the index layer.
	EmbeddingOutputDimensionality int32 = 1536

	RequestsPerNewWorkerCount int64 = 10
	MaxWorkerCount            int64 = 10
	MinWorkerCount            int64 = 1
	IdleWorkerTimeout               = 1 * time.Minute

	// server timeouts
	ReadTimeout            = 5 * time.Second
	WriteTimeout           = 30 * time.Second
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second

	ServerListenAddr = ":3000"

	// job requests buffer limit
	BufferLimit = 100

	// corpus + index locations
	CorpusDirectory = "text_files"
	IndexDirectory  = "knowledge"

	// chunking
	ChunkMaxSize = 1000
	ChunkOverlap = 200

	// ingestion
	IngestBatchSize = 5

	// retrieval
	RetrievalTopK = 8

	// agent loop
	AgentMaxSteps      = 8
	MemoryWindowTurns  = 20
	AgentTurnTimeout   = 120 * time.Second
	IngestRunTimeout   = 30 * time.Minute
	EmbeddingSubBatch  = 100

	// llm / embeddings
	GeminiModelName      = "gemini-2.5-flash"
	GoogleEmbeddingModel = "gemini-embedding-001"
	DeepSeekModelName    = "deepseek-chat"
	DeepSeekBaseURL      = "https://api.deepseek.com/v1"
	OpenAIEmbeddingModel = "text-embedding-3-large"
	ModelMaxTokens       = 4096

	MaxIdleConns        = 50
	MaxIdleConnsPerHost = 25
	IdleConnTimeout     = 60 * time.Second

	// qdrant (optional backend)
	QdrantGrpcPort   = 6334
	QdrantUseTLS     = false
	QdrantPoolSize   = 1
	QdrantCollection = "tcm-corpus"

	// redis has 16 DBs we can use
	RedisJobStore    = 0
	RedisMessageBank = 1

	RedisJobStoreTTL = 24 * time.Hour
	RedisMemoryTTL   = 24 * time.Hour

	// SystemPrompt seeds every agent turn: persona plus the mandatory
	// tool-use policy.
	SystemPrompt = `你是個熟悉中醫理論的中醫師，請利用你的中醫知識，配合中文醫學典籍，回答使用者提出的問題。

你依照用戶的使用語言回答問題，記得引用經典時，使用引號包起來。

必要工具 (MUST USE Tools) -- ALWAYS use the following tools

1. 非常重要：使用 search_documents 工具來從中醫典籍中查找相關信息。使用簡潔的搜尋關鍵字
[This is very important, You MUST use this tool to find the relevant information, weather to do additional research or to double check the answer]

2. 非常重要：使用 get_time_and_season 工具來獲取當前的節氣、時辰。
[This tool is very important], Must use this to give the advice that is accurate and suit the current environment.`

	// ApologyAnswer is returned verbatim when a turn cannot be completed.
	ApologyAnswer = "I encountered an error while processing your question. Please try again later."
)

// Env-driven settings, populated once by LoadEnv before anything serves
// traffic.
var (
	LLMProvider       = "deepseek" // deepseek | gemini
	EmbeddingProvider = "openai"   // openai | google
	VectorBackend     = "local"    // local | qdrant

	GoogleAPIKey   string
	DeepSeekAPIKey string
	OpenAIAPIKey   string

	AuthToken    string
	NoAuthBypass bool

	RedisAddr     = "127.0.0.1:6379"
	RedisPassword string

	QdrantHost string
)

// LoadEnv reads provider selection and credentials from the environment.
// A missing credential for the selected providers is a startup error; the
// process must not serve traffic without it.
func LoadEnv() error {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		LLMProvider = v
	}
	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		EmbeddingProvider = v
	}
	if v := os.Getenv("VECTOR_BACKEND"); v != "" {
		VectorBackend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		RedisAddr = v
	}
	RedisPassword = os.Getenv("REDIS_PASSWORD")
	QdrantHost = os.Getenv("QDRANT_HOST")

	GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	DeepSeekAPIKey = os.Getenv("DEEPSEEK_API_KEY")
	OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	AuthToken = os.Getenv("AUTH_TOKEN")
	NoAuthBypass = os.Getenv("NO_AUTH_BYPASS") == "true"
	if AuthToken == "" && !NoAuthBypass {
		return errors.New("AUTH_TOKEN is not set")
	}

	switch LLMProvider {
	case "deepseek":
		if DeepSeekAPIKey == "" {
			return errors.New("DEEPSEEK_API_KEY is not set")
		}
	case "gemini":
		if GoogleAPIKey == "" {
			return errors.New("GOOGLE_API_KEY is not set")
		}
	default:
		return errors.New("unknown LLM_PROVIDER: " + LLMProvider)
	}

	switch EmbeddingProvider {
	case "openai":
		if OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is not set")
		}
	case "google":
		if GoogleAPIKey == "" {
			return errors.New("GOOGLE_API_KEY is not set")
		}
	default:
		return errors.New("unknown EMBEDDING_PROVIDER: " + EmbeddingProvider)
	}

	return nil
}
