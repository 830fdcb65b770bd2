// Package config loads Tenderflow configuration from environment variables.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an LLM or embedding backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	ServerPort string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Generative model
	LLMProvider     Provider
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Embedding
	EmbedModel     string
	EmbedDimension int

	// Object storage
	S3Endpoint   string
	RawBucket    string
	ParsedBucket string

	// Task dispatch
	ServiceMap         map[string]string
	DispatchTimeout    time.Duration
	DispatchMaxRetries int
	DispatchRetryWait  time.Duration

	// Corpus / retrieval
	ChunkSizeTokens    int
	ChunkOverlapTokens int
	DefaultTopK        int
	CacheTTL           time.Duration
	CacheMaxEntries    int

	// Playbook
	PlaybookConfigPath string
	PlaybookPacing     time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		ServerPort: getEnv("TENDERFLOW_PORT", "8080"),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "tenderflow"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "pipeline"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     Provider(getEnv("TENDERFLOW_LLM_PROVIDER", string(ProviderOllama))),
		LLMModel:        getEnv("TENDERFLOW_LLM_MODEL", "llama3.2"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),

		EmbedModel:     getEnv("TENDERFLOW_EMBEDDING_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("TENDERFLOW_EMBEDDING_DIMENSION", 384),

		S3Endpoint:   os.Getenv("S3_ENDPOINT"),
		RawBucket:    getEnv("RAW_TENDER_BUCKET", "rawtenderdata"),
		ParsedBucket: getEnv("PARSED_TENDER_BUCKET", "parsedtenderdata"),

		ServiceMap:         loadServiceMap(),
		DispatchTimeout:    getEnvDuration("DISPATCH_TIMEOUT", 30*time.Second),
		DispatchMaxRetries: getEnvInt("DISPATCH_MAX_RETRIES", 3),
		DispatchRetryWait:  getEnvDuration("DISPATCH_RETRY_WAIT", 500*time.Millisecond),

		ChunkSizeTokens:    getEnvInt("CORPUS_CHUNK_SIZE_TOKENS", 0),
		ChunkOverlapTokens: getEnvInt("CORPUS_CHUNK_OVERLAP_TOKENS", 0),
		DefaultTopK:        getEnvInt("RETRIEVAL_TOP_K", 10),
		CacheTTL:           getEnvDuration("RETRIEVAL_CACHE_TTL", 5*time.Minute),
		CacheMaxEntries:    getEnvInt("RETRIEVAL_CACHE_MAX_ENTRIES", 64),

		PlaybookConfigPath: os.Getenv("PLAYBOOK_CONFIG_PATH"),
		PlaybookPacing:     getEnvDuration("PLAYBOOK_PACING", 0),

		LogFile:  getEnv("TENDERFLOW_LOG_FILE", "/tmp/tenderflow.log"),
		LogLevel: parseLogLevel(getEnv("TENDERFLOW_LOG_LEVEL", "INFO")),
	}
}

// loadServiceMap compiles the task-target endpoint map. Per-target env vars
// form the base; SERVICE_ENDPOINTS_JSON overrides merge on top. Targets with
// empty endpoints are pruned so unresolved lookups fall through to skip.
func loadServiceMap() map[string]string {
	base := map[string]string{
		"ingest-api":             os.Getenv("INGEST_API_URL"),
		"extractor.deadlines":    os.Getenv("DEADLINES_EXTRACTOR_URL"),
		"extractor.emd":          os.Getenv("EMD_EXTRACTOR_URL"),
		"extractor.requirements": os.Getenv("REQUIREMENTS_EXTRACTOR_URL"),
		"extractor.penalties":    os.Getenv("PENALTIES_EXTRACTOR_URL"),
		"extractor.annexures":    os.Getenv("ANNEXURES_EXTRACTOR_URL"),
		"artifact.annexures":     os.Getenv("ARTIFACT_ANNEXURES_URL"),
		"artifact.checklist":     os.Getenv("ARTIFACT_CHECKLIST_URL"),
		"artifact.plan":          os.Getenv("ARTIFACT_PLAN_URL"),
		"rag.index":              os.Getenv("RAG_INDEX_URL"),
		"qa.loop":                os.Getenv("QA_LOOP_URL"),
	}
	if overrides := os.Getenv("SERVICE_ENDPOINTS_JSON"); overrides != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(overrides), &parsed); err != nil {
			slog.Warn("invalid SERVICE_ENDPOINTS_JSON payload, ignoring", "error", err)
		} else {
			for target, endpoint := range parsed {
				base[target] = endpoint
			}
		}
	}
	serviceMap := make(map[string]string, len(base))
	for target, endpoint := range base {
		if endpoint != "" {
			serviceMap[target] = endpoint
		}
	}
	return serviceMap
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
		slog.Warn("invalid integer env value, using default", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		slog.Warn("invalid duration env value, using default", "key", key, "value", val)
	}
	return defaultVal
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
