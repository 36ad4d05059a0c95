package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads configuration from environment variables (optionally from a
// .env file, which takes precedence over pre-existing OS env vars so local
// development deterministically reflects the repo's .env), falling back to
// a YAML config file for anything not set in the environment, and finally
// to hardcoded defaults.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}
	if yamlPath := strings.TrimSpace(os.Getenv("DROIDMIND_CONFIG")); yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			_ = yaml.Unmarshal(data, &cfg)
		}
	}

	cfg.Host = firstNonEmpty(strings.TrimSpace(os.Getenv("HOST")), cfg.Host, "0.0.0.0")
	cfg.Port = firstPositiveInt(envInt("PORT"), cfg.Port, 8090)

	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_LEVEL")), cfg.LogLevel, "info")
	cfg.LogPath = firstNonEmpty(strings.TrimSpace(os.Getenv("LOG_PATH")), cfg.LogPath)

	cfg.LLMProvider = firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_PROVIDER")), cfg.LLMProvider, "anthropic")

	cfg.Anthropic.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")), cfg.Anthropic.APIKey)
	cfg.Anthropic.BaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")), cfg.Anthropic.BaseURL)
	cfg.Anthropic.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL")), cfg.Anthropic.Model)

	cfg.OpenAI.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_API_KEY")), cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")), cfg.OpenAI.BaseURL)
	cfg.OpenAI.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_MODEL")), cfg.OpenAI.Model)

	cfg.Google.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")), cfg.Google.APIKey)
	cfg.Google.BaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("GOOGLE_BASE_URL")), cfg.Google.BaseURL)
	cfg.Google.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("GOOGLE_MODEL")), cfg.Google.Model)

	cfg.DeviceDriver.BaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("DEVICE_DRIVER_URL")), cfg.DeviceDriver.BaseURL, "http://localhost:9000")
	cfg.DeviceDriver.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("DEVICE_DRIVER_API_KEY")), cfg.DeviceDriver.APIKey)
	cfg.DeviceDriver.Timeout = firstPositiveDuration(envSeconds("DEVICE_DRIVER_TIMEOUT_SECONDS"), cfg.DeviceDriver.Timeout, 120*time.Second)

	cfg.Embedding.BaseURL = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_URL")), cfg.Embedding.BaseURL)
	cfg.Embedding.Path = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_PATH")), cfg.Embedding.Path, "/embeddings")
	cfg.Embedding.Model = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_MODEL")), cfg.Embedding.Model)
	cfg.Embedding.APIKey = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY")), cfg.Embedding.APIKey)
	cfg.Embedding.AuthHeader = firstNonEmpty(strings.TrimSpace(os.Getenv("EMBEDDING_AUTH_HEADER")), cfg.Embedding.AuthHeader)

	cfg.Store.Backend = firstNonEmpty(strings.TrimSpace(os.Getenv("STORE_BACKEND")), cfg.Store.Backend, "memory")
	cfg.Store.PostgresDSN = firstNonEmpty(strings.TrimSpace(os.Getenv("POSTGRES_DSN")), cfg.Store.PostgresDSN)
	cfg.Store.QdrantDSN = firstNonEmpty(strings.TrimSpace(os.Getenv("QDRANT_DSN")), cfg.Store.QdrantDSN)
	cfg.Store.EmbeddingDim = firstPositiveInt(envInt("OBSERVATION_EMBEDDING_DIM"), cfg.Store.EmbeddingDim, 768)
	cfg.Store.PersonVectorDim = firstPositiveInt(envInt("PERSON_VECTOR_DIM"), cfg.Store.PersonVectorDim, 1536)
	cfg.Store.Metric = firstNonEmpty(strings.TrimSpace(os.Getenv("VECTOR_METRIC")), cfg.Store.Metric, "cosine")

	cfg.Retriever.ExactCacheCapacity = firstPositiveInt(envInt("RETRIEVER_EXACT_CACHE_CAPACITY"), cfg.Retriever.ExactCacheCapacity, 50)
	cfg.Retriever.SemanticCacheCapacity = firstPositiveInt(envInt("RETRIEVER_SEMANTIC_CACHE_CAPACITY"), cfg.Retriever.SemanticCacheCapacity, 10)
	cfg.Retriever.NameCacheCapacity = firstPositiveInt(envInt("RETRIEVER_NAME_CACHE_CAPACITY"), cfg.Retriever.NameCacheCapacity, 50)
	cfg.Retriever.SemanticThreshold = firstPositiveFloat(envFloat("RETRIEVER_SEMANTIC_THRESHOLD"), cfg.Retriever.SemanticThreshold, 0.70)

	cfg.Tracker.PollInterval = firstPositiveDuration(envSeconds("TRACKER_POLL_INTERVAL_SECONDS"), cfg.Tracker.PollInterval, 1*time.Second)
	cfg.Tracker.ChangesCapacity = firstPositiveInt(envInt("TRACKER_CHANGES_CAPACITY"), cfg.Tracker.ChangesCapacity, 10)
	cfg.Tracker.SnapshotsCapacity = firstPositiveInt(envInt("TRACKER_SNAPSHOTS_CAPACITY"), cfg.Tracker.SnapshotsCapacity, 50)
	cfg.Tracker.SnapshotWindow = firstPositiveInt(envInt("TRACKER_SNAPSHOT_WINDOW"), cfg.Tracker.SnapshotWindow, 10)

	cfg.Orchestrator.MaxIterations = firstPositiveInt(envInt("ORCHESTRATOR_MAX_ITERATIONS"), cfg.Orchestrator.MaxIterations, 3)
	cfg.Orchestrator.RetrievalMaxTurns = firstPositiveInt(envInt("RETRIEVAL_AGENT_MAX_TURNS"), cfg.Orchestrator.RetrievalMaxTurns, 5)
	cfg.Orchestrator.ExecutionMaxTurns = firstPositiveInt(envInt("EXECUTION_AGENT_MAX_TURNS"), cfg.Orchestrator.ExecutionMaxTurns, 5)
	cfg.Orchestrator.ExecutionTimeout = firstPositiveDuration(envSeconds("EXECUTION_TIMEOUT_SECONDS"), cfg.Orchestrator.ExecutionTimeout, 120*time.Second)

	cfg.OTelEndpoint = firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")), cfg.OTelEndpoint)
	cfg.OTelServiceName = firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")), cfg.OTelServiceName, "droidmind")
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		cfg.OTelInsecure = strings.EqualFold(v, "true")
	}

	if v := strings.TrimSpace(os.Getenv("HEALTH_CHECK_LLM")); v != "" {
		cfg.HealthCheckLLM = strings.EqualFold(v, "true")
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LLM_PAYLOADS")); v != "" {
		cfg.LogLLMPayloads = strings.EqualFold(v, "true")
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositiveInt(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveFloat(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveDuration(vals ...time.Duration) time.Duration {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func envInt(name string) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envFloat(name string) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func envSeconds(name string) time.Duration {
	n := envInt(name)
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
