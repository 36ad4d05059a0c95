// Package config defines the Droidmind runtime configuration and its
// environment-variable-driven loader.
package config

import "time"

// DeviceDriverConfig configures the HTTP device-control adapter (C1).
type DeviceDriverConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// EmbeddingConfig configures the embedding provider (C4.2 collaborator).
type EmbeddingConfig struct {
	BaseURL    string
	Path       string
	Model      string
	APIKey     string
	AuthHeader string
	Timeout    time.Duration
}

// AnthropicConfig, OpenAIConfig, GoogleConfig configure the three
// interchangeable LLM providers. Exactly one is selected by LLMProvider.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type GoogleConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// StoreConfig selects and configures the Memory Store backend (C2).
type StoreConfig struct {
	Backend         string // "memory" (default, for tests/dev) or "postgres"
	PostgresDSN     string
	QdrantDSN       string
	EmbeddingDim    int
	PersonVectorDim int
	Metric          string
}

// RetrieverConfig sizes the Memory Retriever's caches (C3).
type RetrieverConfig struct {
	ExactCacheCapacity    int
	SemanticCacheCapacity int
	NameCacheCapacity     int
	SemanticThreshold     float64
}

// TrackerConfig sizes the Observation Tracker's deques and poll cadence (C4).
type TrackerConfig struct {
	PollInterval      time.Duration
	ChangesCapacity   int
	SnapshotsCapacity int
	SnapshotWindow    int // snapshots consumed per inference pass
}

// OrchestratorConfig bounds the Orchestrator + Agents loop (C5).
type OrchestratorConfig struct {
	MaxIterations     int
	RetrievalMaxTurns int
	ExecutionMaxTurns int
	ExecutionTimeout  time.Duration
}

// Config is the fully-resolved, immutable runtime configuration.
type Config struct {
	Host string
	Port int

	LogLevel string
	LogPath  string

	LLMProvider string // "anthropic" | "openai" | "google"
	Anthropic   AnthropicConfig
	OpenAI      OpenAIConfig
	Google      GoogleConfig

	DeviceDriver DeviceDriverConfig
	Embedding    EmbeddingConfig
	Store        StoreConfig
	Retriever    RetrieverConfig
	Tracker      TrackerConfig
	Orchestrator OrchestratorConfig

	OTelEndpoint    string
	OTelServiceName string
	OTelInsecure    bool

	// HealthCheckLLM gates the optional LLM ping leg of /health (section 6:
	// "LLM ping (optional, gated by config)").
	HealthCheckLLM bool

	// LogLLMPayloads gates debug-level redacted prompt/response logging for
	// every LLM call. Off by default -- retrieved memory content routinely
	// carries things that shouldn't hit disk unless someone asked for them.
	LogLLMPayloads bool
}
