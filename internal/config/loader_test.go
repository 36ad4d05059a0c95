package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		_ = os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(k, old)
			} else {
				_ = os.Unsetenv(k)
			}
		})
	}
}

func TestLoad_DefaultsWhenEnvUnset(t *testing.T) {
	clearEnv(t, "HOST", "PORT", "LLM_PROVIDER", "STORE_BACKEND",
		"RETRIEVER_SEMANTIC_THRESHOLD", "TRACKER_POLL_INTERVAL_SECONDS",
		"ORCHESTRATOR_MAX_ITERATIONS", "DROIDMIND_CONFIG")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, 8090, cfg.Port)
	require.Equal(t, "anthropic", cfg.LLMProvider)
	require.Equal(t, "memory", cfg.Store.Backend)
	require.Equal(t, 0.70, cfg.Retriever.SemanticThreshold)
	require.Equal(t, 1*time.Second, cfg.Tracker.PollInterval)
	require.Equal(t, 3, cfg.Orchestrator.MaxIterations)
	require.False(t, cfg.HealthCheckLLM)
	require.False(t, cfg.LogLLMPayloads)
}

func TestLoad_HealthCheckLLMEnabled(t *testing.T) {
	clearEnv(t, "HEALTH_CHECK_LLM", "DROIDMIND_CONFIG")
	require.NoError(t, os.Setenv("HEALTH_CHECK_LLM", "true"))

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.HealthCheckLLM)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearEnv(t, "HOST", "PORT", "LLM_PROVIDER", "RETRIEVER_SEMANTIC_THRESHOLD", "DROIDMIND_CONFIG")
	require.NoError(t, os.Setenv("HOST", "127.0.0.1"))
	require.NoError(t, os.Setenv("PORT", "9999"))
	require.NoError(t, os.Setenv("LLM_PROVIDER", "openai"))
	require.NoError(t, os.Setenv("RETRIEVER_SEMANTIC_THRESHOLD", "0.85"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, 9999, cfg.Port)
	require.Equal(t, "openai", cfg.LLMProvider)
	require.Equal(t, 0.85, cfg.Retriever.SemanticThreshold)
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "foo", firstNonEmpty("", "foo", "bar"))
	require.Equal(t, "", firstNonEmpty())
	require.Equal(t, "", firstNonEmpty("", "  "))
}

func TestFirstPositiveInt(t *testing.T) {
	require.Equal(t, 5, firstPositiveInt(0, 5, 10))
	require.Equal(t, 0, firstPositiveInt(0, -1))
}

func TestEnvSeconds(t *testing.T) {
	clearEnv(t, "SOME_TIMEOUT_SECONDS")
	require.Equal(t, time.Duration(0), envSeconds("SOME_TIMEOUT_SECONDS"))
	require.NoError(t, os.Setenv("SOME_TIMEOUT_SECONDS", "30"))
	require.Equal(t, 30*time.Second, envSeconds("SOME_TIMEOUT_SECONDS"))
}
