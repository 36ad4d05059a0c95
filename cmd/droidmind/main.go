// Command droidmind runs the Droidmind assistant service: the Observation
// Tracker background loop plus the HTTP surface for tracker control,
// retrieval/execution testing, and the full orchestrated-execution route.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"droidmind/internal/config"
	"droidmind/internal/devicedriver"
	"droidmind/internal/embedding"
	"droidmind/internal/httpapi"
	"droidmind/internal/llm"
	"droidmind/internal/llm/anthropicprovider"
	"droidmind/internal/llm/googleprovider"
	"droidmind/internal/llm/openaiprovider"
	"droidmind/internal/observability"
	"droidmind/internal/orchestrator"
	"droidmind/internal/retriever"
	"droidmind/internal/store"
	"droidmind/internal/tracker"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("droidmind")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEndpoint != "" {
		shutdown, err := observability.InitOTel(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init otel: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("droidmind: otel shutdown")
			}
		}()
		observability.InitLoggerWithExtraWriter(cfg.LogPath, cfg.LogLevel, observability.NewOTelWriter(cfg.OTelServiceName))
	} else {
		observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	}

	st, err := store.New(ctx, store.Config(cfg.Store))
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	embedder := embedding.NewHTTPClient(embedding.Config(cfg.Embedding))

	llm.ConfigureLogging(cfg.LogLLMPayloads, 4096)

	provider, model, err := newLLMProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	driver := devicedriver.NewHTTPDriver(devicedriver.Config{
		BaseURL:        cfg.DeviceDriver.BaseURL,
		APIKey:         cfg.DeviceDriver.APIKey,
		DefaultTimeout: cfg.DeviceDriver.Timeout,
	})

	r := retriever.New(st.Structured, st.Vector, embedder, retriever.Config{
		ExactCacheCapacity:    cfg.Retriever.ExactCacheCapacity,
		SemanticCacheCapacity: cfg.Retriever.SemanticCacheCapacity,
		NameCacheCapacity:     cfg.Retriever.NameCacheCapacity,
		SemanticThreshold:     cfg.Retriever.SemanticThreshold,
	})

	inferencer := tracker.NewInferencer(provider, model)
	embedGen := tracker.NewEmbeddingGenerator(embedder, st.Vector)
	trk := tracker.New(driver, st.Structured, inferencer, embedGen, tracker.Config{
		ContextSize:       cfg.Tracker.SnapshotWindow,
		ChangesCapacity:   cfg.Tracker.ChangesCapacity,
		SnapshotsCapacity: cfg.Tracker.SnapshotsCapacity,
		PollInterval:      cfg.Tracker.PollInterval,
	})
	if err := trk.Start(0); err != nil {
		return fmt.Errorf("start tracker: %w", err)
	}
	defer trk.Stop()

	orchCfg := orchestrator.Config{
		MaxIterations:     cfg.Orchestrator.MaxIterations,
		RetrievalMaxTurns: cfg.Orchestrator.RetrievalMaxTurns,
		ExecutionMaxTurns: cfg.Orchestrator.ExecutionMaxTurns,
	}
	srv := httpapi.NewServer(trk, st, r, driver, embedder, provider, model, model, orchCfg)
	srv.PingLLM = cfg.HealthCheckLLM

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("droidmind: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("droidmind: shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// newLLMProvider selects and constructs exactly one of the three
// interchangeable LLM providers per cfg.LLMProvider, returning it alongside
// its configured default model name.
func newLLMProvider(ctx context.Context, cfg config.Config) (llm.Provider, string, error) {
	httpClient := observability.NewHTTPClient(nil)
	switch cfg.LLMProvider {
	case "openai":
		return openaiprovider.New(openaiprovider.Config(cfg.OpenAI), httpClient), cfg.OpenAI.Model, nil
	case "google":
		p, err := googleprovider.New(ctx, googleprovider.Config{
			APIKey:  cfg.Google.APIKey,
			BaseURL: cfg.Google.BaseURL,
			Model:   cfg.Google.Model,
		}, httpClient)
		if err != nil {
			return nil, "", fmt.Errorf("init google provider: %w", err)
		}
		return p, cfg.Google.Model, nil
	case "anthropic", "":
		return anthropicprovider.New(anthropicprovider.Config{
			APIKey:  cfg.Anthropic.APIKey,
			BaseURL: cfg.Anthropic.BaseURL,
			Model:   cfg.Anthropic.Model,
		}, httpClient), cfg.Anthropic.Model, nil
	default:
		return nil, "", fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
}
