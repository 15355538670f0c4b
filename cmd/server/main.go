package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/mindmapgen/internal/api"
	"github.com/dgallion1/mindmapgen/internal/cache"
	"github.com/dgallion1/mindmapgen/internal/config"
	"github.com/dgallion1/mindmapgen/internal/llm"
	"github.com/dgallion1/mindmapgen/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats := llm.NewStats(24 * time.Hour)
	provider := llm.NewInstrumented(newProvider(cfg), stats)

	memo, err := newCache(cfg, log)
	if err != nil {
		log.Error("cache init failed", "backend", cfg.CacheBackend, "error", err)
		os.Exit(1)
	}

	orch := pipeline.NewOrchestrator(cfg, provider, memo, log)
	orch.Start(ctx)

	srv := api.NewServer(orch, provider, stats, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting mindmapgen",
		"port", cfg.Port,
		"provider", provider.Name(),
		"cache", cfg.CacheBackend)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newProvider(cfg config.Config) llm.Provider {
	switch cfg.Provider {
	case "OPENAI":
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case "DEEPSEEK":
		return llm.NewDeepSeekClient(cfg.DeepSeekAPIKey, cfg.DeepSeekModel)
	default:
		return llm.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	}
}

func newCache(cfg config.Config, log *slog.Logger) (cache.Cache, error) {
	switch cfg.CacheBackend {
	case "file":
		return cache.NewFile(cfg.CacheFile, log)
	case "redis":
		return cache.NewRedis(cfg.RedisAddr, cfg.RedisTTL, log), nil
	default:
		return cache.New(), nil
	}
}
