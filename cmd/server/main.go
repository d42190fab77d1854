package main

// Package main is the entry point for the datalens-ai server.
//
// Startup flow:
//  1. Load and validate configuration (YAML + DATALENS_* environment)
//  2. Build the structured logger
//  3. Open the SQLite store and run migrations
//  4. Wire the insights service (LLM-backed when a provider is configured,
//     deterministic templates otherwise)
//  5. Start the HTTP server: REST API, WebSocket progress stream, /metrics
//
// Shutdown is graceful: SIGINT/SIGTERM drains in-flight requests before the
// process exits.

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/datalens/datalens-ai/internal/config"
	"github.com/datalens/datalens-ai/internal/db"
	"github.com/datalens/datalens-ai/internal/insights"
	"github.com/datalens/datalens-ai/internal/logging"
	"github.com/datalens/datalens-ai/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "datalens-ai: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	manager := config.NewManager(configPath)
	if err := manager.Load(ctx); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := manager.Validate(ctx); err != nil {
		return fmt.Errorf("validate configuration: %w", err)
	}
	cfg := manager.Get(ctx)

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.Path = cfg.Logging.Path
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	store, err := db.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ai, err := buildInsights(cfg, logger)
	if err != nil {
		return fmt.Errorf("wire insights: %w", err)
	}

	srv, err := server.NewServer(cfg, store, ai, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// buildInsights wires the AI layer. Without a configured provider the service
// still works, answering from deterministic templates.
func buildInsights(cfg *config.Config, logger *zap.Logger) (*insights.Service, error) {
	if cfg.LLM.Provider != "openai" || cfg.LLM.APIKey == "" {
		logger.Info("llm provider not configured, using template insights")
		return insights.NewService(nil, logger), nil
	}

	client, err := insights.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("llm provider configured",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model))
	return insights.NewService(client, logger), nil
}
