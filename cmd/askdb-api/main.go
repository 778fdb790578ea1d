package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askdb/askdb/internal/api"
	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/cache"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/embed"
	executorsqldb "github.com/askdb/askdb/internal/executor/sqldb"
	"github.com/askdb/askdb/internal/narrow"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/schema"
	schemasqldb "github.com/askdb/askdb/internal/schema/sqldb"
)

func main() {
	cfg, err := config.LoadFromEnv("askdb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := executorsqldb.Open(context.Background(), executorsqldb.DBConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	schemaRepo := schemasqldb.NewRepository(db, cfg.Database.Schema)
	catalog := schema.Cached(schemaRepo)

	var embedder embed.Embedder
	switch cfg.Embeddings.Provider {
	case "openai":
		embedder, err = embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			BaseURL:   cfg.Embeddings.BaseURL,
			APIKey:    cfg.Embeddings.APIKey,
			Model:     cfg.Embeddings.Model,
			Dimension: cfg.Embeddings.Dimension,
			Timeout:   cfg.Embeddings.Timeout,
		})
	default:
		embedder, err = embed.NewLocalEmbedder(cfg.Embeddings.Dimension)
	}
	if err != nil {
		logger.Error("failed to initialize embedder", slog.Any("error", err))
		os.Exit(1)
	}

	semanticCache, err := cache.New(embedder, cfg.Cache.Capacity, cfg.Cache.SimilarityThreshold, logger)
	if err != nil {
		logger.Error("failed to initialize semantic cache", slog.Any("error", err))
		os.Exit(1)
	}

	narrower, err := narrow.New(catalog, embedder, cfg.Narrow.TopK, cfg.Narrow.RelevanceFloor, logger)
	if err != nil {
		logger.Error("failed to initialize schema narrower", slog.Any("error", err))
		os.Exit(1)
	}

	var translator nl2sql.Translator
	switch cfg.Generation.Provider {
	case "openai":
		translator, err = nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.Generation.BaseURL,
			APIKey:      cfg.Generation.APIKey,
			Model:       cfg.Generation.Model,
			Temperature: cfg.Generation.Temperature,
			Timeout:     cfg.Generation.Timeout,
		})
	default:
		translator, err = nl2sql.NewOllamaTranslator(nl2sql.OllamaConfig{
			BaseURL:     cfg.Generation.BaseURL,
			Model:       cfg.Generation.Model,
			Temperature: cfg.Generation.Temperature,
			Timeout:     cfg.Generation.Timeout,
		})
	}
	if err != nil {
		logger.Error("failed to initialize translator", slog.Any("error", err))
		os.Exit(1)
	}

	runner, err := pipeline.New(pipeline.Options{
		Cache:           semanticCache,
		Narrower:        narrower,
		Translator:      translator,
		Executor:        executorsqldb.NewEngine(db),
		Logger:          logger,
		MaxRows:         cfg.Database.MaxRows,
		GenerateTimeout: cfg.Generation.Timeout,
		QueryTimeout:    cfg.Database.QueryTimeout,
	})
	if err != nil {
		logger.Error("failed to build pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	readinessChecks := []api.ReadinessCheck{
		api.CheckDatabaseDSN(cfg),
		schemaRepo.HealthCheck,
	}
	if checker, ok := translator.(interface{ HealthCheck(context.Context) error }); ok {
		readinessChecks = append(readinessChecks, checker.HealthCheck)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Runner:            runner,
		CacheAdmin:        semanticCache,
		Catalog:           catalog,
		Readiness:         api.CombineReadinessChecks(readinessChecks...),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
