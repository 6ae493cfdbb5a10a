package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mayank-dotcom/botsystem/internal/api"
	"github.com/mayank-dotcom/botsystem/internal/auth"
	"github.com/mayank-dotcom/botsystem/internal/config"
	"github.com/mayank-dotcom/botsystem/internal/core"
	"github.com/mayank-dotcom/botsystem/internal/logging"
	"github.com/mayank-dotcom/botsystem/internal/store"
)

func main() {
	ingestFile := flag.String("ingest", "", "Ingest a single-column Markdown table as knowledge chunks and exit")
	ingestOrg := flag.String("org", "", "Organization that owns ingested chunks (with -ingest)")
	tokenOrg := flag.String("token", "", "Print an admin token for the given organization and exit")
	tokenAdmin := flag.String("admin", "", "Admin recorded as the actor for changes made with the token (with -token)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if *tokenOrg != "" {
		token, err := auth.GenerateJWT(cfg.JWTSecret, *tokenOrg, *tokenAdmin)
		if err != nil {
			logger.Fatal("Failed to generate token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	ctx := context.Background()

	dbStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	completer, embedder, closeLLM, err := newLLM(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize LLM client", zap.Error(err))
	}
	defer closeLLM()

	activity := core.NewActivityRecorder(dbStore, logger)
	knowledge := core.NewKnowledgeService(dbStore, embedder, activity, logger)

	if *ingestFile != "" {
		if *ingestOrg == "" {
			logger.Fatal("-org is required with -ingest")
		}
		if err := ingest(ctx, knowledge, *ingestFile, *ingestOrg, logger); err != nil {
			logger.Fatal("Data ingestion failed", zap.Error(err))
		}
		return
	}

	cache, closeCache, err := newTemplateCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize template cache", zap.Error(err))
	}
	defer closeCache()

	prompts := core.NewPromptService(cache, logger)
	connections := core.NewConnectionService(dbStore, prompts, activity, logger)
	behaviors := core.NewBehaviorService(dbStore, activity, logger)
	chatService := core.NewChatService(core.ChatDeps{
		Store:       dbStore,
		Connections: connections,
		Behaviors:   behaviors,
		Selector:    core.NewDocumentSelector(dbStore, cfg.LegacySingleTenant, logger),
		Prompts:     prompts,
		Completer:   completer,
		Correlator:  core.NewCorrelator(dbStore, logger),
		Timeout:     cfg.LLM.CompletionTimeout,
	}, logger)

	apiHandler := api.NewAPIHandler(api.Services{
		Chat:        chatService,
		Connections: connections,
		Behaviors:   behaviors,
		Feedback:    core.NewFeedbackService(dbStore, logger),
		Knowledge:   knowledge,
		Activity:    activity,
	}, cfg.JWTSecret, logger)
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLM.CompletionTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", serverAddr),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.String("database_driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}
	logger.Info("Server exiting gracefully")
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		return store.NewPostgresStore(ctx, cfg.Database.URL, logger)
	default:
		return store.NewSQLiteStore(cfg.Database.URL, logger)
	}
}

// newLLM builds the completer for the configured provider and an embedder for
// chunk ingestion. Anthropic has no embeddings, so it borrows OpenAI's or Gemini's.
func newLLM(ctx context.Context, cfg *config.Config, logger *zap.Logger) (core.Completer, core.Embedder, func(), error) {
	noop := func() {}
	switch cfg.LLM.Provider {
	case config.ProviderGemini:
		gemini, err := core.NewGeminiClient(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.EmbeddingModel, logger)
		if err != nil {
			return nil, nil, noop, err
		}
		return gemini, gemini, gemini.Close, nil
	case config.ProviderAnthropic:
		completer := core.NewAnthropicClient(cfg.LLM.AnthropicAPIKey, cfg.LLM.AnthropicModel, logger)
		if cfg.LLM.OpenAIAPIKey != "" {
			return completer, core.NewOpenAIClient(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIModel, cfg.LLM.EmbeddingModel, logger), noop, nil
		}
		gemini, err := core.NewGeminiClient(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.EmbeddingModel, logger)
		if err != nil {
			return nil, nil, noop, err
		}
		return completer, gemini, gemini.Close, nil
	default:
		openai := core.NewOpenAIClient(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIModel, cfg.LLM.EmbeddingModel, logger)
		return openai, openai, noop, nil
	}
}

func newTemplateCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (core.TemplateCache, func(), error) {
	if cfg.Cache.RedisAddr == "" {
		return core.NewMemoryTemplateCache(), func() {}, nil
	}
	cache, err := core.NewRedisTemplateCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.TTL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Using Redis template cache", zap.String("addr", cfg.Cache.RedisAddr))
	return cache, func() { _ = cache.Close() }, nil
}

func ingest(ctx context.Context, knowledge *core.KnowledgeService, path, organizationID string, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = core.WithActor(ctx, "cli")

	logger.Info("Starting data ingestion", zap.String("file", path), zap.String("organization_id", organizationID))
	n, err := knowledge.IngestMarkdownTable(ctx, organizationID, f)
	if err != nil {
		return err
	}
	logger.Info("Data ingestion complete", zap.Int("chunks", n))
	return nil
}
