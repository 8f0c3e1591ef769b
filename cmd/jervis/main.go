// Jervis backend server. It exposes the task API, runs the plan executor
// pool, polls the configured knowledge sources, and indexes discovered items
// into the vector store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jervis-ai/jervis/pkg/api"
	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/database"
	"github.com/jervis-ai/jervis/pkg/dialog"
	"github.com/jervis-ai/jervis/pkg/events"
	"github.com/jervis-ai/jervis/pkg/executor"
	"github.com/jervis-ai/jervis/pkg/indexing"
	"github.com/jervis-ai/jervis/pkg/llm"
	"github.com/jervis-ai/jervis/pkg/models"
	"github.com/jervis-ai/jervis/pkg/planner"
	"github.com/jervis-ai/jervis/pkg/polling"
	"github.com/jervis-ai/jervis/pkg/rag"
	"github.com/jervis-ai/jervis/pkg/ratelimit"
	"github.com/jervis-ai/jervis/pkg/tokens"
	"github.com/jervis-ai/jervis/pkg/tools"
	"github.com/jervis-ai/jervis/pkg/version"
)

// indexedKinds is the set of item collections the indexer drains.
var indexedKinds = []models.ItemKind{
	models.KindConfluencePage,
	models.KindJiraIssue,
	models.KindGitCommit,
	models.KindEmailMessage,
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	mongoURI := getEnv("MONGODB_URI", "mongodb://localhost:27017")
	mongoDB := getEnv("MONGODB_DATABASE", "jervis")

	slog.Info("Starting Jervis", "build", version.Build().String(),
		"http_port", httpPort, "config_dir", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	stats := cfg.Stats()
	slog.Info("Configuration loaded",
		"providers", stats.Providers, "models", stats.Models, "prompts", stats.Prompts)

	db, err := database.Connect(ctx, mongoURI, mongoDB)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(context.Background()); err != nil {
			slog.Error("Error closing database connection", "error", err)
		}
	}()
	if err := db.EnsureIndexes(ctx); err != nil {
		slog.Error("Failed to ensure database indexes", "error", err)
		os.Exit(1)
	}

	// Stores.
	connectionStore := database.NewConnectionStore(db)
	projectStore := database.NewProjectStore(db)
	planStore := database.NewPlanStore(db)
	contextStore := database.NewTaskContextStore(db)
	requirementStore := database.NewRequirementStore(db)

	// Shared machinery: one adaptive limiter for every outbound domain, one
	// token counter, one event bus.
	limiter := ratelimit.NewLimiter(cfg.RateLimit)
	counter := tokens.NewCounter(cfg.LLM.ResponseBuffer)
	bus := events.NewBus()
	dialogs := dialog.NewCoordinator(bus)

	// LLM gateway and RAG pipeline.
	gateway := llm.NewGateway(cfg.Registry, cfg.LLM, counter,
		llm.NewConcurrencyManager(cfg.Registry), limiter)
	vectorStore := rag.NewHTTPVectorStore(cfg.VectorStore)
	pipeline := rag.NewPipeline(vectorStore, rag.NewLLMSynthesizer(gateway), cfg.VectorStore)

	// Tools, planner, executor.
	stepPlanner := planner.New(gateway, nil)
	registry, err := tools.NewRegistry(
		tools.NewRAGSearchTool(pipeline),
		tools.NewAnalysisReasoningTool(gateway),
		tools.NewPlannerTool(stepPlanner),
		tools.NewRecoveryReasoningTool(gateway),
		tools.NewUserRequirementTool(gateway, requirementStore),
		tools.NewUserDialogTool(dialogs),
	)
	if err != nil {
		slog.Error("Failed to build tool registry", "error", err)
		os.Exit(1)
	}
	stepPlanner.SetCatalog(registry)

	planExecutor := executor.New(planStore, registry, stepPlanner, gateway, bus, cfg.Executor)
	if err := planExecutor.Start(ctx); err != nil {
		slog.Error("Failed to start executor", "error", err)
		os.Exit(1)
	}

	// Indexing pipeline: per-kind item stores drained into the vector store.
	itemStores := make([]indexing.ItemRepository, 0, len(indexedKinds))
	for _, kind := range indexedKinds {
		itemStores = append(itemStores, indexing.NewItemStore(db, kind))
	}
	indexer := indexing.NewIndexer(itemStores, connectionStore, vectorStore, cfg.Indexing)
	indexer.Start(ctx)

	// Polling scheduler. Provider capability handlers register here; a build
	// without any configured source integrations runs with an empty registry
	// and the scheduler skips every connection.
	pollRegistry := polling.NewRegistry()
	scheduler := polling.NewScheduler(pollRegistry, connectionStore, projectStore, cfg.Indexing.PollingInterval)
	scheduler.Start(ctx)

	// HTTP and WebSocket surface.
	server := api.NewServer(contextStore, planStore, connectionStore, gateway, bus, db, cfg.Server)
	server.SetWorkerStats(planExecutor)
	server.SetIndexerStats(indexer)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(":" + httpPort); err != nil {
			errCh <- err
		}
	}()

	slog.Info("Jervis started",
		"workers", cfg.Executor.WorkerCount,
		"indexed_kinds", len(itemStores))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Shutdown order: stop claiming new work first, then drain the data
	// plane, then close the HTTP surface.
	scheduler.Stop()
	planExecutor.Stop()
	indexer.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Executor.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Jervis stopped")
}
