package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/audit"
	"github.com/dunelens/dunelens/pkg/config"
	"github.com/dunelens/dunelens/pkg/database"
	"github.com/dunelens/dunelens/pkg/dune"
	"github.com/dunelens/dunelens/pkg/handlers"
	"github.com/dunelens/dunelens/pkg/llm"
	"github.com/dunelens/dunelens/pkg/logging"
	"github.com/dunelens/dunelens/pkg/mcp"
	"github.com/dunelens/dunelens/pkg/mcp/tools"
	"github.com/dunelens/dunelens/pkg/middleware"
	"github.com/dunelens/dunelens/pkg/prompts"
	"github.com/dunelens/dunelens/pkg/relevance"
	"github.com/dunelens/dunelens/pkg/repositories"
	"github.com/dunelens/dunelens/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("completion_provider", cfg.Completion.Provider),
		zap.String("completion_model", cfg.Completion.Model),
		zap.Bool("completion_configured", cfg.Completion.IsConfigured()),
		zap.Bool("dune_configured", cfg.Dune.IsConfigured()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := openDatabase(ctx, cfg, logger)
	defer db.Close()

	rdb, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, query metadata will not be cached", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	duneClient := dune.NewClient(&cfg.Dune, dune.NewRedisCache(rdb, cfg.Dune.MetadataCacheTTL), logger)

	completer := newCompleter(cfg, logger)

	extractor, err := newExtractor(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to load relevance vocabulary", zap.Error(err))
	}
	schema := prompts.DefaultSchema()

	// Repositories
	analyzedRepo := repositories.NewAnalyzedQueryRepository(db)
	sqlErrorRepo := repositories.NewSQLErrorRepository(db)
	historyRepo := repositories.NewGenerationHistoryRepository(db)

	// Services
	relatedService := services.NewRelatedQueryService(analyzedRepo, extractor, cfg.Relevance, logger)
	sqlErrorService := services.NewSQLErrorService(sqlErrorRepo, logger)
	historyService := services.NewHistoryService(historyRepo, logger)
	fixService := services.NewFixService(completer, relatedService, sqlErrorService, schema, cfg.Relevance, logger)
	generationService := services.NewGenerationService(completer, relatedService, sqlErrorService, historyService, schema, cfg.Relevance, logger)
	analysisService := services.NewAnalysisService(analyzedRepo, duneClient, completer, services.NewPersistencePolicy(&cfg.Persistence), logger)
	executionService := services.NewExecutionService(duneClient, audit.NewSecurityAuditor(logger), logger)

	mux := http.NewServeMux()

	// Register handlers
	healthHandler := handlers.NewHealthHandler(cfg, db, redisPinger(rdb), logger)
	healthHandler.RegisterRoutes(mux)
	handlers.NewSQLHandler(relatedService, fixService, generationService, logger).RegisterRoutes(mux)
	handlers.NewAnalysisHandler(analysisService, logger).RegisterRoutes(mux)
	handlers.NewSQLErrorHandler(sqlErrorService, logger).RegisterRoutes(mux)
	handlers.NewHistoryHandler(historyService, logger).RegisterRoutes(mux)
	handlers.NewDuneHandler(executionService, logger).RegisterRoutes(mux)

	mcpServer := mcp.NewServer("dunelens", cfg.Version, logger)
	tools.RegisterSQLTools(mcpServer.MCP(), &tools.SQLToolDeps{
		Related:    relatedService,
		Fix:        fixService,
		Generation: generationService,
		Logger:     logger,
	})
	tools.RegisterHealthTool(mcpServer.MCP(), healthHandler)
	mux.Handle("/mcp", mcpServer.Handler())

	handler := middleware.Chain(mux,
		middleware.Recovery(logger),
		middleware.RequestLogger(logger),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting dunelens", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsLocal() {
		return zap.NewDevelopmentConfig().Build()
	}
	return zap.NewProductionConfig().Build()
}

// openDatabase creates the pool and applies migrations when the database
// answers. A database that is down leaves the pool in place so requests
// degrade to log-only instead of the process refusing to start.
func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) *database.DB {
	db, err := database.Open(ctx, database.ConfigFrom(&cfg.Database))
	if err != nil {
		logger.Fatal("Failed to configure database pool", zap.Error(err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		logger.Warn("Database unavailable at startup, results will not be persisted", zap.Error(err))
		return db
	}

	if err := database.MigrateURL(cfg.Database.URL(), cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	return db
}

func newCompleter(cfg *config.Config, logger *zap.Logger) llm.Completer {
	completer, err := llm.NewCompleter(&cfg.Completion, logger)
	if err != nil {
		// Without a key every completion fails fast; /health reports 503.
		logger.Warn("Completion service not configured", zap.Error(err))
		return llm.NewUnconfiguredCompleter(cfg.Completion.Model, err)
	}
	return completer
}

func newExtractor(cfg *config.Config, logger *zap.Logger) (*relevance.Extractor, error) {
	if cfg.Relevance.VocabularyFile == "" {
		return relevance.NewExtractor(nil), nil
	}
	vocab, err := relevance.LoadVocabulary(cfg.Relevance.VocabularyFile)
	if err != nil {
		return nil, err
	}
	logger.Info("Loaded relevance vocabulary", zap.String("file", cfg.Relevance.VocabularyFile))
	return relevance.NewExtractor(vocab), nil
}

func redisPinger(rdb *redis.Client) handlers.Pinger {
	if rdb == nil {
		return nil
	}
	return handlers.PingerFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
}
