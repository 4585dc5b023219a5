package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ragvault/internal/api"
	"ragvault/internal/api/handlers"
	"ragvault/internal/app"
	"ragvault/internal/stream"
	"ragvault/pkg/config"
	"ragvault/pkg/logger"

	"go.uber.org/zap"
)

// @title ragvault API
// @version 1.0
// @description Privacy-preserving retrieval-augmented generation over bot knowledge sources

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Format); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting ragvault service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := app.Build(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer core.Close()

	// Initialize handlers
	queryHandler := handlers.NewQueryHandler(core.RAG, appLogger.Named("api"))
	sourceHandler := handlers.NewSourceHandler(core.Ingestion, appLogger.Named("api"))
	streamHandler := handlers.NewStreamHandler(ctx, core.RAG, stream.Config{
		WordsPerChunk:      cfg.Stream.WordsPerChunk,
		ChunkDelay:         cfg.Stream.ChunkDelay,
		RateLimitPerMinute: cfg.Stream.RateLimitPerMinute,
		Burst:              cfg.Stream.Burst,
	}, appLogger.Named("stream"))

	// Setup router
	server := api.SetupRouter(queryHandler, sourceHandler, streamHandler, core.JWT, api.RouterConfig{
		CORSOrigins:    cfg.Server.CORSOrigins,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RequestLogging: true,
	}, appLogger)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := server.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	cancel()
	if err := server.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
