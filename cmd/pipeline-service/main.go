package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentiment-price-tracker/internal/pipeline/config"
	delivery "sentiment-price-tracker/internal/pipeline/delivery/http"
	"sentiment-price-tracker/internal/pipeline/repository"
	"sentiment-price-tracker/internal/pipeline/service"
	"sentiment-price-tracker/pkg/logger"
	"sentiment-price-tracker/pkg/postgres"
	redisPkg "sentiment-price-tracker/pkg/redis"
	"sentiment-price-tracker/pkg/telegram"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"google.golang.org/genai"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the pipeline service",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Pipeline Service", logger.Field("name", cfg.App.Name))

	// Initialize database
	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Initialize Redis
	redisCfg := redisPkg.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	redisClient, err := redisPkg.NewClient(redisCfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize Redis", logger.ErrorField(err))
	}
	defer redisClient.Close()

	// Initialize repositories
	sentimentRepo := repository.NewSentimentRepository(db.DB)
	priceRepo := repository.NewPriceRepository(db.DB)
	runRepo := repository.NewPipelineRunRepository(db.DB)
	yahooFinanceRepo := repository.NewYahooFinanceRepository(cfg, appLogger)

	// Initialize classifier provider
	var classifier service.Classifier
	switch cfg.Classifier.Provider {
	case "gemini":
		genAiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey: cfg.Gemini.APIKey,
		})
		if err != nil {
			appLogger.Fatal("Failed to initialize Gemini client", logger.ErrorField(err))
		}
		classifier = service.NewGeminiClassifier(cfg, appLogger, genAiClient)
	case "keyword", "":
		classifier = service.NewKeywordClassifier()
	default:
		appLogger.Fatal("Invalid classifier provider specified in config", logger.StringField("provider", cfg.Classifier.Provider))
	}

	// Initialize Telegram notifier
	var notifier telegram.Notifier
	if cfg.Telegram.Enabled {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
		}
	}

	// Initialize pipeline components
	feedFetcher := service.NewFeedFetcher(cfg.Pipeline.Sources, appLogger)
	deduplicator := service.NewDeduplicator(sentimentRepo, appLogger)

	pipelineSvc := service.NewPipelineService(
		cfg,
		appLogger,
		feedFetcher,
		deduplicator,
		classifier,
		sentimentRepo,
		priceRepo,
		yahooFinanceRepo,
		runRepo,
		redisClient.Client,
		notifier,
	)

	// Recover the watermark; storage being unreachable here is fatal.
	if err := pipelineSvc.Init(ctx); err != nil {
		appLogger.Fatal("Failed to initialize pipeline", logger.ErrorField(err))
	}

	// Start the pipeline loop
	go pipelineSvc.Start(ctx)

	// Initialize Echo server for operational endpoints
	e := echo.New()
	e.HideBanner = true

	statusHandler := delivery.NewStatusHandler(pipelineSvc, appLogger)
	statusHandler.RegisterRoutes(e)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop() // trigger shutdown
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	appLogger.Info("Shutting down pipeline service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Pipeline service exiting")
}

func main() {
	rootCmd := &cobra.Command{Use: "pipeline-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-pipeline.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing pipeline-service CLI: %s\n", err)
		os.Exit(1)
	}
}
