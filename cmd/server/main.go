package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leaseledger/lease-ledger-api/internal/analyzer"
	"github.com/leaseledger/lease-ledger-api/internal/config"
	"github.com/leaseledger/lease-ledger-api/internal/db"
	"github.com/leaseledger/lease-ledger-api/internal/extractor"
	"github.com/leaseledger/lease-ledger-api/internal/reconcile"
	"github.com/leaseledger/lease-ledger-api/internal/repository"
	"github.com/leaseledger/lease-ledger-api/internal/router"
	"github.com/leaseledger/lease-ledger-api/internal/services"
	"github.com/leaseledger/lease-ledger-api/internal/storage"
	"github.com/leaseledger/lease-ledger-api/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := utils.NewLogger(cfg.LogLevel)

	// Initialize database
	database, err := db.NewSQLiteDB(cfg.DatabaseFile)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer database.Close()

	// Run migrations
	if err := db.RunMigrations(cfg.DatabaseFile, "internal/db/migrations"); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	// External adapters, constructed once and held for the process lifetime
	blobStore, err := storage.NewS3Storage(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize blob storage", "error", err)
	}

	textExtractor := extractor.New(extractor.Config{
		Pdftoppm:  cfg.PdftoppmPath,
		Tesseract: cfg.TesseractPath,
		DPI:       cfg.OCRDPI,
		MaxPages:  cfg.OCRMaxPages,
	}, logger)

	fieldExtractor := analyzer.NewOpenRouterAnalyzer(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, logger)

	// Core: ledger, reconciliation engine, intake service
	repo := repository.NewRepository(database)
	engine := reconcile.NewEngine(repo, logger)
	intake := services.NewIntakeService(repo, blobStore, textExtractor, fieldExtractor, engine, cfg.ProcessTimeout, logger)

	// Setup HTTP router
	handler := router.NewRouter(intake, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
