// main.go - The entry point and router setup.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bosocmputer/invoice_po_matcher/configs"
	"github.com/bosocmputer/invoice_po_matcher/internal/api"
	"github.com/bosocmputer/invoice_po_matcher/internal/app"
	"github.com/bosocmputer/invoice_po_matcher/internal/logger"
	"github.com/bosocmputer/invoice_po_matcher/internal/storage"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Step 0: Load configuration from environment variables
	configs.LoadConfig()
	if err := logger.Init(configs.LOG_LEVEL, configs.LOG_DEVELOPMENT); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zlog := logger.Get()

	// Step 0.5: Set production mode
	if ginMode := os.Getenv("GIN_MODE"); ginMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Step 1: Create the UPLOAD_DIR folder if it doesn't exist
	if err := os.MkdirAll(configs.UPLOAD_DIR, 0755); err != nil {
		zlog.Fatal("failed to create upload directory", zap.Error(err))
	}

	// Step 1.5: Initialize MongoDB connection
	if err := storage.InitMongoDB(zlog); err != nil {
		zlog.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer storage.CloseMongoDB(zlog)
	store := storage.NewMongoStore(storage.GetMongoDB(), time.Duration(configs.CACHE_TTL_SECONDS)*time.Second)

	// Step 2: Build the batch engine
	engine, err := app.NewEngine(context.Background(), store, zlog)
	defer func() {
		if err := engine.Close(); err != nil {
			zlog.Warn("engine close failed", zap.Error(err))
		}
	}()
	if err != nil {
		zlog.Fatal("failed to build engine", zap.Error(err))
	}

	// Step 3: Define the API routes
	h := api.NewHandler(store, engine.Orchestrator, zlog.Named("api"))
	h.AssistProvider = engine.AssistProvider
	h.OCRProvider = engine.OCRProvider
	h.AssistDefault = configs.ASSIST_MATCHING_ENABLED && engine.AssistProvider != "none"
	router := api.NewRouter(h, configs.ALLOWED_ORIGINS)

	// Step 4: Setup HTTP server with timeouts
	srv := &http.Server{
		Addr:           ":" + configs.PORT,
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   10 * time.Minute, // large batches with assist calls
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in a goroutine
	go func() {
		zlog.Info("starting server",
			zap.String("port", configs.PORT),
			zap.Strings("endpoints", []string{
				"POST /api/v1/invoices/bulk",
				"GET  /api/v1/verify",
				"GET  /api/v1/debug/matching",
				"GET  /api/v1/usage",
				"GET  /api/v1/settings/assist",
				"POST /api/v1/settings/assist",
			}))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
		return
	}

	zlog.Info("server exited")
}
