package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobarin/clipmix/internal/api"
	"github.com/bobarin/clipmix/internal/batch"
	"github.com/bobarin/clipmix/internal/config"
	"github.com/bobarin/clipmix/internal/db"
	"github.com/bobarin/clipmix/internal/models"
	"github.com/bobarin/clipmix/internal/queue"
	"github.com/bobarin/clipmix/internal/services"
	"github.com/bobarin/clipmix/internal/session"
	"github.com/bobarin/clipmix/internal/storage"
	"github.com/bobarin/clipmix/internal/worker"
)

func main() {
	log.Println("Starting clipmix API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to Redis queue; the session store shares the connection
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	var store session.Store
	purgeCtx, purgeCancel := context.WithCancel(context.Background())
	defer purgeCancel()

	switch cfg.SessionStore {
	case "postgres":
		database, err := db.New(cfg.DatabaseURL, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		go database.StartPurger(purgeCtx, time.Hour)
		store = database
	default:
		store = session.NewRedisStoreFromClient(q.Client(), cfg.SessionTTL)
	}
	log.Printf("Session store ready (%s, ttl %s)", cfg.SessionStore, cfg.SessionTTL)

	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		log.Fatalf("Failed to create work dir: %v", err)
	}
	go session.StartSweeper(purgeCtx, store, cfg.WorkDir, time.Hour)

	ffmpegSvc := services.NewFFmpegService(services.FFmpegOptions{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Resolution:  services.ParseResolution(cfg.OutputResolution),
		MusicVolume: cfg.MusicVolume,
	})

	// Create API handler
	handler := api.NewHandler(store, q, ffmpegSvc, api.HandlerConfig{
		WorkDir:         cfg.WorkDir,
		MaxUploadBytes:  cfg.MaxUploadBytes(),
		MaxClipsPerRole: cfg.MaxClipsPerRole,
		MaxSelected:     cfg.MaxSelectedProducts,
		Defaults:        defaultBatchOptions(cfg),
	})
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())

		deliverer, err := storage.NewDeliverer(workerCtx, cfg.Delivery())
		if err != nil {
			log.Fatalf("Failed to initialize delivery backend: %v", err)
		}
		log.Printf("Archive delivery: %s", cfg.DeliveryBackend)

		pipeline := batch.NewPipeline(ffmpegSvc, cfg.RenderConcurrency, false)
		w := worker.New(q, store, pipeline, deliverer)

		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func defaultBatchOptions(cfg *config.Config) models.BatchOptions {
	return models.BatchOptions{
		Policy:                   cfg.AssemblyPolicy,
		TargetDurationSec:        cfg.TargetDurationSec,
		ProductTimeBudgetSec:     cfg.ProductTimeBudgetSec,
		EstimatedClipDurationSec: cfg.EstimatedClipDurationSec,
	}
}
