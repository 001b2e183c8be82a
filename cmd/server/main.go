package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/client"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/countdown"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/journal"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/proctoring"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/router"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/session"
	"github.com/stemsi/exstem-attempt/internal/storage"
	"github.com/stemsi/exstem-attempt/internal/validator"
	"github.com/stemsi/exstem-attempt/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("api", cfg.APIBaseURL).
		Str("upload_backend", cfg.UploadBackend).
		Msg("Starting ExStem Attempt Gateway")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Apply Migrations ──────────────────────────────────────────────
	if cfg.MigrateOnStart {
		version, err := database.MigrateUp(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
		log.Info().Uint("version", version).Msg("Schema up to date")
	}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	eventRepo := repository.NewSessionEventRepository(pool)
	snapshotRepo := repository.NewAttemptCacheRepository(rdb, cfg.AttemptCacheTTL)
	lockRepo := repository.NewSessionLockRepository(rdb, cfg.SessionLockTTL)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	apiClient := client.New(cfg.APIBaseURL, client.Timeouts{
		Light: cfg.APITimeoutLight,
		Heavy: cfg.APITimeoutHeavy,
	}, log)

	var uploader proctoring.Uploader
	if cfg.UploadBackend == config.UploadBackendMinio {
		minioUploader, err := storage.NewMinioUploader(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MinIO")
		}
		uploader = minioUploader
	}

	// ─── Shared Session Infrastructure ────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	ticks := countdown.NewTickSource(cfg.TickInterval, log)
	go ticks.Start(workerCtx)

	registry := session.NewRegistry()
	publisher := journal.NewPublisher(rdb)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt: handler.NewAttemptHandler(registry, snapshotRepo, eventRepo, log),
		WS: handler.NewWSHandler(handler.WSHandlerConfig{
			NewBackend: func(token string) handler.Backend {
				return apiClient.WithToken(token)
			},
			Uploader: uploader,
			Ticks:    ticks,
			Journal:  publisher,
			Cache:    snapshotRepo,
			Locks:    lockRepo,
			Registry: registry,
			Options: session.Options{
				Debounce:   cfg.AutosaveDebounce,
				ChunkEvery: cfg.RecordChunk,
			},
			MediaTimeout:   cfg.MediaTimeout,
			AllowedOrigins: cfg.AllowedOrigins,
		}, log),
		System: handler.NewSystemHandler(rdb, registry, ticks, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	eventWorker := worker.NewEventWorker(eventRepo, rdb, log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		eventWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked WebSocket
	// connections are not tracked by Shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Tear down live sessions so pending journal events reach the queue.
	log.Info().Int("sessions", registry.Len()).Msg("Closing live sessions")
	registry.CloseAll()

	// 3. Stop background workers and wait for the event queue to drain.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Event worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
