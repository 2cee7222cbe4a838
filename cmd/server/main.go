package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/renxuetao/cskefu/internal/api"
	"github.com/renxuetao/cskefu/internal/auth"
	"github.com/renxuetao/cskefu/internal/cache"
	"github.com/renxuetao/cskefu/internal/config"
	"github.com/renxuetao/cskefu/internal/dialplan"
	"github.com/renxuetao/cskefu/internal/directory"
	"github.com/renxuetao/cskefu/internal/dispatch"
	"github.com/renxuetao/cskefu/internal/metrics"
	"github.com/renxuetao/cskefu/internal/notify"
	"github.com/renxuetao/cskefu/internal/storage"
	"github.com/renxuetao/cskefu/internal/store"
	"github.com/renxuetao/cskefu/internal/sweep"
	"github.com/renxuetao/cskefu/internal/wire"
	"github.com/renxuetao/cskefu/internal/worker"
	"github.com/renxuetao/cskefu/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("redis_addr", cfg.RedisAddr).
		Str("signaling_channel", cfg.SignalingChannel).
		Str("log_level", cfg.LogLevel).
		Msg("starting call center engine")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis client for signaling pub/sub and campaign run-state
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis not reachable at startup")
	}

	// Session store, directory, presence cache, claim table
	st := store.NewMemoryStore()
	dir := directory.NewMemoryLookup()
	presence := cache.NewPresenceCache()
	claims := cache.NewClaimTable()
	policies := dispatch.NewPolicyStore()

	// Service record archive (DynamoDB or noop)
	archive, err := storage.NewArchive(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize service record archive")
	}

	// Agent console hub
	hub := notify.NewAgentHub(log.Logger)
	go hub.Run()
	wsHandler := notify.NewAgentHandler(hub, log.Logger)

	// Service distribution and the call event state machine
	dist := dispatch.NewDist(st, policies, presence, archive, log.Logger)
	machine := wire.NewMachine(st, dir, dist, presence, hub, log.Logger)

	// Signaling consumer
	consumer := wire.NewConsumer(rdb, cfg.SignalingChannel, machine, log.Logger)
	go consumer.Start(ctx)

	// Campaign controller and worker pool for outbound jobs
	campaigns := dialplan.NewService(st, dir, rdb, log.Logger)
	pool := worker.NewPool(cfg.WorkerCount, cfg.WorkerQueue, log.Logger)
	go pool.Start(ctx)

	// Sweep loops
	sweeper := sweep.NewSweeper(st, dist, policies, presence, claims, hub, pool, campaigns, sweep.Intervals{
		Session:        cfg.SessionSweepInterval,
		AgentReply:     cfg.AgentReplyInterval,
		StaleEviction:  cfg.StaleEvictionInterval,
		Reconcile:      cfg.ReconcileInterval,
		JobDispatch:    cfg.JobDispatchInterval,
		JobInitialWait: cfg.JobInitialWait,
	}, log.Logger)
	go sweeper.Start(ctx)

	// API handlers
	dialplanHandler := api.NewDialplanHandler(campaigns, log.Logger)
	recordsHandler := api.NewRecordsHandler(archive, log.Logger)
	adminHandler := api.NewAdminHandler(st, presence, hub, archive, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Add auth middleware for protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/ws", wsHandler.ServeHTTP)

		r.Route("/api", func(r chi.Router) {
			r.With(api.RequireSupervisorOrAdmin).Post("/callout/dialplan", dialplanHandler.Run)
			r.Get("/records", recordsHandler.GetByDate)
			r.Get("/records/agent/{agentID}", recordsHandler.GetByAgent)

			r.Route("/admin", func(r chi.Router) {
				r.Use(api.RequireAdmin)
				r.Get("/status", adminHandler.Status)
				r.Post("/archive/wipe", adminHandler.WipeArchive)
			})
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop consumer, sweeps and workers
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	if err := rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close redis client")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"callcenter-engine"}`)
}
