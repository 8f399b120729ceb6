package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/switchboard/internal/api"
	"github.com/dennisdiepolder/switchboard/internal/auth"
	"github.com/dennisdiepolder/switchboard/internal/callqueue"
	"github.com/dennisdiepolder/switchboard/internal/config"
	"github.com/dennisdiepolder/switchboard/internal/metrics"
	"github.com/dennisdiepolder/switchboard/internal/notify"
	"github.com/dennisdiepolder/switchboard/internal/stats"
	"github.com/dennisdiepolder/switchboard/internal/storage"
	"github.com/dennisdiepolder/switchboard/internal/ticker"
	"github.com/dennisdiepolder/switchboard/internal/websocket"
	"github.com/dennisdiepolder/switchboard/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
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
		Strs("allowed_origins", cfg.AllowedOrigins).
		Ints("workers", cfg.Workers[:]).
		Float64("escalation_probability", cfg.EscalationProbability).
		Str("log_level", cfg.LogLevel).
		Msg("starting switchboard server")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(ctx, storage.LoadConfig(), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create store")
	}

	authn, err := auth.New(auth.Options{
		SkipAuth:  cfg.SkipAuth,
		Secret:    cfg.JWTSecret,
		IssuerURL: cfg.OIDCIssuer,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure auth")
	}
	if cfg.SkipAuth {
		log.Warn().Msg("authentication disabled (SKIP_AUTH=true)")
	}

	// Create WebSocket hub
	hub := websocket.NewHub(log.Logger)
	go hub.Run(ctx)

	notifiers := notify.Multi{notify.NewHubNotifier(hub)}
	if level <= zerolog.DebugLevel {
		notifiers = append(notifiers, notify.NewLogNotifier(log.Logger))
	}

	seed := time.Now().UnixNano()
	dispatcher, err := callqueue.NewDispatcher(cfg.Workers, log.Logger,
		callqueue.WithDecider(callqueue.NewRandomDecider(cfg.EscalationProbability, seed)),
		callqueue.WithWorkSimulator(callqueue.NewRandomDelay(cfg.MaxCallDuration, seed+1)),
		callqueue.WithNotifier(notifiers),
		callqueue.WithStore(store),
		callqueue.WithMetricsHook(metrics.Get()),
		callqueue.WithServiceLevel(cfg.SLTarget, cfg.SLSeconds),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create dispatcher")
	}

	tickerService := ticker.NewTicker(dispatcher, hub, cfg.SnapshotInterval, cfg.WaitAlertSecs, log.Logger)
	go tickerService.Start(ctx)

	reporter, err := stats.NewReporter(dispatcher, store, cfg.StatsSchedule, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create stats reporter")
	}
	go reporter.Start(ctx)

	r := newRouter(cfg, dispatcher, store, hub, authn, log.Logger)

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

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Waiting calls are abandoned, calls in conversation are finished
	dispatcher.Close()

	// Stop hub, ticker and reporter
	cancel()

	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}

	log.Info().Msg("server stopped")
}

// newRouter mounts every HTTP endpoint of the server
func newRouter(cfg *config.Config, d *callqueue.Dispatcher, store storage.Store, hub *websocket.Hub, authn *auth.Authenticator, logger zerolog.Logger) http.Handler {
	wsHandler := websocket.NewHandler(hub, cfg, logger)
	callHandler := callqueue.NewCallHandler(d, logger)
	historyHandler := api.NewHistoryHandler(store, logger)
	adminHandler := api.NewAdminHandler(cfg.SimURL, d, store, logger)

	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(metrics.Get().Middleware)

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Call generators submit without a token
	r.Post("/calls", callHandler.HandleSubmit)

	r.Group(func(r chi.Router) {
		r.Use(authn.Middleware)

		r.Get("/ws", wsHandler.ServeHTTP)
		r.Get("/calls/stats", callHandler.HandleStats)
		r.Get("/calls/{callID}", callHandler.HandleGet)
		r.Delete("/calls/{callID}", callHandler.HandleAbandon)
		r.Get("/workers", callHandler.HandleWorkers)
		historyHandler.Routes(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Delete("/queues", adminHandler.WipeQueues)
			r.Delete("/history", adminHandler.WipeHistory)
			r.Post("/calls", adminHandler.InjectCalls)
			r.Get("/sim/status", adminHandler.GetSimStatus)
			r.Post("/sim/rate", adminHandler.SetSimRate)
		})
	})

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"switchboard"}`)
}
