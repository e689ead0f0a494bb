// Package main provides the entry point for the powerbot service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/fame0528/powerbot/internal/api/handlers"
	"github.com/fame0528/powerbot/internal/auth"
	"github.com/fame0528/powerbot/internal/browser"
	"github.com/fame0528/powerbot/internal/config"
	"github.com/fame0528/powerbot/internal/crypto"
	"github.com/fame0528/powerbot/internal/http/mw"
	"github.com/fame0528/powerbot/internal/logging"
	"github.com/fame0528/powerbot/internal/pipeline"
	"github.com/fame0528/powerbot/internal/repository"
	"github.com/fame0528/powerbot/internal/runner"
	"github.com/fame0528/powerbot/internal/session"
	"github.com/fame0528/powerbot/internal/shutdown"
	"github.com/fame0528/powerbot/internal/storage"
	"github.com/fame0528/powerbot/internal/version"
)

const tokenIssuer = "powerbot"

func main() {
	// Load configuration first (logging config comes from env)
	cfg := config.Load()

	// Initialize logger using slog-logfilter (respects LOG_LEVEL, LOG_FORMAT env vars)
	logger := logging.SetDefault()

	logger.Info("starting powerbot",
		"version", version.Get().Version,
		"port", cfg.Port,
		"target_url", cfg.TargetURL,
		"flush_policy", cfg.FlushPolicy,
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the in-memory store and restore any existing snapshot
	store, err := storage.Open(storage.Config{
		SnapshotPath: cfg.SnapshotPath,
		Flush:        storage.FlushPolicy(cfg.FlushPolicy),
	}, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(store)

	// Automation components (the browser launches only when a run starts)
	manager := browser.NewManager(cfg, logger)
	controller := session.NewController(repos.Session, logger)
	extractor := pipeline.NewArticleExtractor(logger)
	pipe := pipeline.NewPipeline(extractor, repos.ScrapedData, repos.CapturedState, logger)
	switch {
	case cfg.StateEncryptionKey != "":
		cipher, err := crypto.NewFromBase64(cfg.StateEncryptionKey)
		if err != nil {
			logger.Error("invalid STATE_ENCRYPTION_KEY", "error", err)
			os.Exit(1)
		}
		pipe.UseCipher(cipher)
		logger.Info("captured state encryption enabled", "key_source", "key")
	case cfg.StateEncryptionSecret != "":
		cipher, err := crypto.NewFromSecret(cfg.StateEncryptionSecret)
		if err != nil {
			logger.Error("invalid STATE_ENCRYPTION_SECRET", "error", err)
			os.Exit(1)
		}
		pipe.UseCipher(cipher)
		logger.Info("captured state encryption enabled", "key_source", "derived")
	}
	strategy := runner.NewScrapeStrategy(pipe, cfg.NextSelector, cfg.DefaultTimeout, logger)
	bot := runner.New(cfg, manager, controller, pipe, repos.ActionLog, strategy, logger)

	// Bearer token verifier for the admin surface (nil without a secret)
	verifier := auth.NewVerifier(cfg.APIAuthSecret, tokenIssuer)
	authConfig := mw.AuthConfig{Verifier: verifier, Logger: logger}
	if verifier == nil {
		logger.Warn("no API_AUTH_SECRET configured - admin endpoints will reject all requests")
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(manager, store)
	sessionsHandler := handlers.NewSessionsHandler(repos, logger)
	storeHandler := handlers.NewStoreHandler(store, logger)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Rate limiting
	r.Use(httprate.LimitByIP(100, time.Minute))

	// Idle monitor (exits the process after IDLE_TIMEOUT of inactivity)
	idle := shutdown.NewMonitor(cfg.IdleTimeout, logger)
	r.Use(idle.Middleware)

	// Create Huma API
	humaConfig := huma.DefaultConfig("Powerbot", version.Get().Version)
	humaConfig.Info.Description = "Browser automation service with session tracking and durable extraction"
	api := humachi.New(r, humaConfig)

	// Register health endpoint (no auth required)
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service status with browser and store statistics",
		Tags:        []string{"Health"},
	}, func(ctx context.Context, input *struct{}) (*handlers.HealthOutput, error) {
		resp := healthHandler.Handle(ctx)
		return &handlers.HealthOutput{Body: *resp}, nil
	})

	// Admin routes require a token with the admin scope
	adminRouter := chi.NewRouter()
	adminRouter.Use(mw.Auth(authConfig))
	adminRouter.Use(mw.RequireScope("admin"))
	adminAPI := humachi.New(adminRouter, humaConfig)

	huma.Register(adminAPI, huma.Operation{
		OperationID: "deleteSession",
		Method:      http.MethodDelete,
		Path:        "/sessions/{id}",
		Summary:     "Purge a session",
		Description: "Deletes a session and its records, captured state and action log",
		Tags:        []string{"Admin"},
	}, sessionsHandler.DeleteSession)

	huma.Register(adminAPI, huma.Operation{
		OperationID: "persistStore",
		Method:      http.MethodPost,
		Path:        "/store/persist",
		Summary:     "Persist the store",
		Description: "Writes the in-memory database to its snapshot file now",
		Tags:        []string{"Admin"},
	}, storeHandler.Persist)

	r.Mount("/v1/admin", adminRouter)

	// Read routes are open unless API_REQUIRE_AUTH is set
	readRouter := chi.NewRouter()
	if cfg.APIRequireAuth {
		logger.Info("authentication required on read routes")
		readRouter.Use(mw.Auth(authConfig))
	}
	readAPI := humachi.New(readRouter, humaConfig)

	huma.Register(readAPI, huma.Operation{
		OperationID: "listSessions",
		Method:      http.MethodGet,
		Path:        "/v1/sessions",
		Summary:     "List sessions",
		Tags:        []string{"Sessions"},
	}, sessionsHandler.ListSessions)

	huma.Register(readAPI, huma.Operation{
		OperationID: "getSession",
		Method:      http.MethodGet,
		Path:        "/v1/sessions/{id}",
		Summary:     "Get a session",
		Tags:        []string{"Sessions"},
	}, sessionsHandler.GetSession)

	huma.Register(readAPI, huma.Operation{
		OperationID: "listSessionRecords",
		Method:      http.MethodGet,
		Path:        "/v1/sessions/{id}/records",
		Summary:     "List extracted records",
		Tags:        []string{"Sessions"},
	}, sessionsHandler.ListRecords)

	huma.Register(readAPI, huma.Operation{
		OperationID: "listSessionActions",
		Method:      http.MethodGet,
		Path:        "/v1/sessions/{id}/actions",
		Summary:     "List logged actions",
		Tags:        []string{"Sessions"},
	}, sessionsHandler.ListActions)

	r.Mount("/", readRouter)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Start the automation run when a target is configured; otherwise
	// the process only serves the status API.
	runDone := make(chan struct{})
	if cfg.TargetURL != "" {
		go func() {
			defer close(runDone)
			if err := bot.Run(ctx); err != nil {
				logger.Error("automation run failed", "error", err)
				return
			}
			logger.Info("automation run finished")
		}()
	} else {
		close(runDone)
		logger.Info("no target url configured - serving status API only")
	}

	// Arm the idle monitor once the run is over so a long automation
	// run cannot be cut short by API silence.
	go func() {
		<-runDone
		idle.Start()
	}()

	// Wait for interrupt signal or idle timeout
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("shutting down...")
	case <-idle.ShutdownChan():
		logger.Info("shutting down after idle timeout...")
	}

	// Cancel context to stop the automation run
	cancel()
	select {
	case <-runDone:
	case <-time.After(15 * time.Second):
		logger.Warn("automation did not stop in time")
	}
	idle.Stop()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// The runner tears its browser down on exit; Close here covers runs
	// that never started.
	if err := manager.Close(); err != nil {
		logger.Error("browser shutdown failed", "error", err)
	}

	// Close flushes the final snapshot when one is configured
	if err := store.Close(); err != nil {
		logger.Error("store shutdown failed", "error", err)
	}

	logger.Info("stopped")
}
