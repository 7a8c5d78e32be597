// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/broncorec/campusrec/internal/auth"
	"github.com/broncorec/campusrec/internal/config"
	"github.com/broncorec/campusrec/internal/database"
	"github.com/broncorec/campusrec/internal/handler"
	"github.com/broncorec/campusrec/internal/service"
	"github.com/broncorec/campusrec/internal/store"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	// ── 1. Open the storage backend ───────────────────────────────────────
	var st store.Store
	switch cfg.Storage {
	case "memory":
		st = store.NewMemory()
		logger.Info("using in-memory storage")
	default:
		pool, err := database.NewPool(ctx, cfg)
		if err != nil {
			logger.Error("database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			logger.Error("schema", "error", err)
			os.Exit(1)
		}
		st = store.NewPostgres(pool)
		logger.Info("connected to postgres", "host", cfg.DBHost, "db", cfg.DBName)
	}

	// ── 2. Wire up layers ────────────────────────────────────────────────
	programSvc := service.NewProgramService(st.Programs(), nil)
	registrationSvc := service.NewRegistrationService(st.Programs(), st.Registrations(), nil)
	membershipSvc := service.NewMembershipService(st.Memberships(), nil)
	verifier := auth.NewVerifier(cfg.TokenSecret, cfg.TokenIssuer, nil)
	api := handler.New(programSvc, registrationSvc, membershipSvc, logger)

	// ── 3. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger)          // structured access log
	r.Use(handler.CORS)            // permissive CORS for the web tier
	r.Mount("/", api.Routes(verifier))

	// ── 4. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
