// Package main provides the docshub MCP server entry point.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bull/docshub/internal/app"
	mcpserver "github.com/bull/docshub/internal/mcp"
	"github.com/bull/docshub/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	env := app.LoadEnv()
	logger := app.NewLogger(os.Stderr, env.LogLevel)
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, env, logger)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	metrics.Register()

	server := mcpserver.NewServer(&mcpserver.Config{
		Store:          a.Store,
		Engine:         a.Engine,
		Indexer:        a.Indexer,
		Logger:         logger,
		ResponseBudget: a.Config.Search.ResponseBudget,
	})

	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Get("/", mcpserver.NewLandingHandler())
	r.Get("/health", mcpserver.NewHealthHandler(a.Store))
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))

	srv := &http.Server{
		Addr:              "0.0.0.0:" + env.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if env.ServerMode {
		// HTTP mode: serve MCP over HTTP for remote clients
		go func() {
			logger.Info("Starting HTTP server", "addr", srv.Addr, "db", a.Store.Path())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "error", err)
				cancel()
			}
		}()
		<-ctx.Done()
	} else {
		// Stdio mode: MCP over stdin/stdout, with health and metrics in the background
		go func() {
			logger.Info("Starting health server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Health server error", "error", err)
			}
		}()

		logger.Info("Starting docshub MCP server (stdio mode)", "db", a.Store.Path())
		if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Server error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", "error", err)
	}
	logger.Info("Server stopped")
}
