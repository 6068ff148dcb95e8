// Package app wires the store, search engine and indexing orchestrator
// shared by the sync CLI and the MCP server.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/bull/docshub/internal/config"
	"github.com/bull/docshub/internal/extract"
	ghclient "github.com/bull/docshub/internal/github"
	"github.com/bull/docshub/internal/indexer"
	"github.com/bull/docshub/internal/quality"
	"github.com/bull/docshub/internal/search"
	"github.com/bull/docshub/internal/storage"
)

// Env holds settings read from the environment.
type Env struct {
	ConfigPath  string // DOCSHUB_CONFIG
	DBPath      string // DOCSHUB_DB, overrides storage.path
	GitHubToken string // GITHUB_TOKEN
	Port        string // PORT
	ServerMode  bool   // SERVER_MODE=true
	LogLevel    string // LOG_LEVEL
}

// LoadEnv loads .env if present (local development) and reads the
// environment.
func LoadEnv() Env {
	_ = godotenv.Load()
	return Env{
		ConfigPath:  os.Getenv("DOCSHUB_CONFIG"),
		DBPath:      os.Getenv("DOCSHUB_DB"),
		GitHubToken: os.Getenv("GITHUB_TOKEN"),
		Port:        getEnv("PORT", "8080"),
		ServerMode:  getEnv("SERVER_MODE", "false") == "true",
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// NewLogger returns a text logger at the named level. Unknown levels fall
// back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// LoadConfig reads the configuration file named by env, or the defaults when
// none is set, and applies environment overrides.
func LoadConfig(env Env) (config.Config, error) {
	cfg := config.Default()
	if env.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(env.ConfigPath); err != nil {
			return config.Config{}, err
		}
	}
	if env.DBPath != "" {
		cfg.Storage.Path = env.DBPath
	}
	return cfg, nil
}

// App holds the wired components.
type App struct {
	Config  config.Config
	Store   *storage.Store
	Engine  *search.Engine
	Indexer *indexer.Orchestrator
	Logger  *slog.Logger
}

// New opens the store and builds the search engine and orchestrator.
func New(ctx context.Context, env Env, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := LoadConfig(env)
	if err != nil {
		return nil, err
	}

	scorer, err := quality.NewScorer(cfg.ScorerOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create scorer: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Storage.Path, storage.Options{
		RebuildBatchSize: cfg.Storage.RebuildBatchSize,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", cfg.Storage.Path, err)
	}

	gh, err := ghclient.NewClient(ctx, env.GitHubToken)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	if env.GitHubToken == "" {
		logger.Warn("GITHUB_TOKEN not set, using unauthenticated GitHub rate limits")
	}

	return &App{
		Config:  cfg,
		Store:   store,
		Engine:  search.NewEngine(store, search.OptionsFrom(cfg.Search), logger),
		Indexer: indexer.New(cfg, store, ghclient.NewHost(gh, logger), extract.New(), scorer, logger),
		Logger:  logger,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
