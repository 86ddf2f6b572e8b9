package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"oidcgate/internal/cache"
	"oidcgate/internal/config"
	"oidcgate/internal/httpclient"
	"oidcgate/internal/oidc"
	"oidcgate/internal/server"
	"oidcgate/internal/store"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "/etc/oidcgate/config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("oidcgate v%s\n", version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info("starting oidcgate", "version", version)

	cacheInstance, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	logger.Info("cache initialized", "type", cfg.Cache.Type)

	userStore, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to create user store: %w", err)
	}
	if userStore != nil {
		logger.Info("user store initialized", "type", cfg.Store.Type)
	} else {
		logger.Info("user store disabled, sessions will be claims-only")
	}

	httpClient := httpclient.New(logger)
	client, err := oidc.NewClient(context.Background(), cfg.OIDC, cfg.Session.AutoRefresh(), httpClient, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize oidc client: %w", err)
	}
	logger.Info("oidc client initialized", "issuer", client.Issuer())

	return server.New(cfg, cacheInstance, userStore, client, logger).Start()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
