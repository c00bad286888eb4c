package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchgate/internal/config"
	"github.com/kailas-cloud/searchgate/internal/db"
	dbRedis "github.com/kailas-cloud/searchgate/internal/db/redis"
	logpkg "github.com/kailas-cloud/searchgate/internal/logger"
	"github.com/kailas-cloud/searchgate/internal/mcp"
	"github.com/kailas-cloud/searchgate/internal/metrics"
	"github.com/kailas-cloud/searchgate/internal/repository/presence"
	chiTransport "github.com/kailas-cloud/searchgate/internal/transport/chi"
	"github.com/kailas-cloud/searchgate/internal/transport/upstream"
	healthuc "github.com/kailas-cloud/searchgate/internal/usecase/health"
	"github.com/kailas-cloud/searchgate/internal/usecase/searchtool"
	sessionuc "github.com/kailas-cloud/searchgate/internal/usecase/session"
	"github.com/kailas-cloud/searchgate/internal/validation"
	"github.com/kailas-cloud/searchgate/internal/version"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the gateway HTTP server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port; overrides http.port",
				EnvVars: []string{"PORT"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("port") {
		cfg.HTTP.Port = c.Int("port")
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	env := c.String("env")
	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting searchgate",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.Int("retries", cfg.Upstream.RetryCount()),
		zap.Bool("actions_enabled", cfg.Actions.APIKey != ""),
		zap.String("session_store", cfg.Sessions.Store.Driver),
	)

	metrics.RegisterUpstreamMetrics()
	metrics.RegisterSessionMetrics()

	client, err := newUpstreamClient(cfg, logger)
	if err != nil {
		return err
	}

	// Optional session presence mirror
	var (
		store     db.Store
		presStore sessionuc.PresenceStore
		storePing healthuc.Pinger
	)
	if cfg.Sessions.Store.Driver != "none" {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Sessions.Store.Addrs,
			Password: cfg.Sessions.Store.Password,
		})
		if err != nil {
			return fmt.Errorf("failed to create session store: %w", err)
		}
		defer store.Close()

		readiness := time.Duration(cfg.Sessions.Store.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(c.Context, readiness); err != nil {
			return fmt.Errorf("session store not ready: %w", err)
		}
		logger.Info("Connected to session store", zap.Strings("addrs", cfg.Sessions.Store.Addrs))

		presStore = presence.New(store, time.Duration(cfg.Sessions.Store.TTLSec)*time.Second)
		storePing = store
	}

	validator, err := validation.New(logger)
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}
	search := searchtool.New(client, validator, cfg.Upstream.APIToken, cfg.Actions.APIKey)

	mcpServer := mcp.NewServer("searchgate", version.Version, logger)
	if err := mcpServer.AddTool(search.Tool()); err != nil {
		return fmt.Errorf("failed to register tool: %w", err)
	}

	registry := sessionuc.NewRegistry(mcpServer, sessionuc.Options{
		Store:  presStore,
		Logger: logger,
	})
	health := healthuc.New(client, storePing)

	server := chiTransport.NewServer(registry, search, health, cfg.Actions.APIKey, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chiTransport.NewRouter(server, logger),
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	// Open SSE streams only end once their sessions close.
	registry.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func newUpstreamClient(cfg config.Config, logger *zap.Logger) (*upstream.Client, error) {
	client, err := upstream.NewClient(&upstream.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		APIToken:       cfg.Upstream.APIToken,
		AuthScheme:     cfg.Upstream.AuthScheme,
		SelectPath:     cfg.Upstream.SelectPath,
		Timeout:        cfg.Upstream.Timeout(),
		Retries:        cfg.Upstream.RetryCount(),
		FailFastOnAuth: cfg.Upstream.FailFastOnAuth,
		DefaultModel:   cfg.Upstream.DefaultModel,
		DefaultFilters: cfg.Upstream.DefaultFilters,
		RateLimit:      cfg.Upstream.RateLimit,
		RateBurst:      cfg.Upstream.RateBurst,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}
	return client, nil
}
