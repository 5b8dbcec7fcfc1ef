// Command nlquery-service runs the natural-language-to-SPARQL query HTTP
// service (SPEC_FULL.md §6): it wires the Cache Gate, language model
// client, triplestore client, stream multiplexer, and orchestrator behind
// the external API surface (component C8) and serves them over HTTP with
// graceful shutdown on SIGTERM/SIGINT.
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

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/chainlens/nlquery/internal/config"
	"github.com/chainlens/nlquery/pkg/api"
	"github.com/chainlens/nlquery/pkg/cache"
	"github.com/chainlens/nlquery/pkg/contracts"
	"github.com/chainlens/nlquery/pkg/llm"
	"github.com/chainlens/nlquery/pkg/pipeline"
	"github.com/chainlens/nlquery/pkg/shared/cors"
	"github.com/chainlens/nlquery/pkg/shared/logging"
	"github.com/chainlens/nlquery/pkg/stream"
	"github.com/chainlens/nlquery/pkg/triplestore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		return errors.New("CONFIG_PATH environment variable required")
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	backend, err := newCacheBackend(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache backend: %w", err)
	}
	gate := cache.New(backend, log)

	llmClient := llm.New(cfg.LanguageModel.APIKey, anthropic.Model(cfg.LanguageModel.Model), log)
	tripleClient := triplestore.New(cfg.Triplestore.QueryEndpoint, cfg.Triplestore.GSPEndpoint, log)

	multiplexer := stream.New(log)
	orchestrator := pipeline.New(gate, llmClient, tripleClient, multiplexer, log)

	corsOpts := resolveCORS(cfg.CORS)
	server := api.New(orchestrator, gate, llmClient, log, corsOpts)

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout),
	}

	return serveWithGracefulShutdown(httpServer, log)
}

func serveWithGracefulShutdown(httpServer *http.Server, log *logrus.Logger) error {
	fields := logging.NewFields().Component("nlquery-service")

	serverErr := make(chan error, 1)
	go func() {
		log.WithFields(fields.ToLogrus()).Infof("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-serverErr:
		return err
	case sig := <-sigCh:
		log.WithFields(fields.ToLogrus()).Infof("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newCacheBackend(cfg config.CacheSettings) (contracts.CacheBackend, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return cache.NewRedisBackend(client), nil
	case "memory", "":
		return cache.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

func resolveCORS(cfg config.CORSSettings) *cors.Options {
	opts := cors.FromEnvironment()
	if len(cfg.AllowedOrigins) > 0 {
		opts.AllowedOrigins = cfg.AllowedOrigins
	}
	if len(cfg.AllowedMethods) > 0 {
		opts.AllowedMethods = cfg.AllowedMethods
	}
	return opts
}

func newLogger(level, format string) *logrus.Logger {
	log := logrus.New()

	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{})
	}

	return log
}
