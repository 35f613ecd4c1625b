package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spacebio/engine/internal/logging"
	"github.com/spacebio/engine/internal/metrics"
	"github.com/spacebio/engine/internal/retrieval"
	"github.com/spacebio/engine/internal/server"
)

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default: http.port)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve search, chat, paper and statistics endpoints over HTTP, plus
Prometheus metrics on /metrics.

The corpus is loaded before the server starts listening; a missing or
malformed corpus stops startup with exit code 2 or 3, and an embedding
model whose dimension differs from the corpus matrix with exit code 4.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.NewLogger(cfg.Logging.Env, level)
	if err != nil {
		exitWithError(ExitConfigError, "creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithLogger(ctx, logger)

	metrics.Register()

	store := newStore(cfg)
	c, err := store.Get(ctx)
	if err != nil {
		logger.Error("loading corpus", zap.Error(err))
		exitWithCorpusError(err)
	}
	logger.Info("Corpus loaded",
		zap.Int("records", c.Len()),
		zap.Int("dimensions", c.Dimensions()),
	)

	provider := mustNewProvider(cfg)
	if err := checkDimensions(provider, c.Dimensions()); err != nil {
		logger.Error("embedding model does not match the corpus", zap.Error(err))
		exitWithError(ExitConfigError, "%v", err)
	}
	svc := retrieval.NewService(store, provider, newAssistant(cfg, logger), serviceOptions(cfg), logger)

	db := mustOpenDatabase(cfg)
	defer db.Close()
	if _, err := db.RebuildFromRecords(c.Records()); err != nil {
		exitWithError(ExitError, "populating database: %v", err)
	}

	port := cfg.HTTP.Port
	if servePort > 0 {
		port = servePort
	}

	logger.Info("Starting sbe API server",
		zap.String("version", Version),
		zap.String("env", cfg.Logging.Env),
		zap.Int("http_port", port),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", provider.ModelName()),
	)

	srv := server.New(svc, db, logger)
	err = srv.ListenAndServe(ctx, server.Options{
		Addr:            fmt.Sprintf(":%d", port),
		ReadTimeout:     time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:    time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
		ShutdownTimeout: time.Duration(cfg.HTTP.ShutdownSec) * time.Second,
	})
	if err != nil {
		logger.Error("HTTP server error", zap.Error(err))
		return err
	}
	return nil
}
