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

	"github.com/alecthomas/kingpin/v2"

	"github.com/fidde/cardinality_estimator/internal/api"
	"github.com/fidde/cardinality_estimator/internal/config"
	"github.com/fidde/cardinality_estimator/internal/corpus"
	"github.com/fidde/cardinality_estimator/internal/experiment"
	"github.com/fidde/cardinality_estimator/internal/receiver"
	"github.com/fidde/cardinality_estimator/internal/storage"
	"github.com/fidde/cardinality_estimator/pkg/hashing"
)

// serveCommand runs the REST API, the OTLP receivers and the run store.
type serveCommand struct {
	cmd        *kingpin.CmdClause
	configFile *string
}

func registerServe(app *kingpin.Application) *serveCommand {
	c := &serveCommand{}
	c.cmd = app.Command("serve", "Serve the REST API and OTLP receivers.")
	c.configFile = c.cmd.Flag("config", "YAML configuration file.").Short('c').String()
	return c
}

func (c *serveCommand) run() error {
	cfg, err := config.Load(*c.configFile)
	if err != nil {
		return err
	}

	logger := cfg.Log.NewLogger()
	logger.Info("starting cardinality server", "config", *c.configFile)

	defaults, err := experimentDefaults(cfg.Experiment)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := storage.NewStorage(ctx, storage.Config{
		Backend:        cfg.Storage.Backend,
		Mirror:         cfg.Storage.Mirror,
		SQLitePath:     cfg.Storage.SQLitePath,
		ClickHouseAddr: cfg.Storage.ClickHouseAddr,
		ArchiveDir:     cfg.Storage.ArchiveDir,
		MaxRuns:        cfg.Storage.MaxRuns,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("creating storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("error closing storage", "error", err)
		}
	}()

	corpora := corpus.NewRegistry(cfg.Corpus.MaxElements)
	ingester := receiver.NewIngester(corpora, cfg.Receiver.AttributeKey, cfg.Receiver.CorpusPrefix, logger)

	apiServer := api.NewServer(cfg.Server.APIAddr, store, corpora, api.Options{
		Defaults: defaults,
		Logger:   logger,
	})

	var (
		httpReceiver *receiver.HTTPReceiver
		grpcReceiver *receiver.GRPCReceiver
	)
	if cfg.Receiver.HTTPAddr != "" {
		httpReceiver = receiver.NewHTTPReceiver(cfg.Receiver.HTTPAddr, ingester, logger)
	}
	if cfg.Receiver.GRPCAddr != "" {
		grpcReceiver = receiver.NewGRPCReceiver(cfg.Receiver.GRPCAddr, ingester, logger)
	}

	// Start servers in goroutines
	errChan := make(chan error, 3)

	if httpReceiver != nil {
		go func() {
			logger.Info("starting OTLP HTTP receiver", "addr", cfg.Receiver.HTTPAddr)
			if err := httpReceiver.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("OTLP HTTP receiver error: %w", err)
			}
		}()
	}

	if grpcReceiver != nil {
		go func() {
			if err := grpcReceiver.Start(); err != nil {
				errChan <- fmt.Errorf("OTLP gRPC receiver error: %w", err)
			}
		}()
	}

	go func() {
		logger.Info("starting REST API server", "addr", cfg.Server.APIAddr)
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case serveErr = <-errChan:
		logger.Error("server error", "error", serveErr)
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if httpReceiver != nil {
		if err := httpReceiver.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down OTLP HTTP receiver", "error", err)
		}
	}
	if grpcReceiver != nil {
		if err := grpcReceiver.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down OTLP gRPC receiver", "error", err)
		}
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down API server", "error", err)
	}

	logger.Info("shutdown complete")
	return serveErr
}

// experimentDefaults turns the experiment section into runner defaults.
func experimentDefaults(c config.ExperimentConfig) (experiment.Config, error) {
	algorithms, err := experiment.ParseAlgorithms(c.Algorithms)
	if err != nil {
		return experiment.Config{}, err
	}
	kind, err := hashing.ParseKind(c.Hash)
	if err != nil {
		return experiment.Config{}, err
	}

	defaults := experiment.Config{
		Algorithms:  algorithms,
		Simulations: c.Simulations,
		MinPow:      c.MinPow,
		MaxPow:      c.MaxPow,
		Workers:     c.Workers,
		Hash:        kind,
	}
	if err := defaults.Validate(); err != nil {
		return experiment.Config{}, fmt.Errorf("%w: %w", experiment.ErrInvalidConfig, err)
	}
	return defaults, nil
}
