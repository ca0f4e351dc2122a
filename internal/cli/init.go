// Package cli provides the initialization shared by cmd/aviary and
// cmd/aviary-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"aviary/internal/backend"
	"aviary/internal/config"
	"aviary/internal/core"
	"aviary/internal/log"
)

// LoadEnvFile loads .env for local development. A missing file is ignored;
// production reads the real environment.
func LoadEnvFile(files ...string) {
	_ = godotenv.Load(files...)
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT,
// before the rest of the configuration is validated, and makes it the
// slog default.
func SetupLogger(component string) *log.Logger {
	cfg := config.Load()
	logger := log.New(log.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// LoadIncubationTable reads the species table, exiting on a bad file.
func LoadIncubationTable(logger *log.Logger, cfg *config.Config) core.IncubationTable {
	table, err := config.LoadIncubationTable(cfg.IncubationTableFile, cfg.DefaultIncubationDays)
	if err != nil {
		logger.Error("Failed to load incubation table", log.FieldError, err, "path", cfg.IncubationTableFile)
		os.Exit(1)
	}
	logger.Info("Loaded incubation table",
		"path", cfg.IncubationTableFile,
		"species", len(table.Species()),
		"default_days", table.Default)
	return table
}

// InitBackend opens the configured store and optional ledger publisher.
// Exits the process on failure.
func InitBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return res
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. Once the
// signal arrives, cleanup runs with a context bounded by timeout and the
// returned channel is closed when it returns.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
			logger.Info("Context cancelled")
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
