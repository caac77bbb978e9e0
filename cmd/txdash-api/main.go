package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"txdash/internal/cli"
	"txdash/internal/config"
	"txdash/internal/log"
	"txdash/internal/stubapi"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig((*config.Config).ValidateStub)

	store := cli.InitStore(logger, cfg.SQLiteDBPath)
	defer store.Close()

	seedCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	n, err := stubapi.Seed(seedCtx, store, cfg.StubSeedFile, logger)
	cancel()
	if err != nil {
		logger.Error("Failed to seed store", log.FieldError, err, "error_type", log.ErrorTypeDatabase)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.StubPort,
		Handler:        stubapi.NewHandler(store, logger).Routes(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16, // 64KB
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting combined-response stand-in",
		log.FieldOperation, log.OpStartup,
		"port", cfg.StubPort,
		"db", cfg.SQLiteDBPath,
		"seeded_rows", n)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.StubPort)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
