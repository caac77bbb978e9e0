package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"txdash/internal/amqp"
	"txdash/internal/api"
	"txdash/internal/cache"
	"txdash/internal/cli"
	"txdash/internal/config"
	"txdash/internal/dashboard"
	apphttp "txdash/internal/http"
	"txdash/internal/log"
	"txdash/internal/middleware/ratelimit"
	"txdash/internal/session"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig((*config.Config).Validate)

	client := api.NewClient(cfg.APIBaseURL, api.WithTimeout(cfg.APITimeout))
	metrics := apphttp.NewFetchMetrics()

	// Fetch events are published only when a broker is configured.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
		if err != nil {
			logger.Error("Failed to connect to AMQP broker", log.FieldError, err, "error_type", log.ErrorTypeNetwork)
			os.Exit(1)
		}
		logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange, "routing_key", cfg.AMQPRoutingKey)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	factory := func(id string) *dashboard.Controller {
		observers := dashboard.Observers{metrics}
		if amqpClient != nil {
			observers = append(observers, amqpClient.ForSession(id))
		}
		return dashboard.NewController(client,
			dashboard.WithObserver(observers),
			dashboard.WithLogger(logger.With(log.FieldSessionID, id)))
	}
	registry := session.NewRegistry(factory, cfg.SessionMax, cfg.SessionTTL,
		session.WithLogger(logger),
		session.WithSecureCookie(cfg.SessionSecureCookie))

	cacheManager := cache.NewManager(logger)
	cacheManager.Register(registry.Cleaner())
	if err := cacheManager.StartCleanup(cfg.SessionSweepSchedule); err != nil {
		logger.Error("Failed to schedule session sweep", log.FieldError, err, "error_type", log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	opts := []apphttp.Option{
		apphttp.WithLogger(logger),
		apphttp.WithFetchMetrics(metrics),
		apphttp.WithRateLimit(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		}),
	}
	if amqpClient != nil {
		opts = append(opts, apphttp.WithReadinessCheck("amqp", amqpClient.Healthy))
	}
	srv := apphttp.NewServer(":"+cfg.Port, registry, opts...)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		registry.Close()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting txdash server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"api_base_url", cfg.APIBaseURL)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
