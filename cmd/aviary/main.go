package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"aviary/internal/cache"
	"aviary/internal/cli"
	apphttp "aviary/internal/http"
	"aviary/internal/log"
	"aviary/internal/mqtt"
	"aviary/internal/observability"
	"aviary/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	table := cli.LoadIncubationTable(logger, cfg)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	backend := cli.InitBackend(initCtx, logger, cfg)
	initCancel()

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()
	svc := services.New(services.Deps{
		Store:              backend.Store,
		Publisher:          backend.Publisher,
		Incubation:         table,
		CriticalWindowDays: cfg.CriticalWindowDays,
		DefaultCurrency:    cfg.DefaultCurrency,
		CacheTTL:           cfg.CacheTTL,
		Clock:              clock,
		Metrics:            metrics,
		Logger:             logger.WithComponent(log.ComponentRecords),
	})

	cacheManager := cache.NewManager(clock, logger.Logger.With(log.FieldComponent, log.ComponentCache))
	cacheManager.Register(svc.Cache())
	cacheManager.StartCleanup(time.Minute)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Services:           svc,
		Ready:              backend.Store.Ping,
		Metrics:            metrics,
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	var subscriber *mqtt.Subscriber
	if cfg.MQTTEnabled() {
		subscriber = mqtt.NewSubscriber(mqtt.Options{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
		}, func(ctx context.Context, r services.Reading) error {
			_, err := svc.Monitoring.RecordReading(ctx, r)
			return err
		}, metrics, logger.WithComponent(log.ComponentMQTT))
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if subscriber != nil {
			subscriber.Disconnect()
		}
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	if subscriber != nil {
		go func() {
			// connect retries in the background; the API is usable without it
			if err := subscriber.Connect(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MQTT connect failed", log.FieldError, err, "broker", cfg.MQTTBroker)
			}
		}()
	}

	logger.Info("Starting aviary server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"ledger_publish", backend.Publisher != nil,
		"telemetry", cfg.MQTTEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
