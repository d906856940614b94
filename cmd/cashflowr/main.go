package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/XabSaRon/cashflowr/internal/amqp"
	"github.com/XabSaRon/cashflowr/internal/charts"
	"github.com/XabSaRon/cashflowr/internal/config"
	apphttp "github.com/XabSaRon/cashflowr/internal/http"
	"github.com/XabSaRon/cashflowr/internal/log"
	"github.com/XabSaRon/cashflowr/internal/services"
	"github.com/XabSaRon/cashflowr/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			log.FieldError, err.Error(),
			"path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	// The AMQP publisher is optional; without it income writes stay local and
	// the worker backfill picks them up from the pending queue.
	var publisher services.SyncPublisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		publisher = client
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	incomeService := services.NewIncomeService(repo, publisher, logger)
	dashboardService := services.NewDashboardService(repo, logger, cfg.DashboardMonths)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:                 ":" + cfg.Port,
		CacheSize:            cfg.CacheSize,
		CacheTTL:             cfg.CacheTTL,
		CacheCleanupInterval: cfg.CacheCleanupInterval,
	}, incomeService, dashboardService, charts.NewRenderer(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if err := incomeService.Close(); err != nil {
			logger.Error("Service shutdown error", log.FieldError, err.Error())
		}
		cancel()
	}()

	logger.Info("Starting cashflowr server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
