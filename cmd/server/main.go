// Package main provides the API server entry point for the portfolio tracker.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/folio-tracker/internal/adapter"
	"github.com/folio-tracker/internal/api"
	"github.com/folio-tracker/internal/config"
	"github.com/folio-tracker/internal/logging"
	"github.com/folio-tracker/internal/ratelimit"
	"github.com/folio-tracker/internal/retry"
	"github.com/folio-tracker/internal/service"
	"github.com/folio-tracker/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	logger.WithFields(map[string]interface{}{
		"level":           cfg.Logging.Level,
		"format":          cfg.Logging.Format,
		"history_backend": cfg.History.Backend,
	}).Info("Structured logging initialized")

	if cfg.Cron.Secret == "" {
		logger.Warn("CRON_SECRET is not set; scheduler endpoints will reject every call")
	}

	ctx := context.Background()
	backoff := retry.DefaultConfig()
	checks := make(map[string]api.HealthCheck)

	// Connect to Postgres
	postgres, err := retry.Connect(ctx, backoff, "postgres", func() (*storage.PostgresDB, error) {
		return storage.NewPostgresDB(&cfg.Database.Postgres)
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()
	checks["postgres"] = postgres.Ping

	// Select the history backend
	var historyRepo service.HistoryRepository = storage.NewHistoryRepository(postgres)
	if cfg.History.Backend == config.HistoryBackendClickHouse {
		clickhouse, err := retry.Connect(ctx, backoff, "clickhouse", func() (*storage.ClickHouseDB, error) {
			return storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer func() { _ = clickhouse.Close() }()

		historyRepo = storage.NewClickHouseHistoryRepository(clickhouse)
		checks["clickhouse"] = clickhouse.Ping
	}

	provider := adapter.NewCoinGeckoClient(&cfg.PriceProvider)

	// Connect to Redis; the coin cache and the shared provider budget are optional
	var coinCache service.CoinCache
	if cfg.Database.Redis.Enabled {
		redis, err := retry.Connect(ctx, backoff, "redis", func() (*storage.RedisCache, error) {
			return storage.NewRedisCache(&cfg.Database.Redis)
		})
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without coin cache")
		} else {
			defer func() { _ = redis.Close() }()
			coinCache = storage.NewCoinCache(redis, cfg.Cache.TTL)
			checks["redis"] = redis.Ping

			if cfg.PriceProvider.CallsPerMinute > 0 {
				budget, err := ratelimit.NewCallBudget(&ratelimit.CallBudgetConfig{
					Redis: redis.Client(),
					Name:  adapter.ProviderName,
					Limit: cfg.PriceProvider.CallsPerMinute,
				})
				if err != nil {
					logger.WithError(err).Fatal("Invalid provider budget")
				}
				provider.SetBudget(budget)
			}
		}
	}

	logger.Info("Database connections established")

	// Initialize repositories
	portfolioRepo := storage.NewPortfolioRepository(postgres)
	balanceRepo := storage.NewBalanceRepository(postgres)
	coinRepo := storage.NewCoinRepository(postgres)
	txRepo := storage.NewTransactionRepository(postgres)

	loc, err := time.LoadLocation(cfg.Chart.Timezone)
	if err != nil {
		logger.WithError(err).Fatal("Invalid chart timezone")
	}

	// Initialize services
	monitor := service.NewPerformanceMonitor(time.Duration(cfg.Cron.TargetExecutionMs) * time.Millisecond)
	prices := service.NewPriceService(coinRepo, coinCache, provider, monitor)
	valuation := service.NewValuationService(balanceRepo, prices)
	history := service.NewHistoryService(historyRepo)
	demo := service.NewDemoData()
	cronClient := service.NewCronClient(cfg.Server.PublicURL, cfg.Cron.Secret, cfg.Cron.ChainTimeout)
	scheduler := service.NewSchedulerService(&cfg.Cron, portfolioRepo, prices, valuation, history, cronClient, monitor)

	logger.Info("Services initialized")

	server := api.NewServer(&cfg.Server, api.Dependencies{
		Scheduler:    scheduler,
		History:      history,
		Balances:     service.NewBalanceService(balanceRepo, prices),
		Valuation:    valuation,
		Coins:        prices,
		Ledger:       service.NewLedgerService(txRepo, portfolioRepo),
		Charts:       service.NewChartService(history, demo, loc),
		Portfolios:   portfolioRepo,
		Demo:         demo,
		Monitor:      monitor,
		BreakerStats: provider.BreakerStats,
		Checks:       checks,
	})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// Let in-flight batch chains finish handing off
	if err := scheduler.WaitForChains(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Pending batch chains abandoned")
	}

	logger.Info("Server exited")
}
