// Package main provides the ticker that drives the scheduler endpoints.
// It fires update-prices every quarter hour and cleanup once a day at 00:00 UTC.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/folio-tracker/internal/config"
	"github.com/folio-tracker/internal/logging"
	"github.com/folio-tracker/internal/service"
)

// tickInterval is the finest snapshot resolution
const tickInterval = 15 * time.Minute

// callTimeout bounds one batch call; chained batches run server side
const callTimeout = 5 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logging
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()

	if cfg.Cron.Secret == "" {
		logger.Fatal("CRON_SECRET must be set")
	}

	client := service.NewCronClient(cfg.Server.PublicURL, cfg.Cron.Secret, callTimeout)

	// Check for one-time run mode: ticker run [update-prices|cleanup]
	if len(os.Args) > 2 && os.Args[1] == "run" {
		path := service.UpdatePricesPath
		if os.Args[2] == "cleanup" {
			path = service.CleanupPath
		}
		if !fire(context.Background(), client, path, logger) {
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runTicker(ctx, client, logger)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down ticker...")
	cancel()
	logger.Info("Ticker stopped")
}

// runTicker fires on every quarter-hour boundary
func runTicker(ctx context.Context, client *service.CronClient, logger *logging.Logger) {
	for {
		now := time.Now().UTC()
		next := nextTick(now)

		logger.WithFields(map[string]interface{}{
			"next_run": next.Format(time.RFC3339),
			"wait":     time.Until(next).String(),
		}).Debug("Waiting for next tick")

		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			fire(ctx, client, service.UpdatePricesPath, logger)
			if isMidnight(next) {
				fire(ctx, client, service.CleanupPath, logger)
			}
		}
	}
}

// nextTick returns the first quarter-hour boundary strictly after t
func nextTick(t time.Time) time.Time {
	return t.Truncate(tickInterval).Add(tickInterval)
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0
}

// fire calls one scheduler endpoint and logs the outcome
func fire(ctx context.Context, client *service.CronClient, path string, logger *logging.Logger) bool {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	start := time.Now()
	body, err := client.Call(callCtx, path, nil)
	fields := map[string]interface{}{
		"path":        path,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		logger.WithFields(fields).WithError(err).Error("Scheduler call failed")
		return false
	}

	fields["response"] = string(body)
	logger.WithFields(fields).Info("Scheduler call complete")
	return true
}
