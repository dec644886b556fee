package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/folio-tracker/internal/config"
	"github.com/redis/go-redis/v9"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testPostgresConfig points at the local development database
func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           envOr("POSTGRES_HOST", "localhost"),
		Port:           envOr("POSTGRES_PORT", "5432"),
		Database:       envOr("POSTGRES_DB", "folio_test"),
		User:           envOr("POSTGRES_USER", "folio"),
		Password:       envOr("POSTGRES_PASSWORD", "folio_dev_password"),
		SSLMode:        "disable",
		MaxConnections: 5,
	}
}

// openTestPostgres connects and migrates the test database, skipping the
// test when Postgres is unavailable
func openTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	if err := RunMigrations(cfg.URL()); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return db
}

// createTestPortfolio inserts an active portfolio and removes it with its
// rows when the test ends
func createTestPortfolio(t *testing.T, db *PostgresDB) int64 {
	t.Helper()
	ctx := testContext(t)

	var id int64
	err := db.Pool().QueryRow(ctx,
		`INSERT INTO portfolios (user_id, name) VALUES ('test-user', $1) RETURNING id`,
		t.Name()).Scan(&id)
	if err != nil {
		t.Fatalf("failed to create portfolio: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = db.Pool().Exec(ctx, `DELETE FROM portfolio_history WHERE portfolio_id = $1`, id)
		_, _ = db.Pool().Exec(ctx, `DELETE FROM transactions WHERE portfolio_id = $1 OR target_portfolio_id = $1`, id)
		_, _ = db.Pool().Exec(ctx, `DELETE FROM portfolio_balances WHERE portfolio_id = $1`, id)
		_, _ = db.Pool().Exec(ctx, `DELETE FROM portfolios WHERE id = $1`, id)
	})
	return id
}

// setupMiniRedis starts an in-memory Redis and returns a cache bound to it
func setupMiniRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	return NewRedisCacheFromClient(client), mr
}
