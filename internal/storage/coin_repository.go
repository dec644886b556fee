package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/folio-tracker/internal/models"
	"github.com/jackc/pgx/v5"
)

// CoinRepository handles stored coin metadata
type CoinRepository struct {
	db *PostgresDB
}

// NewCoinRepository creates a new coin repository
func NewCoinRepository(db *PostgresDB) *CoinRepository {
	return &CoinRepository{db: db}
}

const coinColumns = `symbol, coin_id, name, logo_url, current_price, price_change_24h, market_cap_rank, updated_at`

func scanCoin(row pgx.Row) (*models.CoinMetadata, error) {
	var c models.CoinMetadata
	err := row.Scan(
		&c.Symbol,
		&c.CoinID,
		&c.Name,
		&c.LogoURL,
		&c.CurrentPrice,
		&c.PriceChange24h,
		&c.MarketCapRank,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetBySymbol returns the coin with the given ticker, or nil when absent
func (r *CoinRepository) GetBySymbol(ctx context.Context, symbol string) (*models.CoinMetadata, error) {
	query := `SELECT ` + coinColumns + ` FROM coin_metadata WHERE symbol = $1`

	coin, err := scanCoin(r.db.Pool().QueryRow(ctx, query, models.NormalizeTicker(symbol)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coin %s: %w", symbol, err)
	}
	return coin, nil
}

// ListAll returns every stored coin ordered by market cap rank
func (r *CoinRepository) ListAll(ctx context.Context) ([]*models.CoinMetadata, error) {
	query := `SELECT ` + coinColumns + ` FROM coin_metadata ORDER BY market_cap_rank NULLS LAST, symbol`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query coins: %w", err)
	}
	defer rows.Close()

	var coins []*models.CoinMetadata
	for rows.Next() {
		coin, err := scanCoin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coin row: %w", err)
		}
		coins = append(coins, coin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coin rows: %w", err)
	}

	return coins, nil
}

// ListKeys returns the stored ticker set and coin-id set
func (r *CoinRepository) ListKeys(ctx context.Context) (symbols map[string]bool, coinIDs map[string]bool, err error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT symbol, coin_id FROM coin_metadata`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query coin keys: %w", err)
	}
	defer rows.Close()

	symbols = make(map[string]bool)
	coinIDs = make(map[string]bool)
	for rows.Next() {
		var symbol, coinID string
		if err := rows.Scan(&symbol, &coinID); err != nil {
			return nil, nil, fmt.Errorf("failed to scan coin keys: %w", err)
		}
		symbols[symbol] = true
		coinIDs[coinID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating coin keys: %w", err)
	}

	return symbols, coinIDs, nil
}

// UpdateMarketData batch-updates price, 24h change and rank of existing coins.
// Rows are matched by coin id; the ticker is never rewritten.
func (r *CoinRepository) UpdateMarketData(ctx context.Context, coins []*models.CoinMetadata) error {
	if len(coins) == 0 {
		return nil
	}

	query := `
		UPDATE coin_metadata
		SET current_price = $2,
			price_change_24h = $3,
			market_cap_rank = $4,
			logo_url = CASE WHEN $5::text <> '' THEN $5::text ELSE logo_url END,
			updated_at = $6
		WHERE coin_id = $1
	`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, c := range coins {
		batch.Queue(query, c.CoinID, c.CurrentPrice, c.PriceChange24h, c.MarketCapRank, c.LogoURL, now)
	}

	if err := r.db.Pool().SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to update coin market data: %w", err)
	}
	return nil
}

// InsertBatch inserts new coins; rows colliding on ticker or coin id are skipped
func (r *CoinRepository) InsertBatch(ctx context.Context, coins []*models.CoinMetadata) error {
	if len(coins) == 0 {
		return nil
	}

	query := `
		INSERT INTO coin_metadata (` + coinColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING
	`

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, c := range coins {
		batch.Queue(query,
			models.NormalizeTicker(c.Symbol),
			c.CoinID,
			c.Name,
			c.LogoURL,
			c.CurrentPrice,
			c.PriceChange24h,
			c.MarketCapRank,
			now,
		)
	}

	if err := r.db.Pool().SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert coins: %w", err)
	}
	return nil
}
