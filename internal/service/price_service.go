package service

import (
	"context"
	"time"

	"github.com/folio-tracker/internal/adapter"
	apperrors "github.com/folio-tracker/internal/errors"
	"github.com/folio-tracker/internal/logging"
	"github.com/folio-tracker/internal/models"
)

// RefreshResult counts the coins touched by one market refresh
type RefreshResult struct {
	Fetched int `json:"fetched"`
	Updated int `json:"updated"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// PriceService owns coin metadata: the provider refresh and price lookups
type PriceService struct {
	coins    CoinRepository
	cache    CoinCache
	provider MarketDataProvider
	monitor  *PerformanceMonitor
	now      func() time.Time
}

// NewPriceService creates a new price service. cache and monitor may be nil.
func NewPriceService(coins CoinRepository, cache CoinCache, provider MarketDataProvider, monitor *PerformanceMonitor) *PriceService {
	return &PriceService{
		coins:    coins,
		cache:    cache,
		provider: provider,
		monitor:  monitor,
		now:      time.Now,
	}
}

// RefreshAll pulls the full market listing and writes it to the store.
// Coins already stored under their coin id are updated in place. Unknown coin
// ids are inserted unless their ticker is already taken, in which case the
// listing entry is skipped. Stablecoins are synthetic and never stored.
func (s *PriceService) RefreshAll(ctx context.Context) (*RefreshResult, error) {
	fetched, err := s.provider.FetchMarkets(ctx)
	if err != nil {
		return nil, apperrors.NewProviderError(adapter.ProviderName, err)
	}

	symbols, coinIDs, err := s.coins.ListKeys(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list coin keys", err)
	}

	now := s.now().UTC()
	result := &RefreshResult{Fetched: len(fetched)}
	var existing, added []*models.CoinMetadata
	seenIDs := make(map[string]bool, len(fetched))
	claimed := make(map[string]bool)

	// the listing is ordered by market cap, so the largest coin claims a ticker
	for _, coin := range fetched {
		symbol := models.NormalizeTicker(coin.Symbol)
		if symbol == "" || coin.CoinID == "" || models.IsStablecoin(symbol) || seenIDs[coin.CoinID] {
			result.Skipped++
			continue
		}
		seenIDs[coin.CoinID] = true
		coin.Symbol = symbol
		coin.UpdatedAt = now

		if coinIDs[coin.CoinID] {
			existing = append(existing, coin)
			continue
		}
		if symbols[symbol] || claimed[symbol] {
			result.Skipped++
			continue
		}
		claimed[symbol] = true
		added = append(added, coin)
	}

	if len(existing) > 0 {
		if err := s.coins.UpdateMarketData(ctx, existing); err != nil {
			return nil, apperrors.NewDatabaseError("update coin market data", err)
		}
	}
	if len(added) > 0 {
		if err := s.coins.InsertBatch(ctx, added); err != nil {
			return nil, apperrors.NewDatabaseError("insert coins", err)
		}
	}
	result.Updated = len(existing)
	result.Added = len(added)

	s.rewriteCache(ctx)

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"fetched": result.Fetched,
		"updated": result.Updated,
		"added":   result.Added,
		"skipped": result.Skipped,
	}).Info("coin metadata refreshed")

	return result, nil
}

// rewriteCache replaces the cached coins with the freshly stored set.
// Cache failures never fail a refresh.
func (s *PriceService) rewriteCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	logger := logging.FromContext(ctx)

	coins, err := s.coins.ListAll(ctx)
	if err == nil {
		err = s.cache.PutAll(ctx, coins)
	}
	if err != nil {
		logger.WithError(err).Warn("failed to rewrite coin cache, invalidating")
		if err := s.cache.InvalidateAll(ctx); err != nil {
			logger.WithError(err).Warn("failed to invalidate coin cache")
		}
	}
}

// lookup reads one stored coin through the cache
func (s *PriceService) lookup(ctx context.Context, ticker string) (*models.CoinMetadata, error) {
	start := time.Now()

	if s.cache != nil {
		coin, err := s.cache.Get(ctx, ticker)
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithField("ticker", ticker).Debug("coin cache read failed")
		}
		if coin != nil {
			s.monitor.RecordLookup(time.Since(start), true)
			return coin, nil
		}
	}

	coin, err := s.coins.GetBySymbol(ctx, ticker)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get coin", err)
	}
	s.monitor.RecordLookup(time.Since(start), false)

	if coin != nil && s.cache != nil {
		if err := s.cache.Put(ctx, coin); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("ticker", ticker).Debug("coin cache write failed")
		}
	}
	return coin, nil
}

// GetPrice returns the current USD price of ticker. Stablecoins are 1 without
// a lookup; an unknown coin is 0, not an error.
func (s *PriceService) GetPrice(ctx context.Context, ticker string) (float64, error) {
	ticker = models.NormalizeTicker(ticker)
	if models.IsStablecoin(ticker) {
		return 1, nil
	}

	coin, err := s.lookup(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if coin == nil {
		return 0, nil
	}
	return coin.CurrentPrice, nil
}

// GetMetadata returns one coin, falling back to the stablecoin record.
// It returns nil when neither exists.
func (s *PriceService) GetMetadata(ctx context.Context, ticker string) (*models.CoinMetadata, error) {
	ticker = models.NormalizeTicker(ticker)

	coin, err := s.lookup(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if coin != nil {
		if models.IsStablecoin(ticker) {
			coin.CurrentPrice = 1
		}
		return coin, nil
	}

	for _, stable := range models.Stablecoins() {
		if stable.Symbol == ticker {
			return stable, nil
		}
	}
	return nil, nil
}

// ListMetadata returns stablecoins followed by every stored coin.
// Stablecoins are seeded first and win ticker collisions.
func (s *PriceService) ListMetadata(ctx context.Context) ([]*models.CoinMetadata, error) {
	var stored []*models.CoinMetadata
	if s.cache != nil {
		cached, err := s.cache.GetAll(ctx)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Debug("coin list cache read failed")
		}
		stored = cached
	}

	if stored == nil {
		coins, err := s.coins.ListAll(ctx)
		if err != nil {
			return nil, apperrors.NewDatabaseError("list coins", err)
		}
		stored = coins
		if s.cache != nil && len(coins) > 0 {
			if err := s.cache.PutAll(ctx, coins); err != nil {
				logging.FromContext(ctx).WithError(err).Debug("coin list cache write failed")
			}
		}
	}

	stables := models.Stablecoins()
	out := make([]*models.CoinMetadata, 0, len(stables)+len(stored))
	seen := make(map[string]bool, len(stables)+len(stored))
	for _, coin := range append(stables, stored...) {
		symbol := models.NormalizeTicker(coin.Symbol)
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		out = append(out, coin)
	}
	return out, nil
}
