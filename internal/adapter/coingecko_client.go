// Package adapter provides clients for external market data providers.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/folio-tracker/internal/circuitbreaker"
	"github.com/folio-tracker/internal/config"
	"github.com/folio-tracker/internal/logging"
	"github.com/folio-tracker/internal/models"
	"golang.org/x/time/rate"
)

// ProviderName identifies the market data provider in logs and errors
const ProviderName = "coingecko"

// CoinGeckoClient pages through the provider's market listing
type CoinGeckoClient struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *circuitbreaker.CircuitBreaker
	budget   Budget
	pageSize int
	pages    int
}

// Budget is a call quota shared with other instances
type Budget interface {
	Wait(ctx context.Context, n int) error
}

// MarketCoin is one row of the /coins/markets listing
type MarketCoin struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Image                    string   `json:"image"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCapRank            *int     `json:"market_cap_rank"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
}

// ToMetadata converts a listing row; missing numbers become zero
func (m *MarketCoin) ToMetadata() *models.CoinMetadata {
	coin := &models.CoinMetadata{
		Symbol:        models.NormalizeTicker(m.Symbol),
		CoinID:        m.ID,
		Name:          m.Name,
		LogoURL:       m.Image,
		MarketCapRank: m.MarketCapRank,
	}
	if m.CurrentPrice != nil {
		coin.CurrentPrice = *m.CurrentPrice
	}
	if m.PriceChangePercentage24h != nil {
		coin.PriceChange24h = *m.PriceChangePercentage24h
	}
	return coin
}

// StatusError is returned for non-2xx provider responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// NewCoinGeckoClient creates a new market data client
func NewCoinGeckoClient(cfg *config.PriceProviderConfig) *CoinGeckoClient {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 0.5
	}

	return &CoinGeckoClient{
		apiKey:   cfg.APIKey,
		baseURL:  cfg.BaseURL,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		breaker:  circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(ProviderName)),
		pageSize: cfg.PageSize,
		pages:    cfg.Pages,
	}
}

// SetBudget makes every page request draw from a shared call budget
func (c *CoinGeckoClient) SetBudget(b Budget) {
	c.budget = b
}

// FetchMarkets returns the full market listing ordered by market cap.
// Paging stops at the configured page count or the first short page.
// Any failed page fails the whole fetch.
func (c *CoinGeckoClient) FetchMarkets(ctx context.Context) ([]*models.CoinMetadata, error) {
	logger := logging.FromContext(ctx).WithField("provider", ProviderName)
	start := time.Now()

	var coins []*models.CoinMetadata
	for page := 1; page <= c.pages; page++ {
		rows, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch market page %d: %w", page, err)
		}

		for i := range rows {
			if rows[i].ID == "" || rows[i].Symbol == "" {
				continue
			}
			coins = append(coins, rows[i].ToMetadata())
		}

		if len(rows) < c.pageSize {
			break
		}
	}

	logger.WithFields(map[string]interface{}{
		"coins":    len(coins),
		"duration": time.Since(start).String(),
	}).Debug("Fetched market listing")

	return coins, nil
}

// fetchPage requests one page through the limiter and the circuit breaker
func (c *CoinGeckoClient) fetchPage(ctx context.Context, page int) ([]MarketCoin, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if c.budget != nil {
		if err := c.budget.Wait(ctx, 1); err != nil {
			return nil, fmt.Errorf("provider budget: %w", err)
		}
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(c.pageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("sparkline", "false")
	endpoint := c.baseURL + "/coins/markets?" + params.Encode()

	var rows []MarketCoin
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		body, err := c.doRequest(ctx, endpoint)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *CoinGeckoClient) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	return body, nil
}

// BreakerStats reports the provider circuit breaker state
func (c *CoinGeckoClient) BreakerStats() *circuitbreaker.Stats {
	return c.breaker.GetStats()
}
