package models

import (
	"strings"
	"time"
)

// CoinMetadata is market information for a single coin
type CoinMetadata struct {
	Symbol         string    `json:"symbol" db:"symbol"`
	CoinID         string    `json:"coin_id" db:"coin_id"`
	Name           string    `json:"name" db:"name"`
	LogoURL        string    `json:"logo_url" db:"logo_url"`
	CurrentPrice   float64   `json:"current_price" db:"current_price"`
	PriceChange24h float64   `json:"price_change_24h" db:"price_change_24h"`
	MarketCapRank  *int      `json:"market_cap_rank,omitempty" db:"market_cap_rank"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Stablecoin tickers are priced at exactly 1 and never stored.
const (
	TickerUSDT = "USDT"
	TickerUSDC = "USDC"
)

// Stablecoins returns the synthetic stablecoin records, USDT first.
func Stablecoins() []*CoinMetadata {
	return []*CoinMetadata{
		{
			Symbol:       TickerUSDT,
			CoinID:       "tether",
			Name:         "Tether",
			LogoURL:      "https://assets.coingecko.com/coins/images/325/large/Tether.png",
			CurrentPrice: 1,
		},
		{
			Symbol:       TickerUSDC,
			CoinID:       "usd-coin",
			Name:         "USD Coin",
			LogoURL:      "https://assets.coingecko.com/coins/images/6319/large/usdc.png",
			CurrentPrice: 1,
		},
	}
}

// IsStablecoin reports whether ticker is one of the fixed-price stablecoins.
func IsStablecoin(ticker string) bool {
	switch strings.ToUpper(ticker) {
	case TickerUSDT, TickerUSDC:
		return true
	default:
		return false
	}
}

// NormalizeTicker upper-cases and trims a ticker.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
