package market

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceInfo is one coin's current market observation.
type PriceInfo struct {
	Price     decimal.Decimal
	Change1h  decimal.Decimal
	Change24h decimal.Decimal
	Name      string
	Symbol    string
}

// PriceSource resolves coin ids to current prices with partial-failure
// tolerance: a rate-limited upstream yields whatever was collected so far.
type PriceSource interface {
	GetPrices(ctx context.Context, coinIDs []string) (map[string]PriceInfo, error)
}

// CoinSearcher resolves a free-text coin name or symbol to a canonical id.
type CoinSearcher interface {
	SearchCoin(ctx context.Context, query string) (string, error)
}
