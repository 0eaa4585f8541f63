package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackscythe123/track-my-crypto/internal/storage"
)

func TestPortfolioValuesHoldings(t *testing.T) {
	h := newHarness()
	h.holdings.holdings[holdingKey{10, "bitcoin", "btc"}] = storage.Holding{
		UserID: 10, CoinID: "bitcoin", Chain: "btc", Amount: decimal.NewFromFloat(0.5),
	}
	h.holdings.holdings[holdingKey{10, "ethereum", "eth"}] = storage.Holding{
		UserID: 10, CoinID: "ethereum", Chain: "eth", Amount: decimal.NewFromInt(2),
	}
	h.snapshots.snapshots["bitcoin"] = storage.PriceSnapshot{
		CoinID: "bitcoin", Price: decimal.NewFromInt(5000000),
	}
	h.snapshots.snapshots["ethereum"] = storage.PriceSnapshot{
		CoinID: "ethereum", Price: decimal.NewFromInt(250000),
	}

	portfolio, err := h.svc.Portfolio(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, int64(10), portfolio.UserID)
	require.Len(t, portfolio.Positions, 2)
	assert.True(t, portfolio.Total.Equal(decimal.NewFromInt(3000000)),
		"expected 0.5*5000000 + 2*250000, got %s", portfolio.Total)
}

func TestPortfolioKeepsUnpricedCoins(t *testing.T) {
	h := newHarness()
	h.holdings.holdings[holdingKey{10, "obscure-coin", "eth"}] = storage.Holding{
		UserID: 10, CoinID: "obscure-coin", Chain: "eth", Amount: decimal.NewFromInt(100),
	}

	portfolio, err := h.svc.Portfolio(context.Background(), 10)
	require.NoError(t, err)

	require.Len(t, portfolio.Positions, 1)
	assert.True(t, portfolio.Positions[0].Value.IsZero())
	assert.True(t, portfolio.Total.IsZero())
}

func TestPortfolioEmpty(t *testing.T) {
	h := newHarness()

	portfolio, err := h.svc.Portfolio(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, portfolio.Positions)
	assert.True(t, portfolio.Total.IsZero())
}
