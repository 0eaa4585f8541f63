package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/blackscythe123/track-my-crypto/internal/storage"
)

// Position is one holding valued at the latest snapshot.
type Position struct {
	CoinID string
	Chain  string
	Amount decimal.Decimal
	Price  decimal.Decimal
	Value  decimal.Decimal
}

// Portfolio is a user's holdings valued at the cached snapshots.
type Portfolio struct {
	UserID    int64
	Positions []Position
	Total     decimal.Decimal
}

// Portfolio values a user's current holdings. Coins without a cached
// snapshot are listed with a zero price rather than dropped.
func (s *Service) Portfolio(ctx context.Context, userID int64) (Portfolio, error) {
	holdings, err := s.stores.Holdings.ListHoldingsByUser(ctx, userID)
	if err != nil {
		return Portfolio{}, fmt.Errorf("list holdings: %w", err)
	}

	result := Portfolio{UserID: userID, Positions: make([]Position, 0, len(holdings))}
	if len(holdings) == 0 {
		return result, nil
	}

	coinIDs := lo.Uniq(lo.Map(holdings, func(h storage.Holding, _ int) string { return h.CoinID }))
	snapshots, err := s.stores.Snapshots.ListPriceSnapshots(ctx, coinIDs)
	if err != nil {
		return Portfolio{}, fmt.Errorf("list snapshots: %w", err)
	}
	byCoin := lo.KeyBy(snapshots, func(p storage.PriceSnapshot) string { return p.CoinID })

	for _, holding := range holdings {
		position := Position{
			CoinID: holding.CoinID,
			Chain:  holding.Chain,
			Amount: holding.Amount,
		}
		if snapshot, ok := byCoin[holding.CoinID]; ok {
			position.Price = snapshot.Price
			position.Value = holding.Amount.Mul(snapshot.Price)
		}
		result.Positions = append(result.Positions, position)
		result.Total = result.Total.Add(position.Value)
	}

	return result, nil
}
