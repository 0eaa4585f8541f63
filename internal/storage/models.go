package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a chat-platform identity with an optional delivery channel.
type User struct {
	ID         int64
	CliqUserID string
	ChannelID  *string
}

// HasChannel reports whether alerts can be delivered to this user.
func (u User) HasChannel() bool {
	return u.ChannelID != nil && *u.ChannelID != ""
}

// Wallet is a linked on-chain address owned by one user.
type Wallet struct {
	ID           int64
	UserID       int64
	Address      string
	Chain        string
	Name         *string
	LastSyncedAt time.Time
}

// Holding is the quantity of one coin a user holds on one chain.
// At most one row exists per (user, coin, chain).
type Holding struct {
	ID     int64
	UserID int64
	CoinID string
	Chain  string
	Amount decimal.Decimal
}

// PriceSnapshot is the latest cached market observation for one coin.
type PriceSnapshot struct {
	CoinID    string
	Price     decimal.Decimal
	Change1h  decimal.Decimal
	Change24h decimal.Decimal
	UpdatedAt time.Time
}

// AlertRecord is an append-only record of a delivered alert decision.
type AlertRecord struct {
	ID        int64
	UserID    int64
	CoinID    string
	ChangePct decimal.Decimal
	Message   string
	CreatedAt time.Time
}
