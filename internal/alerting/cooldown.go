package alerting

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/blackscythe123/track-my-crypto/internal/storage"
)

// DefaultCooldown is the minimum gap between two alerts for one
// (user, coin) pair.
const DefaultCooldown = 6 * time.Hour

// Gate decides whether a new alert may fire for a (user, coin) pair. The
// decision is a lazy check against the most recent history record rather
// than an expiring timer. The cooldown is asset-scoped: a 1h and a 24h
// alert for the same coin share one clock.
type Gate struct {
	history storage.AlertStore
	window  time.Duration
}

// NewGate constructs a cooldown gate over the alert history.
func NewGate(history storage.AlertStore, window time.Duration) *Gate {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &Gate{history: history, window: window}
}

// MayNotify permits a notification iff no prior alert exists for the pair
// or the most recent one is older than the cooldown window.
func (g *Gate) MayNotify(ctx context.Context, userID int64, coinID string, now time.Time) (bool, error) {
	last, err := g.history.LatestAlert(ctx, userID, coinID)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return now.Sub(last.CreatedAt) >= g.window, nil
}

// PairLockKey derives a stable advisory-lock key for a (user, coin) pair.
// Holding this key across the gate check and the history append keeps the
// read-then-append atomic with respect to concurrent cycles.
func PairLockKey(userID int64, coinID string) int64 {
	h := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(userID >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(coinID))
	return int64(h.Sum64())
}
