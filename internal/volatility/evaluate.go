// Package volatility evaluates price movements against configured
// thresholds. Evaluation is pure; persistence and dispatch live elsewhere.
package volatility

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/blackscythe123/track-my-crypto/internal/market"
)

// Kind distinguishes the observation window an alert fired on.
type Kind string

const (
	KindOneHour     Kind = "1h_volatility"
	KindTwentyFourH Kind = "24h_volatility"
)

// Thresholds are percentage magnitudes; both are tested independently.
type Thresholds struct {
	OneHourPct     decimal.Decimal
	TwentyFourHPct decimal.Decimal
}

// NewThresholds builds thresholds from configured float magnitudes.
func NewThresholds(oneHourPct, twentyFourHPct float64) Thresholds {
	return Thresholds{
		OneHourPct:     decimal.NewFromFloat(oneHourPct),
		TwentyFourHPct: decimal.NewFromFloat(twentyFourHPct),
	}
}

// Alert is a candidate volatility alert, not yet gated or persisted.
type Alert struct {
	Kind      Kind
	Change    decimal.Decimal
	Direction string
	Message   string
}

// Evaluate returns zero, one, or two alerts for a coin's current price
// movement. The windows are independent conditions: both may fire in the
// same cycle.
func Evaluate(info market.PriceInfo, thresholds Thresholds) []Alert {
	var alerts []Alert

	if info.Change1h.Abs().GreaterThanOrEqual(thresholds.OneHourPct) {
		alerts = append(alerts, newAlert(KindOneHour, info.Change1h, "1h"))
	}
	if info.Change24h.Abs().GreaterThanOrEqual(thresholds.TwentyFourHPct) {
		alerts = append(alerts, newAlert(KindTwentyFourH, info.Change24h, "24h"))
	}

	return alerts
}

func newAlert(kind Kind, change decimal.Decimal, window string) Alert {
	direction := classifyChange(change)
	label := "UP"
	if direction == "down" {
		label = "DOWN"
	}
	return Alert{
		Kind:      kind,
		Change:    change,
		Direction: direction,
		Message:   fmt.Sprintf("%s %s%% in %s", label, change.StringFixed(2), window),
	}
}

func classifyChange(d decimal.Decimal) string {
	if d.Sign() < 0 {
		return "down"
	}
	return "up"
}
