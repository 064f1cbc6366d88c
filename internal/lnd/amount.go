package lnd

import (
	"fmt"
	"math"

	"github.com/lightningmodel/lnchat/internal/config"
)

// SatsPerBTC is the satoshi denomination.
const SatsPerBTC = 100_000_000

// CalculatePaymentAmount prices limit units of plan in satoshis, rounded and
// never below 1 sat.
func CalculatePaymentAmount(plan config.PlanKind, limit int64, rates config.Rates) (int64, error) {
	var rate float64
	switch plan {
	case config.PlanToken:
		rate = rates.TokenBTC
	case config.PlanRequest:
		rate = rates.RequestBTC
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidPlanKind, plan)
	}

	sats := BTCToSats(float64(limit) * rate)
	return max(sats, 1), nil
}

// BTCToSats converts and rounds to the nearest satoshi.
func BTCToSats(btc float64) int64 {
	return int64(math.Round(btc * SatsPerBTC))
}
