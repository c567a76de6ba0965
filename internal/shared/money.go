package shared

import "math"

// Round2 rounds a monetary amount to cents using half-up rounding.
// Ledger balances only ever move in cent increments, so every aggregation
// step rounds before the next one consumes it.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
