package calculator

import (
	"math"

	"github.com/shopspring/decimal"
)

// FibRatio is the retracement ratio applied between a swing low and high.
const FibRatio = 0.618

var fibRatio = decimal.NewFromFloat(FibRatio)

// Round2 rounds v to 2 decimal places, half away from zero, on the shortest
// decimal representation of v (2.675 rounds to 2.68). Both adjustment paths
// and the market cap figures go through this function.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Retracement returns low + (high-low)*0.618 rounded to 2 decimals.
func Retracement(low, high float64) float64 {
	lo := decimal.NewFromFloat(low)
	hi := decimal.NewFromFloat(high)
	f, _ := lo.Add(hi.Sub(lo).Mul(fibRatio)).Round(2).Float64()
	return f
}

// Yi converts yuan into hundreds of millions of yuan, rounded to 2 decimals.
func Yi(yuan float64) float64 {
	if math.IsNaN(yuan) || math.IsInf(yuan, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(yuan).Shift(-8).Round(2).Float64()
	return f
}
