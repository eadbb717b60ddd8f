package plan

import "math"

// epsilon is the gap between 1 and the next representable float64 (2^-52)
const epsilon = 2.220446049250313e-16

// Tolerance is the largest accepted gap between the installment sum and the plan total
const Tolerance = 0.01

// Round2 rounds x to two decimals, nudging values that sit on a .xx5 boundary upward
// before rounding. Halves always round toward +Inf, negative values included.
func Round2(x float64) float64 {
	return roundHalfUp((x+epsilon)*100) / 100
}

func roundHalfUp(x float64) float64 {
	f := math.Floor(x)
	if x-f >= 0.5 {
		f++
	}
	return f
}

func isPositive(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0) && x > 0
}
