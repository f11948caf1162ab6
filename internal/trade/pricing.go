package trade

import "math"

// Discount returns the commission discount in percent earned by reputation:
// one percent per hundred reputation, capped at 100.
func Discount(reputation int) float64 {
	d := float64(reputation) / 100
	return math.Max(0, math.Min(100, d))
}

// Effective applies the reputation discount to a commission percentage.
func Effective(commissionPct float64, reputation int) float64 {
	return commissionPct * (1 - Discount(reputation)/100)
}

// BuyPrice is what the player pays per unit.
func BuyPrice(base int64, commissionPct float64) int64 {
	return int64(math.Round(float64(base) * (1 + commissionPct/100)))
}

// SellPrice is what the trader pays per unit. It never goes below zero.
func SellPrice(base int64, commissionPct float64) int64 {
	p := int64(math.Round(float64(base) * (1 - commissionPct/100)))
	if p < 0 {
		return 0
	}
	return p
}
