// Package planner turns consumption forecasts, stock and offers into
// shopping list entries.
package planner

import (
	"math"

	"github.com/pantrylens/backend/internal/domain"
)

const (
	minStockDays = 2.0
	baseExponent = 1.5
	minExponent  = 1.1
)

// BaselineStockDays derives the horizon from the average shelf life,
// clamped to [2, 2*maxStockDays]. Unknown or negative shelf life counts as
// long lived.
func BaselineStockDays(shelfLife *float64, maxStockDays float64) float64 {
	limit := maxStockDays * 2
	if shelfLife == nil || *shelfLife < 0 {
		return limit
	}
	return math.Min(math.Max(minStockDays, math.RoundToEven(*shelfLife)), limit)
}

// Exponent returns the power-law exponent for the given fractional
// savings. Positive savings lower it towards 1.1.
func Exponent(savings *float64) float64 {
	b := baseExponent
	if savings != nil && *savings > 0 {
		b = math.Max(b-*savings, minExponent)
	}
	return b
}

// StockDays saturates the baseline horizon below maxStockDays:
// max * tanh(baseline^(1/b) / max).
func StockDays(baseline, maxStockDays float64, savings *float64) float64 {
	a := maxStockDays
	b := Exponent(savings)
	return a * math.Tanh((1/a)*math.Pow(baseline, 1/b))
}

// Savings is the fractional saving of offerPrice against the average
// price scaled by factor into the price unit. Nil when either price is
// unknown.
func Savings(offerPrice, averagePrice *float64, factor float64) *float64 {
	if offerPrice == nil || averagePrice == nil {
		return nil
	}
	average := *averagePrice * factor
	if average == 0 {
		return nil
	}
	s := 1 - *offerPrice/average
	return &s
}

// Input is everything Decide needs about one product. Amounts are in the
// stock unit; PurchaseFactor converts one purchase unit into stock units.
type Input struct {
	ProductID      int
	StockAmount    float64
	MinUnitSize    float64
	Forecast       float64
	PurchaseUnit   domain.Unit
	PurchaseFactor float64
}

// Decide returns the purchase for in, or false when the forecast does not
// exceed stock by more than half a minimum unit
func Decide(in Input) (domain.PurchaseDecision, bool) {
	amount := in.Forecast - in.StockAmount
	if amount <= 0 || amount <= in.MinUnitSize/2 {
		return domain.PurchaseDecision{}, false
	}
	if in.PurchaseFactor > 0 {
		amount /= in.PurchaseFactor
	}
	return domain.PurchaseDecision{
		ProductID:   in.ProductID,
		AmountToBuy: amount,
		Unit:        in.PurchaseUnit,
	}, true
}
