package service

import (
	"github.com/shopspring/decimal"

	"marketplace-service/internal/models"
)

// koboPerNaira converts catalog prices to minor units.
var koboPerNaira = decimal.NewFromInt(100)

// UnitPriceKobo converts a catalog price to integer kobo, flooring toward
// the unit. This is the single rounding point: every stored amount is
// derived from the result.
func UnitPriceKobo(price decimal.Decimal) int64 {
	return price.Mul(koboPerNaira).IntPart()
}

// LineBaseAmount is the supplier-side amount of a line: quantity times the
// unit price, before any margin.
func LineBaseAmount(unitPriceKobo int64, quantity int) int64 {
	return int64(quantity) * unitPriceKobo
}

// LineTotalAmount is the buyer-facing amount of a line: quantity times the
// unit price plus the reseller's per-unit margin.
func LineTotalAmount(unitPriceKobo, margin int64, quantity int) int64 {
	return int64(quantity) * (unitPriceKobo + margin)
}

// OrderAmounts sums the finalized lines into the order-level amounts:
// supplier_amount over base amounts, reseller_amount over total amounts.
func OrderAmounts(lines []models.OrderLineItem) (supplierAmount, resellerAmount int64) {
	for _, line := range lines {
		supplierAmount += line.Amount
		resellerAmount += line.TotalAmount
	}
	return supplierAmount, resellerAmount
}
