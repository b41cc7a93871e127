package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"marketplace-service/internal/models"
)

func TestUnitPriceKobo(t *testing.T) {
	assert.Equal(t, int64(2500), UnitPriceKobo(decimal.NewFromFloat(25.00)))
	assert.Equal(t, int64(150050), UnitPriceKobo(decimal.NewFromFloat(1500.50)))

	// Sub-kobo precision truncates toward zero.
	assert.Equal(t, int64(2500), UnitPriceKobo(decimal.RequireFromString("25.009")))
	assert.Equal(t, int64(99), UnitPriceKobo(decimal.RequireFromString("0.999")))
}

func TestLineAmounts(t *testing.T) {
	unitPrice := int64(2500) // 25.00 in minor units
	margin := int64(250)

	assert.Equal(t, int64(7500), LineBaseAmount(unitPrice, 3))
	assert.Equal(t, int64(8250), LineTotalAmount(unitPrice, margin, 3))
}

func TestOrderAmounts(t *testing.T) {
	lines := []models.OrderLineItem{
		{Quantity: 1, Margin: 250, Amount: 2500, TotalAmount: 2750},
		{Quantity: 2, Margin: 250, Amount: 3000, TotalAmount: 3500},
	}

	supplier, reseller := OrderAmounts(lines)

	assert.Equal(t, int64(5500), supplier)
	assert.Equal(t, int64(6250), reseller)
	assert.Greater(t, reseller, supplier)
}
