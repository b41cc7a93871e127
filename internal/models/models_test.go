package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(OrderStatusPending, OrderStatusPaid))
	assert.True(t, CanTransition(OrderStatusPending, OrderStatusUnpaid))
	assert.True(t, CanTransition(OrderStatusPending, OrderStatusCancelled))
	assert.True(t, CanTransition(OrderStatusUnpaid, OrderStatusPaid))
	assert.True(t, CanTransition(OrderStatusUnpaid, OrderStatusCancelled))

	// paid and cancelled are terminal
	assert.False(t, CanTransition(OrderStatusPaid, OrderStatusCancelled))
	assert.False(t, CanTransition(OrderStatusPaid, OrderStatusUnpaid))
	assert.False(t, CanTransition(OrderStatusCancelled, OrderStatusPaid))
	assert.False(t, CanTransition(OrderStatusCancelled, OrderStatusPending))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, OrderStatusPending.Valid())
	assert.True(t, OrderStatusPaid.Valid())
	assert.True(t, OrderStatusUnpaid.Valid())
	assert.True(t, OrderStatusCancelled.Valid())
	assert.False(t, OrderStatus("refunded").Valid())
}

func TestOrderExpired(t *testing.T) {
	deadline := time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)
	order := &Order{ExpireAt: deadline.Unix()}

	assert.False(t, order.Expired(deadline.Add(-time.Second)))
	assert.False(t, order.Expired(deadline))
	assert.True(t, order.Expired(deadline.Add(time.Second)))
}

func TestOrderMetadata(t *testing.T) {
	order := &Order{
		ID:             "ord-1",
		ResellerAmount: 15750,
		Items: []OrderLineItem{
			{ItemName: "chair", Quantity: 2},
			{ItemName: "table", Quantity: 1},
		},
	}

	meta := order.Metadata()

	assert.Len(t, meta.CustomFields, 3)
	assert.Equal(t, "ord-1", meta.CustomFields[0].Value)
	assert.Equal(t, "2x chair,1x table", meta.CustomFields[1].Value)
	assert.Equal(t, int64(15750), meta.CustomFields[2].Value)
}

func TestInsufficientStockError(t *testing.T) {
	err := &InsufficientStockError{ItemID: "item-1", ItemName: "chair", Requested: 3, Available: 1}
	assert.Equal(t, "item chair is remaining 1, requested 3", err.Error())
}
