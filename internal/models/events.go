package models

import "time"

// Event types
const (
	EventTypeOrderCreated    = "ORDER_CREATED"
	EventTypeOrderCancelled  = "ORDER_CANCELLED"
	EventTypeOrderPaid       = "ORDER_PAID"
	EventTypePaymentFailed   = "PAYMENT_FAILED"
	EventTypePaymentCallback = "PAYMENT_CALLBACK"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order and its reservations are in place
type OrderCreatedEvent struct {
	BaseEvent
	OrderID        string          `json:"order_id"`
	SupplierID     string          `json:"supplier_id"`
	ResellerID     string          `json:"reseller_id"`
	ResellerAmount int64           `json:"reseller_amount"`
	SupplierAmount int64           `json:"supplier_amount"`
	Items          []OrderLineData `json:"items"`
}

// OrderCancelledEvent published when an order is cancelled and stock restored
type OrderCancelledEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderPaidEvent published when the gateway confirms settlement
type OrderPaidEvent struct {
	BaseEvent
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

// PaymentFailedEvent published when the gateway reports a failed charge
type PaymentFailedEvent struct {
	BaseEvent
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Reference string `json:"reference"`
}

// PaymentCallbackEvent carries a gateway reference to be reconciled.
// Delivered by webhook relays; duplicates are expected and harmless.
type PaymentCallbackEvent struct {
	BaseEvent
	Reference string `json:"reference"`
}

// OrderLineData represents line data in events
type OrderLineData struct {
	ItemID      string `json:"item_id"`
	Quantity    int    `json:"quantity"`
	Amount      int64  `json:"amount"`
	TotalAmount int64  `json:"total_amount"`
}
