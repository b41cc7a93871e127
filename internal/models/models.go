package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusUnpaid    OrderStatus = "unpaid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// transitions lists the legal status moves. paid and cancelled are terminal.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusUnpaid, OrderStatusCancelled},
	OrderStatusUnpaid:  {OrderStatusPaid, OrderStatusUnpaid, OrderStatusCancelled},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether the status is one of the supported values.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusUnpaid, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Item is a supplier catalog entry. The core reads its price and mutates
// its quantity through the inventory ledger only.
type Item struct {
	ID         string          `db:"id" json:"id"`
	SupplierID string          `db:"supplier_id" json:"supplier_id"`
	Name       string          `db:"name" json:"name"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Quantity   int             `db:"quantity" json:"quantity"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// Buyer is the end customer an order is placed for. Email and phone may be
// absent until payment is initiated; empty string means not provided yet.
type Buyer struct {
	ID          string    `db:"id" json:"id"`
	FirstName   string    `db:"firstname" json:"firstname"`
	LastName    string    `db:"lastname" json:"lastname"`
	Address     string    `db:"address" json:"address"`
	City        string    `db:"city" json:"city"`
	State       string    `db:"state" json:"state"`
	Email       string    `db:"email" json:"email,omitempty"`
	PhoneNumber string    `db:"phonenumber" json:"phonenumber,omitempty"`
	IPAddress   string    `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// OrderLineItem is one priced line of an order. Amount and TotalAmount are
// kobo values computed once at order creation from the item price at that
// moment; later price changes never touch them.
type OrderLineItem struct {
	ID          string `db:"id" json:"id"`
	OrderID     string `db:"order_id" json:"order_id"`
	ItemID      string `db:"item_id" json:"item_id"`
	ItemName    string `db:"item_name" json:"item_name"`
	Quantity    int    `db:"quantity" json:"quantity"`
	Margin      int64  `db:"margin" json:"margin"`
	Amount      int64  `db:"amount" json:"amount"`
	TotalAmount int64  `db:"total_amount" json:"total_amount"`
}

// Order aggregates the line items placed by a reseller for a buyer against
// a single supplier. Amounts are kobo. ExpireAt is epoch seconds.
type Order struct {
	ID             string          `db:"id" json:"id"`
	Status         OrderStatus     `db:"status" json:"status"`
	SupplierID     string          `db:"supplier_id" json:"supplier_id"`
	ResellerID     string          `db:"reseller_id" json:"reseller_id"`
	BuyerID        string          `db:"buyer_id" json:"buyer_id"`
	ResellerAmount int64           `db:"reseller_amount" json:"reseller_amount"`
	SupplierAmount int64           `db:"supplier_amount" json:"supplier_amount"`
	ExpireAt       int64           `db:"expire_at" json:"expire_at"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	Items          []OrderLineItem `db:"-" json:"items,omitempty"`
}

// Expired reports whether the settlement window has passed.
func (o *Order) Expired(now time.Time) bool {
	return now.Unix() > o.ExpireAt
}

// MetadataField is one display entry passed to the payment gateway.
type MetadataField struct {
	DisplayName  string      `json:"display_name"`
	VariableName string      `json:"variable_name"`
	Value        interface{} `json:"value"`
}

// GatewayMetadata is the human-readable order summary shown by the gateway.
type GatewayMetadata struct {
	CustomFields []MetadataField `json:"custom_fields"`
}

// Metadata builds the gateway display summary: order id, cart items in the
// form "5x chair,2x table", and the total price.
func (o *Order) Metadata() GatewayMetadata {
	counts := make([]string, 0, len(o.Items))
	for _, line := range o.Items {
		counts = append(counts, fmt.Sprintf("%dx %s", line.Quantity, line.ItemName))
	}
	return GatewayMetadata{
		CustomFields: []MetadataField{
			{DisplayName: "Order ID", VariableName: "order_id", Value: o.ID},
			{DisplayName: "Cart Items", VariableName: "cart_items", Value: strings.Join(counts, ",")},
			{DisplayName: "Price", VariableName: "price", Value: o.ResellerAmount},
		},
	}
}

// Payment is one settlement attempt for an order. Amount is the order's
// reseller amount snapshotted when the attempt was created; Reference is
// the gateway token, written exactly once per attempt.
type Payment struct {
	ID        string    `db:"id" json:"id"`
	OrderID   string    `db:"order_id" json:"order_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Reference string    `db:"reference" json:"reference,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
