package service

import (
	"context"
	"encoding/json"

	"marketplace-service/internal/models"
)

// ItemStore is the catalog collaborator. Stock moves only through the
// inventory ledger; DecrementStock must be atomic with respect to its
// read-check-decrement sequence.
type ItemStore interface {
	GetItem(ctx context.Context, id string) (*models.Item, error)
	// DecrementStock subtracts qty from available stock, failing with
	// *models.InsufficientStockError when qty exceeds what is available.
	DecrementStock(ctx context.Context, itemID string, qty int) error
	// IncrementStock adds qty back; it cannot fail on valid input short of
	// storage errors.
	IncrementStock(ctx context.Context, itemID string, qty int) error
}

// OrderStore persists orders together with their owned line items.
type OrderStore interface {
	// CreateOrder persists the order and its line items in one scope.
	CreateOrder(ctx context.Context, order *models.Order) error
	// GetOrder returns the order with its line items, or models.ErrOrderNotFound.
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrdersBySupplier(ctx context.Context, supplierID string, limit, offset int) ([]models.Order, error)
	ListOrdersByReseller(ctx context.Context, resellerID string, limit, offset int) ([]models.Order, error)
	// ListExpiredUnsettled returns orders past the cutoff still pending or
	// unpaid, line items included so their reservations can be released.
	ListExpiredUnsettled(ctx context.Context, cutoff int64, limit int) ([]models.Order, error)
	// TransitionStatus applies a compare-and-set status update: the new status
	// is written only if the current status is one of from. Returns whether
	// the update was applied.
	TransitionStatus(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus) (bool, error)
	// DeleteOrder removes the order and its owned line items and payments.
	DeleteOrder(ctx context.Context, id string) error
}

// BuyerStore persists buyers, deduplicated on their identity fields.
type BuyerStore interface {
	GetBuyer(ctx context.Context, id string) (*models.Buyer, error)
	// FindBuyer looks a buyer up by identity fields; (nil, nil) when absent.
	FindBuyer(ctx context.Context, firstname, lastname, address, city, state string) (*models.Buyer, error)
	CreateBuyer(ctx context.Context, buyer *models.Buyer) error
	UpdateBuyerContact(ctx context.Context, id, email, phone string) error
	UpdateBuyerIP(ctx context.Context, id, ip string) error
}

// PaymentStore persists settlement attempts for orders.
type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	// GetLatestPaymentByOrder returns the newest payment row for the order,
	// or models.ErrPaymentNotFound.
	GetLatestPaymentByOrder(ctx context.Context, orderID string) (*models.Payment, error)
	GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
	// SetPaymentReference assigns the gateway reference to an attempt. A
	// reference is written to a row at most once.
	SetPaymentReference(ctx context.Context, paymentID, reference string) error
}

// InitializeResult is the gateway's answer to a charge initialization.
type InitializeResult struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code,omitempty"`
}

// VerifyResult is the gateway's answer to a charge verification.
type VerifyResult struct {
	Status    string          `json:"status"`
	Amount    int64           `json:"amount"`
	IPAddress string          `json:"ip_address,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Gateway verification statuses as reported by the provider.
const (
	VerifyStatusSuccess = "success"
	VerifyStatusFailed  = "failed"
)

// Gateway is the external payment processor contract.
type Gateway interface {
	Initialize(ctx context.Context, email string, amount int64, metadata models.GatewayMetadata) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

// EventPublisher publishes order lifecycle events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}
