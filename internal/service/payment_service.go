package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"
)

// PaymentService drives charge initialization against the gateway and
// reconciles gateway outcomes back into order status transitions.
type PaymentService struct {
	orders    OrderStore
	buyers    BuyerStore
	payments  PaymentStore
	gateway   Gateway
	orderSvc  *OrderService
	publisher EventPublisher
	logger    *zap.Logger

	now func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	orders OrderStore,
	buyers BuyerStore,
	payments PaymentStore,
	gateway Gateway,
	orderSvc *OrderService,
	publisher EventPublisher,
) *PaymentService {
	return &PaymentService{
		orders:    orders,
		buyers:    buyers,
		payments:  payments,
		gateway:   gateway,
		orderSvc:  orderSvc,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// InitiatePaymentRequest completes missing buyer contact details at payment
// time; the buyer may have been created without them.
type InitiatePaymentRequest struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phonenumber"`
}

// InitiatePayment initializes a charge for the order's reseller amount. The
// gateway reference is persisted before it is returned to any client. An
// expired order is auto-cancelled here; paid and cancelled orders are
// rejected without touching the gateway.
func (ps *PaymentService) InitiatePayment(ctx context.Context, orderID string, req *InitiatePaymentRequest) (*InitializeResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.InitiatePayment")
	defer span.End()

	order, err := ps.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case models.OrderStatusPaid:
		return nil, models.ErrAlreadySettled
	case models.OrderStatusCancelled:
		return nil, models.ErrOrderCancelled
	}

	if order.Expired(ps.now()) {
		if err := ps.orderSvc.EvaluateExpiry(ctx, order); err != nil {
			ps.logger.Error("Failed to auto-cancel expired order",
				zap.String("order_id", order.ID),
				zap.Error(err))
		}
		return nil, models.ErrOrderExpired
	}

	buyer, err := ps.completeBuyerContact(ctx, order.BuyerID, req)
	if err != nil {
		return nil, err
	}
	if buyer.Email == "" {
		return nil, models.ErrBuyerEmailRequired
	}

	start := time.Now()
	init, err := ps.gateway.Initialize(ctx, buyer.Email, order.ResellerAmount, order.Metadata())
	util.PaymentGatewayLatency.WithLabelValues("initialize").Observe(time.Since(start).Seconds())
	if err != nil {
		util.PaymentInitTotal.WithLabelValues("gateway_error").Inc()
		return nil, fmt.Errorf("%w: initialize: %v", models.ErrGatewayUnavailable, err)
	}

	if err := ps.persistReference(ctx, order, init.Reference); err != nil {
		util.PaymentInitTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	util.PaymentInitTotal.WithLabelValues("ok").Inc()
	ps.logger.Info("Payment initialized",
		zap.String("order_id", order.ID),
		zap.String("reference", init.Reference),
		zap.Int64("amount", order.ResellerAmount))

	return init, nil
}

// completeBuyerContact fills in email and phone from the request when the
// buyer record lacks them.
func (ps *PaymentService) completeBuyerContact(ctx context.Context, buyerID string, req *InitiatePaymentRequest) (*models.Buyer, error) {
	buyer, err := ps.buyers.GetBuyer(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	email := buyer.Email
	phone := buyer.PhoneNumber
	if email == "" && req != nil {
		email = req.Email
	}
	if phone == "" && req != nil {
		phone = req.PhoneNumber
	}

	if email != buyer.Email || phone != buyer.PhoneNumber {
		if err := ps.buyers.UpdateBuyerContact(ctx, buyer.ID, email, phone); err != nil {
			return nil, fmt.Errorf("failed to update buyer contact: %w", err)
		}
		buyer.Email = email
		buyer.PhoneNumber = phone
	}
	return buyer, nil
}

// persistReference records the gateway reference on the order's active
// attempt: the creation-time row if it has no reference yet, otherwise a
// fresh row so each attempt keeps its reference forever.
func (ps *PaymentService) persistReference(ctx context.Context, order *models.Order, reference string) error {
	latest, err := ps.payments.GetLatestPaymentByOrder(ctx, order.ID)
	if err == nil && latest.Reference == "" {
		if err := ps.payments.SetPaymentReference(ctx, latest.ID, reference); err != nil {
			return fmt.Errorf("failed to set payment reference: %w", err)
		}
		return nil
	}

	payment := &models.Payment{
		ID:        uuid.New().String(),
		OrderID:   order.ID,
		Amount:    order.ResellerAmount,
		Reference: reference,
		CreatedAt: ps.now(),
	}
	if err := ps.payments.CreatePayment(ctx, payment); err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// ReconcileResult reports what a reconciliation did.
type ReconcileResult struct {
	OrderID     string             `json:"order_id"`
	PaymentID   string             `json:"payment_id"`
	OrderStatus models.OrderStatus `json:"order_status"`
	Applied     bool               `json:"applied"`
	Verify      *VerifyResult      `json:"verify,omitempty"`
}

// ReconcilePaymentCallback verifies a gateway reference and applies the
// resulting status transition. It is the single funnel for webhooks and
// polling, and is idempotent: verifying a reference whose outcome was
// already applied changes nothing and is reported as success.
func (ps *PaymentService) ReconcilePaymentCallback(ctx context.Context, reference string) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ReconcilePaymentCallback")
	defer span.End()

	payment, err := ps.payments.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	verify, err := ps.gateway.Verify(ctx, reference)
	util.PaymentGatewayLatency.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: verify: %v", models.ErrGatewayUnavailable, err)
	}
	util.PaymentVerifyTotal.WithLabelValues(verify.Status).Inc()

	order, err := ps.orders.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, err
	}

	if verify.IPAddress != "" {
		if err := ps.buyers.UpdateBuyerIP(ctx, order.BuyerID, verify.IPAddress); err != nil {
			ps.logger.Error("Failed to update buyer IP",
				zap.String("buyer_id", order.BuyerID),
				zap.Error(err))
		}
	}

	result := &ReconcileResult{
		OrderID:     order.ID,
		PaymentID:   payment.ID,
		OrderStatus: order.Status,
		Verify:      verify,
	}

	fromStates := []models.OrderStatus{models.OrderStatusPending, models.OrderStatusUnpaid}

	switch verify.Status {
	case VerifyStatusSuccess:
		applied, err := ps.orders.TransitionStatus(ctx, order.ID, fromStates, models.OrderStatusPaid)
		if err != nil {
			return nil, fmt.Errorf("failed to mark order paid: %w", err)
		}
		result.Applied = applied
		if applied {
			result.OrderStatus = models.OrderStatusPaid
			util.OrdersPaidTotal.Inc()
			ps.logger.Info("Order paid",
				zap.String("order_id", order.ID),
				zap.String("reference", reference))
			ps.publishPaid(ctx, order, payment, reference)
		} else {
			// Duplicate delivery or an order no longer payable; nothing to
			// re-apply.
			current, err := ps.orders.GetOrder(ctx, order.ID)
			if err == nil {
				result.OrderStatus = current.Status
			}
			ps.logger.Info("Verification already applied",
				zap.String("order_id", order.ID),
				zap.String("reference", reference))
		}

	case VerifyStatusFailed:
		applied, err := ps.orders.TransitionStatus(ctx, order.ID, fromStates, models.OrderStatusUnpaid)
		if err != nil {
			return nil, fmt.Errorf("failed to mark order unpaid: %w", err)
		}
		result.Applied = applied
		if applied {
			result.OrderStatus = models.OrderStatusUnpaid
			ps.logger.Warn("Payment failed",
				zap.String("order_id", order.ID),
				zap.String("reference", reference))
			ps.publishFailed(ctx, order, payment, reference)
		}

	default:
		// Indeterminate gateway status (e.g. abandoned); leave the order
		// where it is and let a later callback settle it.
		ps.logger.Info("Verification inconclusive",
			zap.String("order_id", order.ID),
			zap.String("reference", reference),
			zap.String("status", verify.Status))
	}

	return result, nil
}

func (ps *PaymentService) publishPaid(ctx context.Context, order *models.Order, payment *models.Payment, reference string) {
	event := &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaid,
			Timestamp: ps.now(),
		},
		OrderID:   order.ID,
		PaymentID: payment.ID,
		Amount:    payment.Amount,
		Reference: reference,
	}
	if err := ps.publisher.PublishOrderPaid(ctx, event); err != nil {
		ps.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
	}
}

func (ps *PaymentService) publishFailed(ctx context.Context, order *models.Order, payment *models.Payment, reference string) {
	event := &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentFailed,
			Timestamp: ps.now(),
		},
		OrderID:   order.ID,
		PaymentID: payment.ID,
		Reference: reference,
	}
	if err := ps.publisher.PublishPaymentFailed(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}
}

// GetPayment returns the order's active (newest) payment attempt.
func (ps *PaymentService) GetPayment(ctx context.Context, orderID string) (*models.Payment, error) {
	return ps.payments.GetLatestPaymentByOrder(ctx, orderID)
}
