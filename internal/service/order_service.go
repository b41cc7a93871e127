package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"
)

// Cancellation reasons recorded on OrderCancelled events and metrics.
const (
	CancelReasonRequested = "requested"
	CancelReasonExpired   = "expired"
)

// OrderService orchestrates order creation, reads with lazy expiry
// evaluation, and cancellation.
type OrderService struct {
	orders    OrderStore
	items     ItemStore
	buyers    BuyerStore
	payments  PaymentStore
	ledger    *InventoryLedger
	publisher EventPublisher
	logger    *zap.Logger

	settlementWindow time.Duration
	now              func() time.Time
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderStore,
	items ItemStore,
	buyers BuyerStore,
	payments PaymentStore,
	ledger *InventoryLedger,
	publisher EventPublisher,
	settlementWindow time.Duration,
) *OrderService {
	return &OrderService{
		orders:           orders,
		items:            items,
		buyers:           buyers,
		payments:         payments,
		ledger:           ledger,
		publisher:        publisher,
		logger:           util.GetLogger(),
		settlementWindow: settlementWindow,
		now:              time.Now,
	}
}

// CreateOrderRequest represents a request to create an order. ItemIDs is a
// multiset: a repeated ID means a higher quantity of that item.
type CreateOrderRequest struct {
	SupplierID     string   `json:"supplier_id" binding:"required"`
	ResellerID     string   `json:"reseller_id" binding:"required"`
	ItemIDs        []string `json:"item_ids" binding:"required,min=1"`
	Margin         int64    `json:"margin" binding:"min=0"`
	BuyerFirstName string   `json:"buyerfirstname" binding:"required"`
	BuyerLastName  string   `json:"buyerlastname" binding:"required"`
	BuyerAddress   string   `json:"buyeraddress" binding:"required"`
	BuyerCity      string   `json:"buyercity" binding:"required"`
	BuyerState     string   `json:"buyerstate" binding:"required"`
	BuyerIP        string   `json:"-"`
}

type itemRequest struct {
	itemID   string
	quantity int
}

// tally collapses the item-ID multiset into distinct (item, quantity) pairs
// ordered by descending quantity, ties broken by item ID. The order is the
// reservation order, so rollback (its reverse) is deterministic.
func tally(itemIDs []string) []itemRequest {
	counts := make(map[string]int, len(itemIDs))
	for _, id := range itemIDs {
		counts[id]++
	}

	requests := make([]itemRequest, 0, len(counts))
	for id, qty := range counts {
		requests = append(requests, itemRequest{itemID: id, quantity: qty})
	}
	sort.Slice(requests, func(i, j int) bool {
		if requests[i].quantity != requests[j].quantity {
			return requests[i].quantity > requests[j].quantity
		}
		return requests[i].itemID < requests[j].itemID
	})
	return requests
}

// CreateOrder reserves stock for every requested line, prices the lines from
// the item prices at this moment, and persists the order in pending status
// with its settlement deadline. The operation is all-or-nothing: any
// shortage or persistence failure releases every reservation already taken
// for this attempt.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	requests := tally(req.ItemIDs)

	buyer, err := s.resolveBuyer(ctx, req)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("buyer_error").Inc()
		return nil, fmt.Errorf("failed to resolve buyer: %w", err)
	}

	now := s.now()
	orderID := uuid.New().String()
	lines := make([]models.OrderLineItem, 0, len(requests))
	reserved := make([]itemRequest, 0, len(requests))

	for _, r := range requests {
		item, err := s.items.GetItem(ctx, r.itemID)
		if err != nil {
			s.rollbackReservations(ctx, orderID, reserved)
			util.OrdersFailedTotal.WithLabelValues("item_not_found").Inc()
			return nil, fmt.Errorf("item %s: %w", r.itemID, err)
		}

		if err := s.ledger.Reserve(ctx, r.itemID, r.quantity); err != nil {
			s.rollbackReservations(ctx, orderID, reserved)
			var short *models.InsufficientStockError
			if errors.As(err, &short) {
				short.ItemName = item.Name
				util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
				return nil, short
			}
			util.OrdersFailedTotal.WithLabelValues("reservation_error").Inc()
			return nil, fmt.Errorf("failed to reserve item %s: %w", r.itemID, err)
		}
		reserved = append(reserved, r)

		// Price the line from the item as it is right now; these amounts are
		// never recomputed.
		unitPrice := UnitPriceKobo(item.Price)
		lines = append(lines, models.OrderLineItem{
			ID:          uuid.New().String(),
			OrderID:     orderID,
			ItemID:      item.ID,
			ItemName:    item.Name,
			Quantity:    r.quantity,
			Margin:      req.Margin,
			Amount:      LineBaseAmount(unitPrice, r.quantity),
			TotalAmount: LineTotalAmount(unitPrice, req.Margin, r.quantity),
		})
	}

	supplierAmount, resellerAmount := OrderAmounts(lines)
	order := &models.Order{
		ID:             orderID,
		Status:         models.OrderStatusPending,
		SupplierID:     req.SupplierID,
		ResellerID:     req.ResellerID,
		BuyerID:        buyer.ID,
		SupplierAmount: supplierAmount,
		ResellerAmount: resellerAmount,
		ExpireAt:       now.Add(s.settlementWindow).Unix(),
		CreatedAt:      now,
		Items:          lines,
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		s.rollbackReservations(ctx, orderID, reserved)
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	// First settlement attempt; the gateway reference is assigned later, at
	// payment initialization.
	payment := &models.Payment{
		ID:        uuid.New().String(),
		OrderID:   order.ID,
		Amount:    order.ResellerAmount,
		CreatedAt: now,
	}
	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		s.logger.Error("Failed to create payment record",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.Int64("reseller_amount", order.ResellerAmount),
		zap.Int64("supplier_amount", order.SupplierAmount))

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: now,
		},
		OrderID:        order.ID,
		SupplierID:     order.SupplierID,
		ResellerID:     order.ResellerID,
		ResellerAmount: order.ResellerAmount,
		SupplierAmount: order.SupplierAmount,
		Items:          lineData(lines),
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

// resolveBuyer reuses an existing buyer with the same identity fields or
// creates a new one.
func (s *OrderService) resolveBuyer(ctx context.Context, req *CreateOrderRequest) (*models.Buyer, error) {
	buyer, err := s.buyers.FindBuyer(ctx, req.BuyerFirstName, req.BuyerLastName, req.BuyerAddress, req.BuyerCity, req.BuyerState)
	if err != nil {
		return nil, err
	}
	if buyer != nil {
		return buyer, nil
	}

	buyer = &models.Buyer{
		ID:        uuid.New().String(),
		FirstName: req.BuyerFirstName,
		LastName:  req.BuyerLastName,
		Address:   req.BuyerAddress,
		City:      req.BuyerCity,
		State:     req.BuyerState,
		IPAddress: req.BuyerIP,
		CreatedAt: s.now(),
	}
	if err := s.buyers.CreateBuyer(ctx, buyer); err != nil {
		return nil, err
	}
	return buyer, nil
}

// rollbackReservations releases reservations taken earlier in the same
// attempt, newest first. Release failures are logged and never mask the
// error that triggered the rollback.
func (s *OrderService) rollbackReservations(ctx context.Context, orderID string, reserved []itemRequest) {
	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if err := s.ledger.Release(ctx, r.itemID, r.quantity); err != nil {
			s.logger.Error("Failed to roll back reservation",
				zap.String("order_id", orderID),
				zap.String("item_id", r.itemID),
				zap.Int("quantity", r.quantity),
				zap.Error(err))
		}
	}
}

func lineData(lines []models.OrderLineItem) []models.OrderLineData {
	data := make([]models.OrderLineData, 0, len(lines))
	for _, line := range lines {
		data = append(data, models.OrderLineData{
			ItemID:      line.ItemID,
			Quantity:    line.Quantity,
			Amount:      line.Amount,
			TotalAmount: line.TotalAmount,
		})
	}
	return data
}

// GetOrder returns an order, evaluating its settlement deadline first: a
// pending or unpaid order past its deadline is cancelled on read and its
// reserved stock restored. Concurrent readers race on a compare-and-set, so
// the cancellation and release apply exactly once.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.EvaluateExpiry(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// EvaluateExpiry applies the lazy expiry transition to an order in place.
// It is called by readers and by the periodic sweeper; both funnel into the
// same compare-and-set cancellation.
func (s *OrderService) EvaluateExpiry(ctx context.Context, order *models.Order) error {
	if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusUnpaid {
		return nil
	}
	if !order.Expired(s.now()) {
		return nil
	}
	return s.cancel(ctx, order, CancelReasonExpired)
}

// CancelOrder cancels a pending or unpaid order and restores its reserved
// stock. Cancelling an already-cancelled order is a no-op; cancelling a paid
// order fails with models.ErrAlreadySettled and changes nothing.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == models.OrderStatusPaid {
		return models.ErrAlreadySettled
	}
	if order.Status == models.OrderStatusCancelled {
		return nil
	}

	if err := s.cancel(ctx, order, CancelReasonRequested); err != nil {
		return err
	}
	// A concurrent verification may have settled the order first.
	if order.Status == models.OrderStatusPaid {
		return models.ErrAlreadySettled
	}
	return nil
}

// cancel transitions the order to cancelled via compare-and-set and, only if
// this call won the transition, releases every line's reservation. Losing
// the race to another canceller is a no-op; losing it to a payment means the
// order settled first.
func (s *OrderService) cancel(ctx context.Context, order *models.Order, reason string) error {
	applied, err := s.orders.TransitionStatus(ctx, order.ID,
		[]models.OrderStatus{models.OrderStatusPending, models.OrderStatusUnpaid},
		models.OrderStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}

	if !applied {
		// Lost the race: either another caller cancelled first (idempotent
		// no-op) or a verification settled the order. Reflect whichever won.
		current, err := s.orders.GetOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		order.Status = current.Status
		return nil
	}

	order.Status = models.OrderStatusCancelled
	for _, line := range order.Items {
		if err := s.ledger.Release(ctx, line.ItemID, line.Quantity); err != nil {
			s.logger.Error("Failed to release stock on cancellation",
				zap.String("order_id", order.ID),
				zap.String("item_id", line.ItemID),
				zap.Error(err))
		}
	}

	util.OrdersCancelledTotal.WithLabelValues(reason).Inc()
	s.logger.Info("Order cancelled",
		zap.String("order_id", order.ID),
		zap.String("reason", reason))

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: s.now(),
		},
		OrderID: order.ID,
		Reason:  reason,
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	return nil
}

// SweepExpired cancels orders whose settlement window has passed. It serves
// callers that need stock reclaimed promptly rather than on next read.
func (s *OrderService) SweepExpired(ctx context.Context, limit int) (int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SweepExpired")
	defer span.End()

	expired, err := s.orders.ListExpiredUnsettled(ctx, s.now().Unix(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired orders: %w", err)
	}

	cancelled := 0
	for i := range expired {
		if err := s.EvaluateExpiry(ctx, &expired[i]); err != nil {
			s.logger.Error("Failed to expire order",
				zap.String("order_id", expired[i].ID),
				zap.Error(err))
			continue
		}
		if expired[i].Status == models.OrderStatusCancelled {
			cancelled++
		}
	}
	return cancelled, nil
}

// ListOrdersBySupplier returns a supplier's orders, newest first.
func (s *OrderService) ListOrdersBySupplier(ctx context.Context, supplierID string, limit, offset int) ([]models.Order, error) {
	return s.orders.ListOrdersBySupplier(ctx, supplierID, limit, offset)
}

// ListOrdersByReseller returns a reseller's orders, newest first.
func (s *OrderService) ListOrdersByReseller(ctx context.Context, resellerID string, limit, offset int) ([]models.Order, error) {
	return s.orders.ListOrdersByReseller(ctx, resellerID, limit, offset)
}

// DeleteOrder removes an order together with its owned line items and
// payment history.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID string) error {
	return s.orders.DeleteOrder(ctx, orderID)
}
