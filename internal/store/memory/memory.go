// Package memory provides an in-memory implementation of the persistence
// interfaces, used by unit tests and for running without infrastructure.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"marketplace-service/internal/models"
)

type Store struct {
	mu       sync.RWMutex
	items    map[string]*models.Item
	orders   map[string]*models.Order
	buyers   map[string]*models.Buyer
	payments map[string]*models.Payment
	seq      map[string]int // payment ID -> insertion order, for stable history
	nextSeq  int
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		items:    make(map[string]*models.Item),
		orders:   make(map[string]*models.Order),
		buyers:   make(map[string]*models.Buyer),
		payments: make(map[string]*models.Payment),
		seq:      make(map[string]int),
	}
}

// SeedItem inserts or replaces an item
func (s *Store) SeedItem(item *models.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.items[item.ID] = &cp
}

func (s *Store) GetItem(ctx context.Context, id string) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, models.ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *Store) DecrementStock(ctx context.Context, itemID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return models.ErrItemNotFound
	}
	if item.Quantity < qty {
		return &models.InsufficientStockError{ItemID: itemID, Requested: qty, Available: item.Quantity}
	}
	item.Quantity -= qty
	return nil
}

func (s *Store) IncrementStock(ctx context.Context, itemID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return models.ErrItemNotFound
	}
	item.Quantity += qty
	return nil
}

func copyOrder(order *models.Order) *models.Order {
	cp := *order
	cp.Items = append([]models.OrderLineItem(nil), order.Items...)
	return &cp
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = copyOrder(order)
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (s *Store) listOrders(match func(*models.Order) bool, limit, offset int) []models.Order {
	all := make([]*models.Order, 0)
	for _, order := range s.orders {
		if match(order) {
			all = append(all, order)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	result := make([]models.Order, 0)
	for i, order := range all {
		if i < offset {
			continue
		}
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, *copyOrder(order))
	}
	return result
}

func (s *Store) ListOrdersBySupplier(ctx context.Context, supplierID string, limit, offset int) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listOrders(func(o *models.Order) bool { return o.SupplierID == supplierID }, limit, offset), nil
}

func (s *Store) ListOrdersByReseller(ctx context.Context, resellerID string, limit, offset int) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listOrders(func(o *models.Order) bool { return o.ResellerID == resellerID }, limit, offset), nil
}

func (s *Store) ListExpiredUnsettled(ctx context.Context, cutoff int64, limit int) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listOrders(func(o *models.Order) bool {
		if o.Status != models.OrderStatusPending && o.Status != models.OrderStatusUnpaid {
			return false
		}
		return o.ExpireAt < cutoff
	}, limit, 0), nil
}

func (s *Store) TransitionStatus(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return false, models.ErrOrderNotFound
	}
	for _, st := range from {
		if order.Status == st {
			order.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return models.ErrOrderNotFound
	}
	delete(s.orders, id)
	for pid, payment := range s.payments {
		if payment.OrderID == id {
			delete(s.payments, pid)
			delete(s.seq, pid)
		}
	}
	return nil
}

func (s *Store) GetBuyer(ctx context.Context, id string) (*models.Buyer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buyer, ok := s.buyers[id]
	if !ok {
		return nil, models.ErrBuyerNotFound
	}
	cp := *buyer
	return &cp, nil
}

func (s *Store) FindBuyer(ctx context.Context, firstname, lastname, address, city, state string) (*models.Buyer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, buyer := range s.buyers {
		if buyer.FirstName == firstname && buyer.LastName == lastname &&
			buyer.Address == address && buyer.City == city && buyer.State == state {
			cp := *buyer
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateBuyer(ctx context.Context, buyer *models.Buyer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *buyer
	s.buyers[buyer.ID] = &cp
	return nil
}

func (s *Store) UpdateBuyerContact(ctx context.Context, id, email, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buyer, ok := s.buyers[id]
	if !ok {
		return models.ErrBuyerNotFound
	}
	buyer.Email = email
	buyer.PhoneNumber = phone
	return nil
}

func (s *Store) UpdateBuyerIP(ctx context.Context, id, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buyer, ok := s.buyers[id]
	if !ok {
		return models.ErrBuyerNotFound
	}
	buyer.IPAddress = ip
	return nil
}

func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *payment
	s.payments[payment.ID] = &cp
	s.nextSeq++
	s.seq[payment.ID] = s.nextSeq
	return nil
}

func (s *Store) GetLatestPaymentByOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Payment
	for _, payment := range s.payments {
		if payment.OrderID != orderID {
			continue
		}
		if latest == nil || s.seq[payment.ID] > s.seq[latest.ID] {
			latest = payment
		}
	}
	if latest == nil {
		return nil, models.ErrPaymentNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if reference == "" {
		return nil, models.ErrPaymentNotFound
	}
	for _, payment := range s.payments {
		if payment.Reference == reference {
			cp := *payment
			return &cp, nil
		}
	}
	return nil, models.ErrPaymentNotFound
}

func (s *Store) SetPaymentReference(ctx context.Context, paymentID, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[paymentID]
	if !ok {
		return models.ErrPaymentNotFound
	}
	if payment.Reference != "" {
		return fmt.Errorf("payment %s already has a reference", paymentID)
	}
	payment.Reference = reference
	return nil
}
