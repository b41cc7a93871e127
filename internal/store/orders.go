package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"marketplace-service/internal/models"
)

// CreateOrder persists an order and its line items in one transaction, so a
// failed line never leaves a partial aggregate behind.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, status, supplier_id, reseller_id, buyer_id,
			reseller_amount, supplier_amount, expire_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.Status, order.SupplierID, order.ResellerID, order.BuyerID,
		order.ResellerAmount, order.SupplierAmount, order.ExpireAt, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, line := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_line_items (id, order_id, item_id, item_name,
				quantity, margin, amount, total_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			line.ID, line.OrderID, line.ItemID, line.ItemName,
			line.Quantity, line.Margin, line.Amount, line.TotalAmount)
		if err != nil {
			return fmt.Errorf("failed to insert order line: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrder retrieves an order with its line items
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadLines(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) loadLines(ctx context.Context, order *models.Order) error {
	return s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_line_items WHERE order_id = $1", order.ID)
}

// ListOrdersBySupplier retrieves a supplier's orders, newest first
func (s *Store) ListOrdersBySupplier(ctx context.Context, supplierID string, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE supplier_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		supplierID, limit, offset)
	return orders, err
}

// ListOrdersByReseller retrieves a reseller's orders, newest first
func (s *Store) ListOrdersByReseller(ctx context.Context, resellerID string, limit, offset int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE reseller_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		resellerID, limit, offset)
	return orders, err
}

// ListExpiredUnsettled retrieves orders past the cutoff that are still
// pending or unpaid, with line items loaded for release.
func (s *Store) ListExpiredUnsettled(ctx context.Context, cutoff int64, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE expire_at < $1 AND status IN ('pending', 'unpaid')
		ORDER BY expire_at ASC LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, err
	}

	for i := range orders {
		if err := s.loadLines(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// TransitionStatus applies a compare-and-set status update, returning
// whether a row changed. Duplicate verifications and concurrent
// cancellations lose the race here instead of double-applying.
func (s *Store) TransitionStatus(ctx context.Context, orderID string, from []models.OrderStatus, to models.OrderStatus) (bool, error) {
	states := make([]string, 0, len(from))
	for _, st := range from {
		states = append(states, string(st))
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1 WHERE id = $2 AND status = ANY($3)",
		to, orderID, pq.Array(states))
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteOrder removes an order together with its owned line items and
// payment history in one transaction.
func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM order_line_items WHERE order_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete order lines: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM payments WHERE order_id = $1", id); err != nil {
		return fmt.Errorf("failed to delete payments: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrOrderNotFound
	}

	return tx.Commit()
}
