package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-service/internal/models"
)

// CreatePayment records a settlement attempt for an order
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		payment.ID, payment.OrderID, payment.Amount, payment.Reference, payment.CreatedAt)
	return err
}

// GetLatestPaymentByOrder retrieves the newest payment attempt for an order
func (s *Store) GetLatestPaymentByOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByReference retrieves a payment by its gateway reference.
// Attempts still waiting for a reference are never matched.
func (s *Store) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	if reference == "" {
		return nil, models.ErrPaymentNotFound
	}

	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE reference = $1", reference)
	if err == sql.ErrNoRows {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// SetPaymentReference assigns the gateway reference to an attempt that does
// not have one yet; a reference is never overwritten.
func (s *Store) SetPaymentReference(ctx context.Context, paymentID, reference string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE payments SET reference = $1 WHERE id = $2 AND reference = ''",
		reference, paymentID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("payment %s already has a reference", paymentID)
	}
	return nil
}
