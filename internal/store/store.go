package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"marketplace-service/internal/models"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetItem retrieves an item by ID
func (s *Store) GetItem(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	err := s.db.GetContext(ctx, &item, "SELECT * FROM items WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems retrieves all items
func (s *Store) ListItems(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	err := s.db.SelectContext(ctx, &items, "SELECT * FROM items ORDER BY id")
	return items, err
}

// DecrementStock checks and decrements available quantity within a
// transaction (FOR UPDATE lock), so concurrent reservations serialize on the
// item row and quantity can never go negative.
func (s *Store) DecrementStock(ctx context.Context, itemID string, qty int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var available int
	err = tx.GetContext(ctx, &available,
		"SELECT quantity FROM items WHERE id = $1 FOR UPDATE", itemID)
	if err == sql.ErrNoRows {
		return models.ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock item: %w", err)
	}

	if available < qty {
		return &models.InsufficientStockError{ItemID: itemID, Requested: qty, Available: available}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE items SET quantity = quantity - $1, updated_at = NOW() WHERE id = $2",
		qty, itemID)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	return tx.Commit()
}

// IncrementStock adds quantity back to an item (compensation)
func (s *Store) IncrementStock(ctx context.Context, itemID string, qty int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE items SET quantity = quantity + $1, updated_at = NOW() WHERE id = $2",
		qty, itemID)
	return err
}
