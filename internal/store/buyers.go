package store

import (
	"context"
	"database/sql"

	"marketplace-service/internal/models"
)

// GetBuyer retrieves a buyer by ID
func (s *Store) GetBuyer(ctx context.Context, id string) (*models.Buyer, error) {
	var buyer models.Buyer
	err := s.db.GetContext(ctx, &buyer, "SELECT * FROM buyers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrBuyerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &buyer, nil
}

// FindBuyer looks a buyer up by identity fields; returns (nil, nil) when no
// buyer matches, so a repeated buyer reuses the same record.
func (s *Store) FindBuyer(ctx context.Context, firstname, lastname, address, city, state string) (*models.Buyer, error) {
	var buyer models.Buyer
	err := s.db.GetContext(ctx, &buyer, `
		SELECT * FROM buyers
		WHERE firstname = $1 AND lastname = $2 AND address = $3 AND city = $4 AND state = $5`,
		firstname, lastname, address, city, state)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &buyer, nil
}

// CreateBuyer persists a new buyer
func (s *Store) CreateBuyer(ctx context.Context, buyer *models.Buyer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buyers (id, firstname, lastname, address, city, state,
			email, phonenumber, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		buyer.ID, buyer.FirstName, buyer.LastName, buyer.Address, buyer.City, buyer.State,
		buyer.Email, buyer.PhoneNumber, buyer.IPAddress, buyer.CreatedAt)
	return err
}

// UpdateBuyerContact sets the buyer's email and phone number
func (s *Store) UpdateBuyerContact(ctx context.Context, id, email, phone string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE buyers SET email = $1, phonenumber = $2 WHERE id = $3",
		email, phone, id)
	return err
}

// UpdateBuyerIP records the IP address the gateway observed for the buyer
func (s *Store) UpdateBuyerIP(ctx context.Context, id, ip string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE buyers SET ip_address = $1 WHERE id = $2",
		ip, id)
	return err
}
