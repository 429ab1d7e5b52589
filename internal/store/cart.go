package store

import (
	"context"
	"database/sql"
	"fmt"

	"happytoes/internal/models"
)

// GetCartLine retrieves the cart line for a (user, product) pair, or nil when
// none exists. Checked before insert so the same product lands on one line.
func (s *Store) GetCartLine(ctx context.Context, userID string, productID int64) (*models.CartLine, error) {
	var line models.CartLine
	err := s.db.GetContext(ctx, &line,
		"SELECT * FROM cart_lines WHERE user_id = $1 AND product_id = $2",
		userID, productID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// GetCartLineByID retrieves a cart line by ID scoped to its owner
func (s *Store) GetCartLineByID(ctx context.Context, userID string, lineID int64) (*models.CartLine, error) {
	var line models.CartLine
	err := s.db.GetContext(ctx, &line,
		"SELECT * FROM cart_lines WHERE id = $1 AND user_id = $2", lineID, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cart line not found: %d", lineID)
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// InsertCartLine inserts a new cart line
func (s *Store) InsertCartLine(ctx context.Context, line *models.CartLine) error {
	query := `
		INSERT INTO cart_lines (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, line, query,
		line.UserID, line.ProductID, line.Quantity)
}

// UpdateCartLineQuantity sets the stored quantity for a line
func (s *Store) UpdateCartLineQuantity(ctx context.Context, lineID int64, quantity int) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE cart_lines SET quantity = $1 WHERE id = $2", quantity, lineID)
	return err
}

// DeleteCartLine removes a single cart line scoped to its owner
func (s *Store) DeleteCartLine(ctx context.Context, userID string, lineID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_lines WHERE id = $1 AND user_id = $2", lineID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cart line not found: %d", lineID)
	}
	return nil
}

// ClearCart bulk-deletes every cart line for a user
func (s *Store) ClearCart(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_lines WHERE user_id = $1", userID)
	return err
}

// GetCartEntries retrieves a user's cart lines joined with product data,
// newest first
func (s *Store) GetCartEntries(ctx context.Context, userID string) ([]models.CartEntry, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT c.id, c.user_id, c.product_id, c.quantity, c.created_at,
		       p.id AS p_id, p.name, p.description, p.price, p.image_url,
		       p.category, p.stock, p.created_at AS p_created_at,
		       p.updated_at AS p_updated_at
		FROM cart_lines c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.CartEntry
	for rows.Next() {
		var e models.CartEntry
		err := rows.Scan(
			&e.ID, &e.UserID, &e.ProductID, &e.Quantity, &e.CreatedAt,
			&e.Product.ID, &e.Product.Name, &e.Product.Description,
			&e.Product.Price, &e.Product.ImageURL, &e.Product.Category,
			&e.Product.Stock, &e.Product.CreatedAt, &e.Product.UpdatedAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetCartCount returns the summed quantity across a user's cart lines
func (s *Store) GetCartCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COALESCE(SUM(quantity), 0) FROM cart_lines WHERE user_id = $1",
		userID)
	return count, err
}
