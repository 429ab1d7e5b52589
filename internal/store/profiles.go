package store

import (
	"context"
	"database/sql"
	"fmt"

	"happytoes/internal/models"
)

// CreateProfile inserts a profile at registration time. Conflicting inserts
// for the same identity are ignored so a retried registration is harmless.
func (s *Store) CreateProfile(ctx context.Context, p *models.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Email, p.FullName, p.Role)
	return err
}

// GetProfileByID retrieves a profile by its auth identity
func (s *Store) GetProfileByID(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.GetContext(ctx, &profile, "SELECT * FROM profiles WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
