package service

import (
	"context"
	"fmt"

	"happytoes/internal/models"
	"happytoes/internal/store"
	"happytoes/internal/util"

	"go.uber.org/zap"
)

// ProfileService creates profiles at registration and serves them read-only
// thereafter.
type ProfileService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewProfileService creates a new profile service
func NewProfileService(store *store.Store) *ProfileService {
	return &ProfileService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Register creates the profile row for a newly signed-up identity
func (ps *ProfileService) Register(ctx context.Context, identity models.Identity, fullName string) (*models.Profile, error) {
	if identity.UserID == "" || identity.Email == "" {
		return nil, fmt.Errorf("identity and email are required")
	}

	profile := &models.Profile{
		ID:       identity.UserID,
		Email:    identity.Email,
		FullName: fullName,
		Role:     models.RoleCustomer,
	}
	if err := ps.store.CreateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	ps.logger.Info("Profile registered", zap.String("user_id", profile.ID))
	return ps.store.GetProfileByID(ctx, profile.ID)
}

// Me returns the caller's profile
func (ps *ProfileService) Me(ctx context.Context, identity models.Identity) (*models.Profile, error) {
	if identity.UserID == "" {
		return nil, ErrNotSignedIn
	}
	return ps.store.GetProfileByID(ctx, identity.UserID)
}
