package service

import (
	"context"
	"fmt"
	"time"

	"happytoes/internal/models"
	"happytoes/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// taxRate is the fixed 10% tax applied on top of the cart subtotal.
var taxRate = decimal.NewFromFloat(0.10)

const cartCountTTL = 10 * time.Minute

// ErrNotSignedIn is returned for cart and checkout operations attempted
// without an authenticated identity.
var ErrNotSignedIn = fmt.Errorf("please log in first")

// cartStore is the slice of the store the cart service needs.
type cartStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetCartLine(ctx context.Context, userID string, productID int64) (*models.CartLine, error)
	GetCartLineByID(ctx context.Context, userID string, lineID int64) (*models.CartLine, error)
	InsertCartLine(ctx context.Context, line *models.CartLine) error
	UpdateCartLineQuantity(ctx context.Context, lineID int64, quantity int) error
	DeleteCartLine(ctx context.Context, userID string, lineID int64) error
	GetCartEntries(ctx context.Context, userID string) ([]models.CartEntry, error)
	GetCartCount(ctx context.Context, userID string) (int, error)
}

// cartCache caches the summed cart quantity per user.
type cartCache interface {
	GetCartCount(ctx context.Context, userID string) (count int, found bool, err error)
	SetCartCount(ctx context.Context, userID string, count int, ttl time.Duration) error
	InvalidateCartCount(ctx context.Context, userID string) error
}

// CartService maintains the per-user product/quantity mapping. Every
// mutation is persisted immediately; there is no local staging.
type CartService struct {
	store  cartStore
	redis  cartCache
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store cartStore, redis cartCache) *CartService {
	return &CartService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// AddItem adds one unit of a product to the user's cart. An existing line for
// the (user, product) pair is incremented instead of duplicated.
func (cs *CartService) AddItem(ctx context.Context, identity models.Identity, productID int64) (*models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if identity.UserID == "" {
		return nil, ErrNotSignedIn
	}

	if _, err := cs.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}

	existing, err := cs.store.GetCartLine(ctx, identity.UserID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up cart line: %w", err)
	}

	var line *models.CartLine
	if existing != nil {
		existing.Quantity++
		if err := cs.store.UpdateCartLineQuantity(ctx, existing.ID, existing.Quantity); err != nil {
			return nil, fmt.Errorf("failed to update cart line: %w", err)
		}
		line = existing
	} else {
		line = &models.CartLine{
			UserID:    identity.UserID,
			ProductID: productID,
			Quantity:  1,
		}
		if err := cs.store.InsertCartLine(ctx, line); err != nil {
			return nil, fmt.Errorf("failed to insert cart line: %w", err)
		}
	}

	util.CartMutationsTotal.WithLabelValues("add").Inc()
	cs.invalidateCount(ctx, identity.UserID)
	return line, nil
}

// UpdateQuantity sets the stored quantity for a line. Non-positive quantities
// are a no-op; stock is not clamped server-side.
func (cs *CartService) UpdateQuantity(ctx context.Context, identity models.Identity, lineID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateQuantity")
	defer span.End()

	if identity.UserID == "" {
		return ErrNotSignedIn
	}
	if quantity < 1 {
		return nil
	}

	if _, err := cs.store.GetCartLineByID(ctx, identity.UserID, lineID); err != nil {
		return err
	}

	if err := cs.store.UpdateCartLineQuantity(ctx, lineID, quantity); err != nil {
		return fmt.Errorf("failed to update quantity: %w", err)
	}

	util.CartMutationsTotal.WithLabelValues("update").Inc()
	cs.invalidateCount(ctx, identity.UserID)
	return nil
}

// RemoveItem deletes a cart line
func (cs *CartService) RemoveItem(ctx context.Context, identity models.Identity, lineID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	if identity.UserID == "" {
		return ErrNotSignedIn
	}

	if err := cs.store.DeleteCartLine(ctx, identity.UserID, lineID); err != nil {
		return err
	}

	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	cs.invalidateCount(ctx, identity.UserID)
	return nil
}

// Entries returns the user's cart lines joined with product data
func (cs *CartService) Entries(ctx context.Context, identity models.Identity) ([]models.CartEntry, error) {
	if identity.UserID == "" {
		return nil, ErrNotSignedIn
	}
	return cs.store.GetCartEntries(ctx, identity.UserID)
}

// Count returns the summed quantity across the user's cart, served from the
// Redis cache when warm.
func (cs *CartService) Count(ctx context.Context, identity models.Identity) (int, error) {
	if identity.UserID == "" {
		return 0, ErrNotSignedIn
	}

	count, found, err := cs.redis.GetCartCount(ctx, identity.UserID)
	if err != nil {
		cs.logger.Warn("Cart count cache read failed, falling back to DB",
			zap.String("user_id", identity.UserID),
			zap.Error(err))
	} else if found {
		return count, nil
	}

	count, err = cs.store.GetCartCount(ctx, identity.UserID)
	if err != nil {
		return 0, err
	}

	if err := cs.redis.SetCartCount(ctx, identity.UserID, count, cartCountTTL); err != nil {
		cs.logger.Warn("Failed to cache cart count", zap.Error(err))
	}
	return count, nil
}

func (cs *CartService) invalidateCount(ctx context.Context, userID string) {
	if err := cs.redis.InvalidateCartCount(ctx, userID); err != nil {
		cs.logger.Warn("Failed to invalidate cart count cache",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// Subtotal is the sum of price times quantity over the joined cart entries.
func Subtotal(entries []models.CartEntry) decimal.Decimal {
	subtotal := decimal.Zero
	for _, e := range entries {
		subtotal = subtotal.Add(e.Product.Price.Mul(decimal.NewFromInt(int64(e.Quantity))))
	}
	return subtotal
}

// Tax is the fixed 10% on the subtotal.
func Tax(entries []models.CartEntry) decimal.Decimal {
	return Subtotal(entries).Mul(taxRate)
}

// Total is subtotal plus tax.
func Total(entries []models.CartEntry) decimal.Decimal {
	subtotal := Subtotal(entries)
	return subtotal.Add(subtotal.Mul(taxRate))
}
