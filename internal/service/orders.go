package service

import (
	"context"

	"happytoes/internal/models"
	"happytoes/internal/store"
	"happytoes/internal/util"

	"go.uber.org/zap"
)

// OrderService serves the customer-facing order history.
type OrderService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store *store.Store) *OrderService {
	return &OrderService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// OrdersForUser returns a user's orders newest first. Snapshot image URLs are
// refreshed from the catalog when the product still exists; the rest of the
// snapshot stays immutable.
func (os *OrderService) OrdersForUser(ctx context.Context, identity models.Identity) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.OrdersForUser")
	defer span.End()

	if identity.UserID == "" {
		return nil, ErrNotSignedIn
	}

	orders, err := os.store.GetOrdersByUserID(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}

	idSet := make(map[int64]struct{})
	for _, order := range orders {
		for _, item := range order.Items {
			idSet[item.ProductID] = struct{}{}
		}
	}

	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	products, err := os.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		os.logger.Warn("Failed to refresh product images for order history", zap.Error(err))
		return orders, nil
	}

	imageByID := make(map[int64]string, len(products))
	for _, p := range products {
		imageByID[p.ID] = p.ImageURL
	}

	for i := range orders {
		for j := range orders[i].Items {
			if url, ok := imageByID[orders[i].Items[j].ProductID]; ok && url != "" {
				orders[i].Items[j].ImageURL = url
			}
		}
	}

	return orders, nil
}

// GetOrder retrieves a single order scoped to its owner
func (os *OrderService) GetOrder(ctx context.Context, identity models.Identity, orderID int64) (*models.Order, error) {
	if identity.UserID == "" {
		return nil, ErrNotSignedIn
	}

	order, err := os.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != identity.UserID {
		return nil, ErrNotSignedIn
	}
	return order, nil
}
