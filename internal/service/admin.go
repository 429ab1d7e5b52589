package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"happytoes/internal/broker"
	"happytoes/internal/models"
	"happytoes/internal/store"
	"happytoes/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidTransition is returned for status updates the transition table
// does not allow.
var ErrInvalidTransition = errors.New("invalid order status transition")

// AdminService backs the admin back-office: product CRUD, order management,
// status transitions, and dashboard statistics.
type AdminService struct {
	store     *store.Store
	publisher *broker.EventPublisher
	logger    *zap.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(store *store.Store, publisher *broker.EventPublisher) *AdminService {
	return &AdminService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// ProductInput carries the editable product fields.
type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Category    string          `json:"category"`
	Stock       int             `json:"stock"`
}

func (in *ProductInput) validate() error {
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("price must not be negative")
	}
	if in.Stock < 0 {
		return fmt.Errorf("stock must not be negative")
	}
	return nil
}

// CreateProduct adds a product to the catalog
func (as *AdminService) CreateProduct(ctx context.Context, in *ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		ImageURL:    in.ImageURL,
		Category:    in.Category,
		Stock:       in.Stock,
	}
	if err := as.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	as.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.String("name", product.Name))
	return product, nil
}

// UpdateProduct edits an existing product. Historical order snapshots keep
// the values captured at their checkout time.
func (as *AdminService) UpdateProduct(ctx context.Context, id int64, in *ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		ImageURL:    in.ImageURL,
		Category:    in.Category,
		Stock:       in.Stock,
	}
	if err := as.store.UpdateProduct(ctx, product); err != nil {
		return nil, err
	}
	return as.store.GetProductByID(ctx, id)
}

// DeleteProduct removes a product from the catalog
func (as *AdminService) DeleteProduct(ctx context.Context, id int64) error {
	return as.store.DeleteProduct(ctx, id)
}

// ListOrders returns every order, newest first
func (as *AdminService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return as.store.GetOrders(ctx)
}

// DeleteOrder removes an order
func (as *AdminService) DeleteOrder(ctx context.Context, id int64) error {
	return as.store.DeleteOrder(ctx, id)
}

// SetStatus transitions an order to a new status, enforced against the
// transition table.
func (as *AdminService) SetStatus(ctx context.Context, orderID int64, status string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.SetStatus")
	defer span.End()

	if !models.ValidStatus(status) {
		return nil, fmt.Errorf("unknown order status: %s", status)
	}

	order, err := as.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(order.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, status)
	}

	if err := as.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	util.OrderStatusTransitionsTotal.WithLabelValues(order.Status, status).Inc()
	as.logger.Info("Order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", order.Status),
		zap.String("to", status))

	if err := as.publisher.PublishOrderStatusChanged(ctx, &models.OrderStatusChangedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:   orderID,
		From:      order.Status,
		To:        status,
	}); err != nil {
		as.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	order.Status = status
	return order, nil
}

// ToggleStatus flips an order between completed and cancelled. Orders in any
// other status are rejected.
func (as *AdminService) ToggleStatus(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := as.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	next, ok := models.ToggledStatus(order.Status)
	if !ok {
		return nil, fmt.Errorf("%w: cannot toggle from %s", ErrInvalidTransition, order.Status)
	}

	return as.SetStatus(ctx, orderID, next)
}

// TopProduct is a dashboard row: units sold attributed to a product from the
// order item snapshots.
type TopProduct struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	UnitsSold int    `json:"units_sold"`
}

// DashboardStats are the aggregate figures shown on the admin dashboard,
// computed by scanning all orders and products.
type DashboardStats struct {
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	CompletedOrders int             `json:"completed_orders"`
	TotalOrders     int             `json:"total_orders"`
	PendingOrders   int             `json:"pending_orders"`
	UniqueCustomers int             `json:"unique_customers"`
	ProductCount    int             `json:"product_count"`
	OutOfStockCount int             `json:"out_of_stock_count"`
	RecentOrders    []models.Order  `json:"recent_orders"`
	TopProducts     []TopProduct    `json:"top_products"`
}

const (
	recentOrderLimit = 5
	topProductLimit  = 3
)

// DashboardStats computes the admin dashboard aggregates
func (as *AdminService) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.DashboardStats")
	defer span.End()

	orders, err := as.store.GetOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	products, err := as.store.GetProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	stats := &DashboardStats{
		TotalRevenue: decimal.Zero,
		TotalOrders:  len(orders),
		ProductCount: len(products),
	}

	customers := make(map[string]struct{})
	for _, order := range orders {
		switch order.Status {
		case models.OrderStatusCompleted:
			stats.CompletedOrders++
			stats.TotalRevenue = stats.TotalRevenue.Add(order.TotalAmount)
		case models.OrderStatusPending:
			stats.PendingOrders++
		}
		if order.CustomerEmail != "" {
			customers[order.CustomerEmail] = struct{}{}
		}
	}
	stats.UniqueCustomers = len(customers)

	for _, p := range products {
		if p.Stock == 0 {
			stats.OutOfStockCount++
		}
	}

	// Orders arrive newest-first from the store
	if len(orders) > recentOrderLimit {
		stats.RecentOrders = orders[:recentOrderLimit]
	} else {
		stats.RecentOrders = orders
	}

	stats.TopProducts = TopProductsFromOrders(orders, products, topProductLimit)
	return stats, nil
}

// TopProductsFromOrders attributes units sold per product across the order
// snapshots and returns the n best sellers.
func TopProductsFromOrders(orders []models.Order, products []models.Product, n int) []TopProduct {
	unitsByProduct := make(map[int64]int)
	for _, order := range orders {
		for _, item := range order.Items {
			if item.ProductID == 0 {
				continue
			}
			unitsByProduct[item.ProductID] += item.Quantity
		}
	}

	productsByID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		productsByID[p.ID] = p
	}

	top := make([]TopProduct, 0, len(unitsByProduct))
	for productID, units := range unitsByProduct {
		entry := TopProduct{
			ProductID: productID,
			Name:      "Unknown product",
			UnitsSold: units,
		}
		if p, ok := productsByID[productID]; ok {
			entry.Name = p.Name
			entry.ImageURL = p.ImageURL
		}
		top = append(top, entry)
	}

	sort.Slice(top, func(i, j int) bool {
		if top[i].UnitsSold != top[j].UnitsSold {
			return top[i].UnitsSold > top[j].UnitsSold
		}
		return top[i].ProductID < top[j].ProductID
	})

	if len(top) > n {
		top = top[:n]
	}
	return top
}
