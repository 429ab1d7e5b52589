package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"happytoes/internal/models"
	"happytoes/internal/payment"
	"happytoes/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Sentinel errors mapped to the checkout endpoint's documented responses.
var (
	ErrStripeNotConfigured = errors.New("Stripe is not configured on the server.")
	ErrNoItems             = errors.New("No items provided for checkout.")
	ErrEmptyCart           = errors.New("your cart is empty")
	ErrCheckoutInFlight    = errors.New("a checkout for this order is already in progress")
	ErrCheckoutCancelled   = errors.New("this checkout was cancelled, start a new one")
)

const (
	checkoutLockTTL = time.Minute
	placeholderName = "Product"
)

// checkoutStore is the slice of the store the checkout saga needs.
type checkoutStore interface {
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	GetCartEntries(ctx context.Context, userID string) ([]models.CartEntry, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	SetOrderSession(ctx context.Context, orderID int64, sessionID, sessionURL string) error
}

// checkoutLocks is the per-user double-submit guard.
type checkoutLocks interface {
	AcquireCheckoutLock(ctx context.Context, userID string, ttl time.Duration) (bool, error)
	ReleaseCheckoutLock(ctx context.Context, userID string) error
}

// checkoutEvents publishes the saga's domain events.
type checkoutEvents interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishCheckoutSessionCreated(ctx context.Context, event *models.CheckoutSessionCreatedEvent) error
	PublishCheckoutSessionFailed(ctx context.Context, event *models.CheckoutSessionFailedEvent) error
	PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// CheckoutService owns the begin-checkout saga: cart snapshot, pending order,
// hosted session creation, and the compensating cancel when session creation
// fails. It also handles the provider's webhook events.
type CheckoutService struct {
	store      checkoutStore
	redis      checkoutLocks
	publisher  checkoutEvents
	sessions   payment.SessionCreator
	configured bool
	successURL string
	cancelURL  string
	logger     *zap.Logger
}

// NewCheckoutService creates a new checkout service. sessions may be nil when
// no provider credential is configured; checkout then degrades to a
// configuration error instead of crashing.
func NewCheckoutService(
	store checkoutStore,
	redis checkoutLocks,
	publisher checkoutEvents,
	sessions payment.SessionCreator,
	successURL, cancelURL string,
) *CheckoutService {
	return &CheckoutService{
		store:      store,
		redis:      redis,
		publisher:  publisher,
		sessions:   sessions,
		configured: sessions != nil,
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     util.GetLogger(),
	}
}

// SessionItem is one line of a checkout session request. Zero-value fields
// fall back to defaults: price 0, quantity 1, a placeholder name.
type SessionItem struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// CreateSessionRequest is the payload of POST /api/create-checkout-session.
type CreateSessionRequest struct {
	OrderID    string        `json:"orderId"`
	Items      []SessionItem `json:"items"`
	SuccessURL string        `json:"successUrl"`
	CancelURL  string        `json:"cancelUrl"`
}

// CheckoutResponse is returned from the begin-checkout operation.
type CheckoutResponse struct {
	OrderID   int64  `json:"order_id"`
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// MinorUnits converts a decimal currency amount to the provider's integer
// minor-unit amount, round(price x 100).
func MinorUnits(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CreateSession validates a line-item list and delegates hosted session
// creation to the payment provider. The provider is never called for a
// missing credential or an empty item list.
func (cs *CheckoutService) CreateSession(ctx context.Context, req *CreateSessionRequest) (*payment.Session, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateSession")
	defer span.End()

	if !cs.configured {
		util.CheckoutSessionsFailedTotal.WithLabelValues("not_configured").Inc()
		return nil, ErrStripeNotConfigured
	}
	if len(req.Items) == 0 {
		util.CheckoutSessionsFailedTotal.WithLabelValues("no_items").Inc()
		return nil, ErrNoItems
	}

	lineItems := make([]payment.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		name := item.Name
		if name == "" {
			name = placeholderName
		}
		quantity := int64(item.Quantity)
		if quantity < 1 {
			quantity = 1
		}
		lineItems = append(lineItems, payment.LineItem{
			Name:       name,
			UnitAmount: MinorUnits(item.Price),
			Quantity:   quantity,
		})
	}

	start := time.Now()
	session, err := cs.sessions.CreateSession(ctx, &payment.SessionParams{
		OrderID:        req.OrderID,
		LineItems:      lineItems,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		IdempotencyKey: sessionIdempotencyKey(req.OrderID),
	})
	util.CheckoutSessionLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.CheckoutSessionsFailedTotal.WithLabelValues("provider_error").Inc()
		cs.logger.Error("Failed to create checkout session",
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	util.CheckoutSessionsCreatedTotal.Inc()
	cs.logger.Info("Checkout session created",
		zap.String("order_id", req.OrderID),
		zap.String("session_id", session.ID))
	return session, nil
}

// Checkout snapshots the user's cart into a pending order, requests a hosted
// session, and returns the redirect URL. When session creation fails the
// order is compensated to cancelled before the error is returned. The cart is
// cleared only once the provider's webhook confirms payment.
func (cs *CheckoutService) Checkout(ctx context.Context, identity models.Identity, idempotencyKey string) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	if identity.UserID == "" {
		return nil, ErrNotSignedIn
	}
	if !cs.configured {
		return nil, ErrStripeNotConfigured
	}

	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}

	existing, err := cs.store.GetOrderByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing != nil {
		// A compensated order has a dead session behind it, never replay it
		if existing.Status == models.OrderStatusCancelled {
			return nil, ErrCheckoutCancelled
		}
		cs.logger.Info("Duplicate checkout request detected",
			zap.String("idempotency_key", idempotencyKey),
			zap.Int64("order_id", existing.ID))
		return &CheckoutResponse{
			OrderID:   existing.ID,
			SessionID: existing.SessionID,
			URL:       existing.SessionURL,
		}, nil
	}

	entries, err := cs.store.GetCartEntries(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyCart
	}

	acquired, err := cs.redis.AcquireCheckoutLock(ctx, identity.UserID, checkoutLockTTL)
	if err != nil {
		cs.logger.Warn("Checkout lock unavailable, proceeding on provider idempotency",
			zap.String("user_id", identity.UserID),
			zap.Error(err))
	} else if !acquired {
		return nil, ErrCheckoutInFlight
	} else {
		defer func() {
			if err := cs.redis.ReleaseCheckoutLock(ctx, identity.UserID); err != nil {
				cs.logger.Warn("Failed to release checkout lock", zap.Error(err))
			}
		}()
	}

	items := make([]models.OrderLine, 0, len(entries))
	for _, e := range entries {
		items = append(items, models.OrderLine{
			ProductID: e.ProductID,
			Name:      e.Product.Name,
			Price:     e.Product.Price,
			ImageURL:  e.Product.ImageURL,
			Quantity:  e.Quantity,
		})
	}

	order := &models.Order{
		UserID:         identity.UserID,
		CustomerEmail:  identity.Email,
		Items:          items,
		TotalAmount:    Total(entries),
		Status:         models.OrderStatusPending,
		IdempotencyKey: idempotencyKey,
	}

	if err := cs.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	cs.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("user_id", order.UserID))

	cs.publish(ctx, func() error {
		return cs.publisher.PublishOrderCreated(ctx, &models.OrderCreatedEvent{
			BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
			OrderID:     order.ID,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount,
			Items:       order.Items,
		})
	})

	sessionItems := make([]SessionItem, 0, len(items))
	for _, item := range items {
		sessionItems = append(sessionItems, SessionItem{
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}

	session, err := cs.CreateSession(ctx, &CreateSessionRequest{
		OrderID:    strconv.FormatInt(order.ID, 10),
		Items:      sessionItems,
		SuccessURL: cs.successURL,
		CancelURL:  cs.cancelURL,
	})
	if err != nil {
		cs.compensate(ctx, order.ID, err)
		return nil, err
	}

	if err := cs.store.SetOrderSession(ctx, order.ID, session.ID, session.URL); err != nil {
		cs.logger.Error("Failed to record session on order",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}

	cs.publish(ctx, func() error {
		return cs.publisher.PublishCheckoutSessionCreated(ctx, &models.CheckoutSessionCreatedEvent{
			BaseEvent: newBaseEvent(models.EventTypeCheckoutSessionCreated),
			OrderID:   order.ID,
			SessionID: session.ID,
		})
	})

	return &CheckoutResponse{
		OrderID:   order.ID,
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}

// compensate marks an order cancelled after session creation failed, so no
// orphaned pending order survives the saga.
func (cs *CheckoutService) compensate(ctx context.Context, orderID int64, cause error) {
	if err := cs.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled); err != nil {
		cs.logger.Error("Failed to compensate order after session failure",
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return
	}

	util.OrdersCompensatedTotal.Inc()
	cs.logger.Warn("Order cancelled after session creation failed",
		zap.Int64("order_id", orderID),
		zap.NamedError("cause", cause))

	cs.publish(ctx, func() error {
		return cs.publisher.PublishCheckoutSessionFailed(ctx, &models.CheckoutSessionFailedEvent{
			BaseEvent: newBaseEvent(models.EventTypeCheckoutSessionFailed),
			OrderID:   orderID,
			Reason:    cause.Error(),
		})
	})
}

// HandleProviderEvent translates a verified webhook event into a domain
// payment event on the checkout topic. The worker applies the outcome.
func (cs *CheckoutService) HandleProviderEvent(ctx context.Context, event *payment.WebhookEvent) error {
	ctx, span := util.StartSpan(ctx, "CheckoutService.HandleProviderEvent")
	defer span.End()

	switch event.Type {
	case payment.EventCheckoutSessionCompleted, payment.EventCheckoutSessionExpired:
	default:
		cs.logger.Info("Ignoring provider event", zap.String("type", event.Type))
		return nil
	}

	order, err := cs.resolveOrder(ctx, event)
	if err != nil {
		return err
	}

	if event.Type == payment.EventCheckoutSessionCompleted {
		return cs.publisher.PublishPaymentSucceeded(ctx, &models.PaymentSucceededEvent{
			BaseEvent: baseEventWithID(event.ID, models.EventTypePaymentSucceeded),
			OrderID:   order.ID,
			UserID:    order.UserID,
			SessionID: event.Data.Object.ID,
		})
	}

	return cs.publisher.PublishPaymentFailed(ctx, &models.PaymentFailedEvent{
		BaseEvent: baseEventWithID(event.ID, models.EventTypePaymentFailed),
		OrderID:   order.ID,
		UserID:    order.UserID,
		SessionID: event.Data.Object.ID,
		Reason:    event.Type,
	})
}

// resolveOrder finds the order a webhook refers to, preferring the orderId
// metadata and falling back to the session id.
func (cs *CheckoutService) resolveOrder(ctx context.Context, event *payment.WebhookEvent) (*models.Order, error) {
	if raw := event.Data.Object.Metadata.OrderID; raw != "" {
		orderID, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			return cs.store.GetOrderByID(ctx, orderID)
		}
		cs.logger.Warn("Malformed orderId metadata on webhook",
			zap.String("order_id", raw))
	}
	return cs.store.GetOrderBySessionID(ctx, event.Data.Object.ID)
}

func (cs *CheckoutService) publish(ctx context.Context, fn func() error) {
	if err := fn(); err != nil {
		cs.logger.Error("Failed to publish event", zap.Error(err))
	}
}

func sessionIdempotencyKey(orderID string) string {
	return "checkout-order-" + orderID
}

func newBaseEvent(eventType string) models.BaseEvent {
	return baseEventWithID(uuid.New().String(), eventType)
}

func baseEventWithID(id, eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   id,
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
