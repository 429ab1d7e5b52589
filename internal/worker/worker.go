package worker

import (
	"context"
	"fmt"
	"time"

	"happytoes/internal/broker"
	"happytoes/internal/models"
	"happytoes/internal/util"

	"go.uber.org/zap"
)

const processedEventTTL = 24 * time.Hour

// orderStore is the slice of the store the worker needs.
type orderStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	ClearCart(ctx context.Context, userID string) error
}

// eventDedupe is the slice of the Redis client the worker needs.
type eventDedupe interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) error
	InvalidateCartCount(ctx context.Context, userID string) error
}

// CheckoutWorker consumes payment outcome events and applies them: confirmed
// payments move the order forward and clear the cart, failed or expired
// sessions cancel the order. An event is marked processed only after its
// effects are applied, so a transient failure is retried on redelivery; the
// transition guard and the idempotent cart clear make re-application safe.
type CheckoutWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        orderStore
	redis        eventDedupe
	logger       *zap.Logger
}

// NewCheckoutWorker creates a new checkout worker
func NewCheckoutWorker(
	consumer *broker.Consumer,
	store orderStore,
	redis eventDedupe,
) *CheckoutWorker {
	w := &CheckoutWorker{
		consumer: consumer,
		store:    store,
		redis:    redis,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentSucceeded(w.handlePaymentSucceeded)
	eventHandler.OnPaymentFailed(w.handlePaymentFailed)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *CheckoutWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting checkout worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CheckoutWorker) Stop() error {
	w.logger.Info("Stopping checkout worker")
	return w.consumer.Close()
}

func (w *CheckoutWorker) handlePaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	ctx, span := util.StartSpan(ctx, "CheckoutWorker.handlePaymentSucceeded")
	defer span.End()

	processed, err := w.redis.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	w.logger.Info("Payment confirmed",
		zap.Int64("order_id", event.OrderID),
		zap.String("session_id", event.SessionID))

	order, err := w.store.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		return err
	}

	if models.CanTransition(order.Status, models.OrderStatusProcessing) {
		if err := w.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusProcessing); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		util.OrderStatusTransitionsTotal.
			WithLabelValues(order.Status, models.OrderStatusProcessing).Inc()
	} else if order.Status != models.OrderStatusProcessing {
		w.logger.Warn("Order not in a payable state, leaving status unchanged",
			zap.Int64("order_id", order.ID),
			zap.String("status", order.Status))
	}

	// The cart is cleared only here, on the server-verified payment signal
	if err := w.store.ClearCart(ctx, event.UserID); err != nil {
		return fmt.Errorf("failed to clear cart after payment: %w", err)
	}
	util.CartsClearedTotal.Inc()
	util.PaymentsConfirmedTotal.Inc()

	if err := w.redis.InvalidateCartCount(ctx, event.UserID); err != nil {
		w.logger.Warn("Failed to invalidate cart count cache", zap.Error(err))
	}

	if err := w.redis.MarkEventProcessed(ctx, event.EventID, processedEventTTL); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	return nil
}

func (w *CheckoutWorker) handlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "CheckoutWorker.handlePaymentFailed")
	defer span.End()

	processed, err := w.redis.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	w.logger.Warn("Payment failed or session expired",
		zap.Int64("order_id", event.OrderID),
		zap.String("reason", event.Reason))

	order, err := w.store.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		return err
	}

	if order.Status == models.OrderStatusPending {
		if err := w.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled); err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		util.OrderStatusTransitionsTotal.
			WithLabelValues(models.OrderStatusPending, models.OrderStatusCancelled).Inc()
	}

	util.PaymentsFailedTotal.Inc()

	if err := w.redis.MarkEventProcessed(ctx, event.EventID, processedEventTTL); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	return nil
}
