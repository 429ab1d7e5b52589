package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"happytoes/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderStore struct {
	order       *models.Order
	getErr      error
	updateErr   error
	clearErr    error
	updatedTo   string
	clearedFor  string
	updateCalls int
}

func (f *fakeOrderStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.order, nil
}

func (f *fakeOrderStore) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedTo = status
	f.order.Status = status
	return nil
}

func (f *fakeOrderStore) ClearCart(ctx context.Context, userID string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.clearedFor = userID
	return nil
}

type fakeDedupe struct {
	processed   bool
	marked      bool
	markedAfter []string // snapshot of what had happened by the time of marking
	store       *fakeOrderStore
}

func (f *fakeDedupe) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return f.processed, nil
}

func (f *fakeDedupe) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	f.marked = true
	if f.store != nil {
		f.markedAfter = append(f.markedAfter, f.store.updatedTo, f.store.clearedFor)
	}
	return nil
}

func (f *fakeDedupe) InvalidateCartCount(ctx context.Context, userID string) error {
	return nil
}

func pendingOrder() *models.Order {
	return &models.Order{ID: 7, UserID: "user-1", Status: models.OrderStatusPending}
}

func succeededEvent() *models.PaymentSucceededEvent {
	return &models.PaymentSucceededEvent{
		BaseEvent: models.BaseEvent{EventID: "evt_1", EventType: models.EventTypePaymentSucceeded},
		OrderID:   7,
		UserID:    "user-1",
		SessionID: "cs_1",
	}
}

func TestPaymentSucceededAppliesThenMarks(t *testing.T) {
	store := &fakeOrderStore{order: pendingOrder()}
	dedupe := &fakeDedupe{store: store}
	w := NewCheckoutWorker(nil, store, dedupe)

	err := w.handlePaymentSucceeded(context.Background(), succeededEvent())

	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, store.updatedTo)
	assert.Equal(t, "user-1", store.clearedFor)
	assert.True(t, dedupe.marked)
	// marking happened after the transition and the cart clear
	assert.Equal(t, []string{models.OrderStatusProcessing, "user-1"}, dedupe.markedAfter)
}

func TestPaymentSucceededTransientFailureStaysUnmarked(t *testing.T) {
	store := &fakeOrderStore{order: pendingOrder(), updateErr: fmt.Errorf("connection reset")}
	dedupe := &fakeDedupe{store: store}
	w := NewCheckoutWorker(nil, store, dedupe)

	err := w.handlePaymentSucceeded(context.Background(), succeededEvent())

	require.Error(t, err)
	assert.False(t, dedupe.marked, "a failed delivery must stay unmarked so redelivery retries it")
}

func TestPaymentSucceededClearCartFailureStaysUnmarked(t *testing.T) {
	store := &fakeOrderStore{order: pendingOrder(), clearErr: fmt.Errorf("connection reset")}
	dedupe := &fakeDedupe{store: store}
	w := NewCheckoutWorker(nil, store, dedupe)

	err := w.handlePaymentSucceeded(context.Background(), succeededEvent())

	require.Error(t, err)
	assert.False(t, dedupe.marked)
}

func TestPaymentSucceededRedeliveryIsNoOp(t *testing.T) {
	store := &fakeOrderStore{order: pendingOrder()}
	dedupe := &fakeDedupe{processed: true, store: store}
	w := NewCheckoutWorker(nil, store, dedupe)

	err := w.handlePaymentSucceeded(context.Background(), succeededEvent())

	require.NoError(t, err)
	assert.Zero(t, store.updateCalls)
	assert.Empty(t, store.clearedFor)
	assert.False(t, dedupe.marked)
}

func TestPaymentSucceededRetryAfterPartialApply(t *testing.T) {
	// First delivery transitioned the order but failed to clear the cart.
	// The redelivery must still clear the cart and then mark the event.
	store := &fakeOrderStore{order: &models.Order{ID: 7, UserID: "user-1", Status: models.OrderStatusProcessing}}
	dedupe := &fakeDedupe{store: store}
	w := NewCheckoutWorker(nil, store, dedupe)

	err := w.handlePaymentSucceeded(context.Background(), succeededEvent())

	require.NoError(t, err)
	assert.Zero(t, store.updateCalls, "processing order needs no further transition")
	assert.Equal(t, "user-1", store.clearedFor)
	assert.True(t, dedupe.marked)
}

func TestPaymentFailedCancelsPendingOrder(t *testing.T) {
	store := &fakeOrderStore{order: pendingOrder()}
	dedupe := &fakeDedupe{store: store}
	w := NewCheckoutWorker(nil, store, dedupe)

	err := w.handlePaymentFailed(context.Background(), &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt_2", EventType: models.EventTypePaymentFailed},
		OrderID:   7,
		UserID:    "user-1",
		Reason:    "checkout.session.expired",
	})

	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, store.updatedTo)
	assert.True(t, dedupe.marked)
}

func TestPaymentFailedLeavesNonPendingOrder(t *testing.T) {
	store := &fakeOrderStore{order: &models.Order{ID: 7, UserID: "user-1", Status: models.OrderStatusCompleted}}
	dedupe := &fakeDedupe{store: store}
	w := NewCheckoutWorker(nil, store, dedupe)

	err := w.handlePaymentFailed(context.Background(), &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt_3", EventType: models.EventTypePaymentFailed},
		OrderID:   7,
	})

	require.NoError(t, err)
	assert.Zero(t, store.updateCalls)
	assert.True(t, dedupe.marked)
}
