package service

import (
	"context"
	"testing"
	"time"

	"happytoes/internal/models"
	"happytoes/internal/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessionCreator struct {
	lastParams *payment.SessionParams
	calls      int
	session    *payment.Session
	err        error
}

func (f *fakeSessionCreator) CreateSession(ctx context.Context, params *payment.SessionParams) (*payment.Session, error) {
	f.calls++
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func TestMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"10.00":  1000,
		"0.01":   1,
		"19.99":  1999,
		"0":      0,
		"12.345": 1235, // rounds, not truncates
		"12.344": 1234,
	}

	for in, want := range cases {
		assert.Equal(t, want, MinorUnits(decimal.RequireFromString(in)), "price %s", in)
	}
}

func TestCreateSessionNotConfigured(t *testing.T) {
	cs := NewCheckoutService(nil, nil, nil, nil, "", "")

	_, err := cs.CreateSession(context.Background(), &CreateSessionRequest{
		OrderID: "42",
		Items:   []SessionItem{{Name: "Socks", Price: decimal.RequireFromString("9.99"), Quantity: 1}},
	})

	assert.ErrorIs(t, err, ErrStripeNotConfigured)
}

func TestCreateSessionNoItems(t *testing.T) {
	fake := &fakeSessionCreator{session: &payment.Session{ID: "cs_test", URL: "https://pay.example/cs_test"}}
	cs := NewCheckoutService(nil, nil, nil, fake, "", "")

	_, err := cs.CreateSession(context.Background(), &CreateSessionRequest{OrderID: "42"})

	assert.ErrorIs(t, err, ErrNoItems)
	assert.Equal(t, 0, fake.calls, "provider must not be called without items")
}

func TestCreateSessionDefaults(t *testing.T) {
	fake := &fakeSessionCreator{session: &payment.Session{ID: "cs_test", URL: "https://pay.example/cs_test"}}
	cs := NewCheckoutService(nil, nil, nil, fake, "", "")

	session, err := cs.CreateSession(context.Background(), &CreateSessionRequest{
		OrderID: "42",
		Items: []SessionItem{
			{}, // everything zero
			{Name: "Wool socks", Price: decimal.RequireFromString("12.50"), Quantity: 3},
		},
		SuccessURL: "https://shop.example/ok",
		CancelURL:  "https://shop.example/nope",
	})

	assert.NoError(t, err)
	assert.Equal(t, "cs_test", session.ID)
	assert.Equal(t, 1, fake.calls)

	params := fake.lastParams
	assert.Equal(t, "42", params.OrderID)
	assert.Equal(t, "checkout-order-42", params.IdempotencyKey)
	assert.Equal(t, "https://shop.example/ok", params.SuccessURL)
	assert.Len(t, params.LineItems, 2)

	assert.Equal(t, payment.LineItem{Name: "Product", UnitAmount: 0, Quantity: 1}, params.LineItems[0])
	assert.Equal(t, payment.LineItem{Name: "Wool socks", UnitAmount: 1250, Quantity: 3}, params.LineItems[1])
}

func TestCheckoutRequiresIdentity(t *testing.T) {
	fake := &fakeSessionCreator{session: &payment.Session{ID: "cs_test"}}
	cs := NewCheckoutService(nil, nil, nil, fake, "", "")

	_, err := cs.Checkout(context.Background(), models.Identity{}, "")

	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.Equal(t, 0, fake.calls)
}

type fakeCheckoutStore struct {
	existing  *models.Order
	entries   []models.CartEntry
	created   *models.Order
	updatedTo string
	sessionID string
	sessURL   string
}

func (f *fakeCheckoutStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return f.existing, nil
}

func (f *fakeCheckoutStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return f.created, nil
}

func (f *fakeCheckoutStore) GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	return f.created, nil
}

func (f *fakeCheckoutStore) GetCartEntries(ctx context.Context, userID string) ([]models.CartEntry, error) {
	return f.entries, nil
}

func (f *fakeCheckoutStore) CreateOrder(ctx context.Context, order *models.Order) error {
	order.ID = 99
	f.created = order
	return nil
}

func (f *fakeCheckoutStore) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	f.updatedTo = status
	return nil
}

func (f *fakeCheckoutStore) SetOrderSession(ctx context.Context, orderID int64, sessionID, sessionURL string) error {
	f.sessionID = sessionID
	f.sessURL = sessionURL
	return nil
}

type fakeCheckoutLocks struct{}

func (fakeCheckoutLocks) AcquireCheckoutLock(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (fakeCheckoutLocks) ReleaseCheckoutLock(ctx context.Context, userID string) error { return nil }

type fakeCheckoutEvents struct {
	published []string
}

func (f *fakeCheckoutEvents) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	f.published = append(f.published, event.EventType)
	return nil
}
func (f *fakeCheckoutEvents) PublishCheckoutSessionCreated(ctx context.Context, event *models.CheckoutSessionCreatedEvent) error {
	f.published = append(f.published, event.EventType)
	return nil
}
func (f *fakeCheckoutEvents) PublishCheckoutSessionFailed(ctx context.Context, event *models.CheckoutSessionFailedEvent) error {
	f.published = append(f.published, event.EventType)
	return nil
}
func (f *fakeCheckoutEvents) PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	f.published = append(f.published, event.EventType)
	return nil
}
func (f *fakeCheckoutEvents) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	f.published = append(f.published, event.EventType)
	return nil
}

func cartEntryForCheckout() models.CartEntry {
	return models.CartEntry{
		CartLine: models.CartLine{ProductID: 3, Quantity: 2},
		Product:  models.Product{ID: 3, Name: "Wool socks", Price: decimal.RequireFromString("12.50")},
	}
}

func TestCheckoutRecordsSessionAndURL(t *testing.T) {
	store := &fakeCheckoutStore{entries: []models.CartEntry{cartEntryForCheckout()}}
	events := &fakeCheckoutEvents{}
	fake := &fakeSessionCreator{session: &payment.Session{ID: "cs_1", URL: "https://pay.example/cs_1"}}
	cs := NewCheckoutService(store, fakeCheckoutLocks{}, events, fake, "https://ok", "https://nope")

	resp, err := cs.Checkout(context.Background(), models.Identity{UserID: "user-1", Email: "u@example.com"}, "key-1")

	require.NoError(t, err)
	assert.Equal(t, int64(99), resp.OrderID)
	assert.Equal(t, "cs_1", resp.SessionID)
	assert.Equal(t, "https://pay.example/cs_1", resp.URL)
	assert.Equal(t, "cs_1", store.sessionID)
	assert.Equal(t, "https://pay.example/cs_1", store.sessURL)
	assert.Equal(t, models.OrderStatusPending, store.created.Status)
	assert.Equal(t, []string{models.EventTypeOrderCreated, models.EventTypeCheckoutSessionCreated}, events.published)
}

func TestCheckoutReplayReturnsStoredURL(t *testing.T) {
	store := &fakeCheckoutStore{existing: &models.Order{
		ID:         42,
		Status:     models.OrderStatusPending,
		SessionID:  "cs_1",
		SessionURL: "https://pay.example/cs_1",
	}}
	fake := &fakeSessionCreator{session: &payment.Session{ID: "cs_2", URL: "https://pay.example/cs_2"}}
	cs := NewCheckoutService(store, fakeCheckoutLocks{}, &fakeCheckoutEvents{}, fake, "", "")

	resp, err := cs.Checkout(context.Background(), models.Identity{UserID: "user-1"}, "key-1")

	require.NoError(t, err)
	assert.Equal(t, int64(42), resp.OrderID)
	assert.Equal(t, "cs_1", resp.SessionID)
	assert.Equal(t, "https://pay.example/cs_1", resp.URL, "a replayed checkout must still carry the redirect URL")
	assert.Equal(t, 0, fake.calls, "replay must not create a second session")
}

func TestCheckoutRefusesCancelledReplay(t *testing.T) {
	store := &fakeCheckoutStore{existing: &models.Order{
		ID:     42,
		Status: models.OrderStatusCancelled,
	}}
	fake := &fakeSessionCreator{session: &payment.Session{ID: "cs_2"}}
	cs := NewCheckoutService(store, fakeCheckoutLocks{}, &fakeCheckoutEvents{}, fake, "", "")

	_, err := cs.Checkout(context.Background(), models.Identity{UserID: "user-1"}, "key-1")

	assert.ErrorIs(t, err, ErrCheckoutCancelled)
	assert.Equal(t, 0, fake.calls)
}

func TestCheckoutCompensatesOnSessionFailure(t *testing.T) {
	store := &fakeCheckoutStore{entries: []models.CartEntry{cartEntryForCheckout()}}
	events := &fakeCheckoutEvents{}
	fake := &fakeSessionCreator{err: assert.AnError}
	cs := NewCheckoutService(store, fakeCheckoutLocks{}, events, fake, "", "")

	_, err := cs.Checkout(context.Background(), models.Identity{UserID: "user-1"}, "key-1")

	require.Error(t, err)
	assert.Equal(t, models.OrderStatusCancelled, store.updatedTo)
	assert.Contains(t, events.published, models.EventTypeCheckoutSessionFailed)
}

func TestCheckoutEmptyCart(t *testing.T) {
	store := &fakeCheckoutStore{}
	fake := &fakeSessionCreator{session: &payment.Session{ID: "cs_1"}}
	cs := NewCheckoutService(store, fakeCheckoutLocks{}, &fakeCheckoutEvents{}, fake, "", "")

	_, err := cs.Checkout(context.Background(), models.Identity{UserID: "user-1"}, "key-1")

	assert.ErrorIs(t, err, ErrEmptyCart)
}
