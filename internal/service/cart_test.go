package service

import (
	"context"
	"testing"
	"time"

	"happytoes/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCartStore struct {
	product *models.Product
	lines   map[int64]*models.CartLine
	nextID  int64
	inserts int
	updates int
	touched bool
}

func newFakeCartStore(product *models.Product) *fakeCartStore {
	return &fakeCartStore{product: product, lines: make(map[int64]*models.CartLine), nextID: 1}
}

func (f *fakeCartStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	f.touched = true
	return f.product, nil
}

func (f *fakeCartStore) GetCartLine(ctx context.Context, userID string, productID int64) (*models.CartLine, error) {
	f.touched = true
	for _, line := range f.lines {
		if line.UserID == userID && line.ProductID == productID {
			return line, nil
		}
	}
	return nil, nil
}

func (f *fakeCartStore) GetCartLineByID(ctx context.Context, userID string, lineID int64) (*models.CartLine, error) {
	f.touched = true
	return f.lines[lineID], nil
}

func (f *fakeCartStore) InsertCartLine(ctx context.Context, line *models.CartLine) error {
	f.touched = true
	f.inserts++
	line.ID = f.nextID
	f.nextID++
	f.lines[line.ID] = line
	return nil
}

func (f *fakeCartStore) UpdateCartLineQuantity(ctx context.Context, lineID int64, quantity int) error {
	f.touched = true
	f.updates++
	if line, ok := f.lines[lineID]; ok {
		line.Quantity = quantity
	}
	return nil
}

func (f *fakeCartStore) DeleteCartLine(ctx context.Context, userID string, lineID int64) error {
	f.touched = true
	delete(f.lines, lineID)
	return nil
}

func (f *fakeCartStore) GetCartEntries(ctx context.Context, userID string) ([]models.CartEntry, error) {
	f.touched = true
	return nil, nil
}

func (f *fakeCartStore) GetCartCount(ctx context.Context, userID string) (int, error) {
	f.touched = true
	total := 0
	for _, line := range f.lines {
		if line.UserID == userID {
			total += line.Quantity
		}
	}
	return total, nil
}

type fakeCartCache struct{}

func (fakeCartCache) GetCartCount(ctx context.Context, userID string) (int, bool, error) {
	return 0, false, nil
}
func (fakeCartCache) SetCartCount(ctx context.Context, userID string, count int, ttl time.Duration) error {
	return nil
}
func (fakeCartCache) InvalidateCartCount(ctx context.Context, userID string) error { return nil }

func entry(productID int64, price string, quantity int) models.CartEntry {
	return models.CartEntry{
		CartLine: models.CartLine{ProductID: productID, Quantity: quantity},
		Product: models.Product{
			ID:    productID,
			Price: decimal.RequireFromString(price),
		},
	}
}

func TestCartTotals(t *testing.T) {
	entries := []models.CartEntry{
		entry(1, "10.00", 2),
		entry(2, "5.50", 1),
	}

	assert.True(t, Subtotal(entries).Equal(decimal.RequireFromString("25.50")))
	assert.True(t, Tax(entries).Equal(decimal.RequireFromString("2.55")))
	assert.True(t, Total(entries).Equal(decimal.RequireFromString("28.05")))
}

func TestCartTotalsEmpty(t *testing.T) {
	var entries []models.CartEntry

	assert.True(t, Subtotal(entries).IsZero())
	assert.True(t, Tax(entries).IsZero())
	assert.True(t, Total(entries).IsZero())
}

func TestTotalIsSubtotalPlusTax(t *testing.T) {
	entries := []models.CartEntry{
		entry(1, "19.99", 3),
		entry(2, "0.01", 7),
	}

	assert.True(t, Total(entries).Equal(Subtotal(entries).Add(Tax(entries))))
}

func TestAddItemTwiceIncrementsOneLine(t *testing.T) {
	store := newFakeCartStore(&models.Product{ID: 3, Name: "Wool socks"})
	cs := NewCartService(store, fakeCartCache{})
	identity := models.Identity{UserID: "user-1"}

	first, err := cs.AddItem(context.Background(), identity, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Quantity)

	second, err := cs.AddItem(context.Background(), identity, 3)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "same product must land on one line")
	assert.Equal(t, 2, second.Quantity)
	assert.Equal(t, 1, store.inserts)
	assert.Len(t, store.lines, 1)

	count, err := cs.Count(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUpdateQuantityBelowOneIsNoOp(t *testing.T) {
	store := newFakeCartStore(&models.Product{ID: 3})
	cs := NewCartService(store, fakeCartCache{})
	identity := models.Identity{UserID: "user-1"}

	for _, quantity := range []int{0, -1} {
		require.NoError(t, cs.UpdateQuantity(context.Background(), identity, 1, quantity))
	}
	assert.False(t, store.touched, "non-positive quantities must not reach the store")
}

func TestUpdateQuantitySetsStoredValue(t *testing.T) {
	store := newFakeCartStore(&models.Product{ID: 3})
	cs := NewCartService(store, fakeCartCache{})
	identity := models.Identity{UserID: "user-1"}

	line, err := cs.AddItem(context.Background(), identity, 3)
	require.NoError(t, err)

	require.NoError(t, cs.UpdateQuantity(context.Background(), identity, line.ID, 5))
	assert.Equal(t, 5, store.lines[line.ID].Quantity)
}
