package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	var gotForm map[string][]string
	var gotAuth, gotIdempotency string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		gotAuth = r.Header.Get("Authorization")
		gotIdempotency = r.Header.Get("Idempotency-Key")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cs_test_123","url":"https://checkout.example/cs_test_123"}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("sk_test_secret", server.URL)

	session, err := client.CreateSession(context.Background(), &SessionParams{
		OrderID: "42",
		LineItems: []LineItem{
			{Name: "Wool socks", UnitAmount: 1250, Quantity: 2},
			{Name: "Ankle socks", UnitAmount: 999, Quantity: 1},
		},
		SuccessURL:     "https://shop.example/ok",
		CancelURL:      "https://shop.example/nope",
		IdempotencyKey: "checkout-order-42",
	})

	require.NoError(t, err)
	assert.Equal(t, "cs_test_123", session.ID)
	assert.Equal(t, "https://checkout.example/cs_test_123", session.URL)

	assert.Equal(t, "Bearer sk_test_secret", gotAuth)
	assert.Equal(t, "checkout-order-42", gotIdempotency)

	form := func(key string) string {
		if v, ok := gotForm[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	assert.Equal(t, "hosted", form("ui_mode"))
	assert.Equal(t, "payment", form("mode"))
	assert.Equal(t, "card", form("payment_method_types[0]"))
	assert.Equal(t, "42", form("metadata[orderId]"))
	assert.Equal(t, "https://shop.example/ok", form("success_url"))
	assert.Equal(t, "https://shop.example/nope", form("cancel_url"))

	assert.Equal(t, "usd", form("line_items[0][price_data][currency]"))
	assert.Equal(t, "Wool socks", form("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "1250", form("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "2", form("line_items[0][quantity]"))
	assert.Equal(t, "999", form("line_items[1][price_data][unit_amount]"))
}

func TestCreateSessionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid currency"}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("sk_test_secret", server.URL)

	_, err := client.CreateSession(context.Background(), &SessionParams{OrderID: "42"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid currency")
}

func TestCreateSessionEmptyURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"cs_test_123"}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("sk_test_secret", server.URL)

	_, err := client.CreateSession(context.Background(), &SessionParams{OrderID: "42"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty checkout URL")
}
