package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.stripe.com"

// Checkout sessions are created with a fixed currency, a single payment
// method, and one-time-payment mode.
const (
	sessionCurrency = "usd"
	sessionMethod   = "card"
	sessionMode     = "payment"
	sessionUIMode   = "hosted"
)

// LineItem is one priced line of a hosted checkout session. UnitAmount is a
// minor-unit (cent) amount.
type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int64
}

// Session is a provider-hosted payment page reference.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// SessionParams are the inputs to session creation. OrderID travels as opaque
// metadata; it is never interpreted by the provider.
type SessionParams struct {
	OrderID        string
	LineItems      []LineItem
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

// SessionCreator creates hosted checkout sessions. Satisfied by Client and by
// test doubles.
type SessionCreator interface {
	CreateSession(ctx context.Context, params *SessionParams) (*Session, error)
}

// Client talks to the Stripe Checkout Sessions API. The API takes
// form-encoded bodies and authenticates with a bearer secret key.
type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Stripe client
func NewClient(secretKey string) *Client {
	return &Client{
		secretKey: secretKey,
		baseURL:   defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientWithBaseURL creates a client against a non-default API host, used
// by tests
func NewClientWithBaseURL(secretKey, baseURL string) *Client {
	c := NewClient(secretKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateSession creates a hosted checkout session
func (c *Client) CreateSession(ctx context.Context, params *SessionParams) (*Session, error) {
	form := url.Values{}
	form.Set("ui_mode", sessionUIMode)
	form.Set("mode", sessionMode)
	form.Set("payment_method_types[0]", sessionMethod)
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("metadata[orderId]", params.OrderID)

	for i, item := range params.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", sessionCurrency)
		form.Set(prefix+"[price_data][product_data][name]", item.Name)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.UnitAmount, 10))
		form.Set(prefix+"[quantity]", strconv.FormatInt(item.Quantity, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if params.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", params.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach payment provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("provider error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("provider error (%d): %s", resp.StatusCode, string(body))
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to parse provider response: %w", err)
	}

	if session.URL == "" {
		return nil, fmt.Errorf("provider returned empty checkout URL")
	}

	return &session, nil
}
