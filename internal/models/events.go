package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated           = "ORDER_CREATED"
	EventTypeCheckoutSessionCreated = "CHECKOUT_SESSION_CREATED"
	EventTypeCheckoutSessionFailed  = "CHECKOUT_SESSION_FAILED"
	EventTypePaymentSucceeded       = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed          = "PAYMENT_FAILED"
	EventTypeOrderStatusChanged     = "ORDER_STATUS_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a pending order is snapshotted at checkout
type OrderCreatedEvent struct {
	BaseEvent
	OrderID     int64           `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderLine     `json:"items"`
}

// CheckoutSessionCreatedEvent published when the provider returns a hosted session
type CheckoutSessionCreatedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	SessionID string `json:"session_id"`
}

// CheckoutSessionFailedEvent published when session creation fails and the
// order is compensated
type CheckoutSessionFailedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// PaymentSucceededEvent published when the provider webhook confirms payment
type PaymentSucceededEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// PaymentFailedEvent published when the provider reports an expired or
// abandoned session
type PaymentFailedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// OrderStatusChangedEvent published on admin status transitions
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}
