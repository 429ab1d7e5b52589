package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog. Products are created and
// edited only through the admin back-office.
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description,omitempty"`
	Price       decimal.Decimal `db:"price" json:"price"`
	ImageURL    string          `db:"image_url" json:"image_url,omitempty"`
	Category    string          `db:"category" json:"category,omitempty"`
	Stock       int             `db:"stock" json:"stock"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// CartLine is a per-user, per-product quantity record.
type CartLine struct {
	ID        int64     `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CartEntry is a cart line joined with its product, the shape the cart and
// checkout views work with.
type CartEntry struct {
	CartLine
	Product Product `json:"product"`
}

// OrderLine is one line of the immutable snapshot captured at checkout time.
// Later product edits or deletes do not affect it.
type OrderLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image_url,omitempty"`
	Quantity  int             `json:"quantity"`
}

// Order is an immutable snapshot of cart contents captured at checkout time.
// Items are serialized to JSON only at the storage boundary.
type Order struct {
	ID             int64           `db:"id" json:"id"`
	UserID         string          `db:"user_id" json:"user_id"`
	CustomerEmail  string          `db:"customer_email" json:"customer_email"`
	Items          []OrderLine     `db:"-" json:"items"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status         string          `db:"status" json:"status"`
	SessionID      string          `db:"session_id" json:"session_id,omitempty"`
	SessionURL     string          `db:"session_url" json:"session_url,omitempty"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Profile is the per-user identity record created at registration and
// read-only thereafter.
type Profile struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Identity is the authenticated caller, resolved once per request and passed
// explicitly into every operation.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// Profile roles
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// statusTransitions is the enforced order status graph. The
// completed/cancelled edges carry the admin toggle.
var statusTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {OrderStatusCancelled},
	OrderStatusCancelled:  {OrderStatusCompleted},
}

// ValidStatus reports whether s is a modeled order status.
func ValidStatus(s string) bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ToggledStatus returns the other side of the completed/cancelled toggle,
// or false for any other status.
func ToggledStatus(current string) (string, bool) {
	switch current {
	case OrderStatusCompleted:
		return OrderStatusCancelled, true
	case OrderStatusCancelled:
		return OrderStatusCompleted, true
	default:
		return "", false
	}
}
