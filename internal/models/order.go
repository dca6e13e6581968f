package models

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusFailed    OrderStatus = "FAILED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal reports whether the status is absorbing. Terminal orders are
// never transitioned again.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type OrderKind string

const (
	KindWalletTopup     OrderKind = "wallet_topup"
	KindProductPurchase OrderKind = "product_purchase"
)

// Order is a payment intent. Its id doubles as the provider-facing
// transaction id and the idempotency key for settlement.
type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	GatewayID      string          `json:"gateway_id"`
	Kind           OrderKind       `json:"kind"`
	Amount         float64         `json:"amount"`
	Currency       string          `json:"currency"`
	Description    string          `json:"description"`
	Status         OrderStatus     `json:"status"`
	PaymentDetails json.RawMessage `json:"payment_details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Gateway is an admin-configured payment gateway. Credentials never leave
// the server; they are excluded from JSON marshaling wholesale.
type Gateway struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	StoreID     string    `json:"-"`
	StoreSecret string    `json:"-"`
	AccessToken string    `json:"-"`
	IsLive      bool      `json:"is_live"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// Customer carries the contact fields providers require at checkout.
type Customer struct {
	Name  string `json:"customer_name"`
	Email string `json:"customer_email"`
	Phone string `json:"customer_phone"`
}

// WalletTransaction is an immutable ledger entry. Amount is signed: credits
// positive, debits negative. Rows are never updated after insert; a mistake
// is corrected by a compensating entry.
type WalletTransaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	OrderID     string    `json:"order_id"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
