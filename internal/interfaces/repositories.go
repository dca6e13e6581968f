// Package interfaces defines the data-access contracts the services depend
// on. Production implementations live in internal/repository; tests supply
// in-memory fakes.
package interfaces

import (
	"context"

	"github.com/whoami847/topup-payments/internal/models"
)

// OrderRepository is the single source of truth for payment intents.
type OrderRepository interface {
	// Create persists a new order. The id must be unique; a collision is
	// surfaced as an error rather than an overwrite.
	Create(ctx context.Context, order *models.Order) error

	GetByID(ctx context.Context, id string) (*models.Order, error)

	// TransitionState moves the order to a terminal state iff it is still
	// PENDING, as a single compare-and-swap. Returns the number of rows
	// affected; 0 means the order was already terminal and nothing was
	// written. details, when non-nil, replaces payment_details.
	TransitionState(ctx context.Context, id string, to models.OrderStatus, details []byte) (int64, error)

	// SettleTopup marks the order COMPLETED, credits the user's wallet by
	// the order amount and appends one ledger entry, all inside one
	// transaction. When the order is not PENDING it returns
	// models.ErrAlreadyProcessed and writes nothing.
	SettleTopup(ctx context.Context, order *models.Order, details []byte) error
}

// GatewayRepository reads admin-configured gateway records. Callers re-read
// per initiation/settlement; credentials may be rotated or disabled at any
// time and must not be cached across requests.
type GatewayRepository interface {
	Create(ctx context.Context, gw *models.Gateway) error
	GetByID(ctx context.Context, id string) (*models.Gateway, error)

	// FirstEnabled returns the oldest gateway with enabled=true, or
	// models.ErrNoActiveGateway when none exists.
	FirstEnabled(ctx context.Context) (*models.Gateway, error)
}

// UserRepository is the user directory plus the wallet read side.
type UserRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
	WalletBalance(ctx context.Context, userID string) (float64, error)
	RecentTransactions(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error)
}
