package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/whoami847/topup-payments/internal/models"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, gateway_id, kind, amount, currency, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, order.ID, order.UserID, order.GatewayID, order.Kind, order.Amount,
		order.Currency, order.Description, order.Status)
	return err
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	var details sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, gateway_id, kind, amount, currency, description, status,
		       payment_details, created_at, updated_at
		FROM orders WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.GatewayID, &order.Kind, &order.Amount,
		&order.Currency, &order.Description, &order.Status, &details,
		&order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if details.Valid {
		order.PaymentDetails = []byte(details.String)
	}
	return &order, nil
}

// TransitionState is a compare-and-swap: the WHERE clause only matches a
// PENDING row, so a terminal order yields 0 rows and no write. This is the
// storage-level guard that keeps redelivered callbacks from mutating a
// settled order.
func (r *OrderRepository) TransitionState(ctx context.Context, id string, to models.OrderStatus, details []byte) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, payment_details = COALESCE($2, payment_details), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, to, nullableJSON(details), id, models.StatusPending)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SettleTopup performs the whole financial effect of a confirmed top-up in
// one transaction: order to COMPLETED, wallet credit, ledger append. If the
// CAS on the order misses, nothing else runs and ErrAlreadyProcessed is
// returned, so two concurrent deliveries credit the wallet at most once.
func (r *OrderRepository) SettleTopup(ctx context.Context, order *models.Order, details []byte) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, payment_details = COALESCE($2, payment_details), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, models.StatusCompleted, nullableJSON(details), order.ID, models.StatusPending)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrAlreadyProcessed
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance
	`, order.UserID, order.Amount); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, user_id, order_id, description, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), order.UserID, order.ID,
		fmt.Sprintf("Wallet top-up via order %s", order.ID),
		order.Amount, "completed"); err != nil {
		return err
	}

	return tx.Commit()
}

// nullableJSON lets COALESCE keep the existing payment_details when the
// caller has nothing new to record. Passed as text, not []byte: lib/pq
// encodes []byte as bytea, which a jsonb column rejects.
func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
