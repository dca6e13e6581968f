package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/whoami847/topup-payments/internal/models"
)

type GatewayRepository struct {
	db *sql.DB
}

func NewGatewayRepository(db *sql.DB) *GatewayRepository {
	return &GatewayRepository{db: db}
}

func (r *GatewayRepository) Create(ctx context.Context, gw *models.Gateway) error {
	if gw.ID == "" {
		gw.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gateways (id, name, store_id, store_secret, access_token, is_live, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, gw.ID, gw.Name, gw.StoreID, gw.StoreSecret, gw.AccessToken, gw.IsLive, gw.Enabled)
	return err
}

func (r *GatewayRepository) GetByID(ctx context.Context, id string) (*models.Gateway, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, name, store_id, store_secret, access_token, is_live, enabled, created_at
		FROM gateways WHERE id = $1
	`, id), fmt.Sprintf("gateway %s", id))
}

// FirstEnabled resolves the gateway used for a new initiation. Selection is
// first-enabled-wins, ordered by creation time.
func (r *GatewayRepository) FirstEnabled(ctx context.Context) (*models.Gateway, error) {
	gw, err := r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT id, name, store_id, store_secret, access_token, is_live, enabled, created_at
		FROM gateways WHERE enabled = TRUE
		ORDER BY created_at ASC LIMIT 1
	`), "enabled gateway")
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNoActiveGateway
	}
	return gw, err
}

func (r *GatewayRepository) scanOne(row *sql.Row, what string) (*models.Gateway, error) {
	var gw models.Gateway
	var token sql.NullString
	err := row.Scan(&gw.ID, &gw.Name, &gw.StoreID, &gw.StoreSecret, &token,
		&gw.IsLive, &gw.Enabled, &gw.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	gw.AccessToken = token.String
	return &gw, nil
}
