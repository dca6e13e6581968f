package repository

import "database/sql"

// InitDB creates the tables this service owns. Safe to run on every boot.
func InitDB(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS gateways (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			store_id VARCHAR(255) NOT NULL,
			store_secret VARCHAR(255) NOT NULL,
			access_token VARCHAR(255),
			is_live BOOLEAN NOT NULL DEFAULT FALSE,
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES users(id),
			gateway_id VARCHAR(64) NOT NULL REFERENCES gateways(id),
			kind VARCHAR(32) NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			currency VARCHAR(8) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			payment_details JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id VARCHAR(64) PRIMARY KEY REFERENCES users(id),
			balance NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS wallet_transactions (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES users(id),
			order_id VARCHAR(64) NOT NULL REFERENCES orders(id),
			description TEXT NOT NULL DEFAULT '',
			amount NUMERIC(12,2) NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wallet_transactions_user ON wallet_transactions(user_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}
