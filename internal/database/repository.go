package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/niyobern/okx-binance/internal/model"
)

// Repository defines the standard interface for trade bookkeeping.
type Repository interface {
	RecordTrade(ctx context.Context, trade model.CompletedTrade) error
}

// PostgresRepository records completed trades in Postgres.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// Migrate creates the completed_trades table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS completed_trades (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		symbol VARCHAR(20) NOT NULL,
		buy_venue VARCHAR(50) NOT NULL,
		sell_venue VARCHAR(50) NOT NULL,
		quantity NUMERIC(20, 8) NOT NULL,
		buy_price NUMERIC(20, 8) NOT NULL,
		sell_price NUMERIC(20, 8) NOT NULL,
		transfer_fees NUMERIC(20, 8) NOT NULL,
		gross_profit NUMERIC(20, 8) NOT NULL,
		net_profit NUMERIC(20, 8) NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// RecordTrade inserts a completed trade row.
func (r *PostgresRepository) RecordTrade(ctx context.Context, trade model.CompletedTrade) error {
	_, err := r.Pool.Exec(ctx, `
	INSERT INTO completed_trades (
		timestamp, symbol, buy_venue, sell_venue, quantity,
		buy_price, sell_price, transfer_fees, gross_profit, net_profit
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		trade.Timestamp,
		trade.Symbol,
		trade.BuyVenue,
		trade.SellVenue,
		trade.Quantity.String(),
		trade.BuyPrice.String(),
		trade.SellPrice.String(),
		trade.TransferFees.String(),
		trade.GrossProfit.String(),
		trade.NetProfit.String(),
	)
	if err != nil {
		return fmt.Errorf("database: record trade: %w", err)
	}
	return nil
}

// NoopRepository discards trade records. Used when no database is configured.
type NoopRepository struct{}

// RecordTrade does nothing.
func (NoopRepository) RecordTrade(ctx context.Context, trade model.CompletedTrade) error {
	return nil
}
