package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/niyobern/okx-binance/internal/model"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	code, err := runWithPostgres(m)
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}

// runWithPostgres spins up a throwaway Postgres container for the duration
// of the test run. Kept out of TestMain so the container and pool are torn
// down via defer before the exit code is returned.
func runWithPostgres(m *testing.M) (int, error) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "arbot",
				"POSTGRES_PASSWORD": "arbot",
				"POSTGRES_DB":       "arbot_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp"),
		},
		Started: true,
	})
	if err != nil {
		return 0, fmt.Errorf("start postgres container: %w", err)
	}
	defer func() {
		_ = container.Terminate(ctx)
	}()

	host, err := container.Host(ctx)
	if err != nil {
		return 0, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return 0, fmt.Errorf("container port: %w", err)
	}

	pool, err = pgxpool.New(ctx, fmt.Sprintf("postgres://arbot:arbot@%s:%s/arbot_test", host, port.Port()))
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	return m.Run(), nil
}

func TestPostgresRepository_RecordTrade(t *testing.T) {
	ctx := context.Background()
	repo := &PostgresRepository{Pool: pool}

	require.NoError(t, repo.Migrate(ctx))

	trade := model.CompletedTrade{
		Timestamp:    time.Now(),
		Symbol:       "BTCUSDT",
		BuyVenue:     "binance",
		SellVenue:    "okx",
		Quantity:     decimal.RequireFromString("0.1"),
		BuyPrice:     decimal.NewFromInt(60000),
		SellPrice:    decimal.NewFromInt(61200),
		TransferFees: decimal.NewFromInt(5),
		GrossProfit:  decimal.NewFromInt(120),
		NetProfit:    decimal.NewFromInt(115),
	}

	err := repo.RecordTrade(ctx, trade)
	assert.NoError(t, err)

	// Verify the trade was logged
	var (
		symbol    string
		buyVenue  string
		sellVenue string
		netProfit string
	)
	err = pool.QueryRow(ctx,
		"SELECT symbol, buy_venue, sell_venue, net_profit::text FROM completed_trades WHERE buy_venue = 'binance'",
	).Scan(&symbol, &buyVenue, &sellVenue, &netProfit)
	assert.NoError(t, err)
	assert.Equal(t, trade.Symbol, symbol)
	assert.Equal(t, trade.BuyVenue, buyVenue)
	assert.Equal(t, trade.SellVenue, sellVenue)

	got, err := decimal.NewFromString(netProfit)
	assert.NoError(t, err)
	assert.True(t, trade.NetProfit.Equal(got))
}

func TestPostgresRepository_MigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := &PostgresRepository{Pool: pool}
	assert.NoError(t, repo.Migrate(ctx))
	assert.NoError(t, repo.Migrate(ctx))
}
