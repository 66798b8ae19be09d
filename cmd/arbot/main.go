package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/niyobern/okx-binance/internal/arbitrage"
	"github.com/niyobern/okx-binance/internal/config"
	"github.com/niyobern/okx-binance/internal/database"
	"github.com/niyobern/okx-binance/internal/exchange"
	"github.com/niyobern/okx-binance/internal/executor"
	"github.com/niyobern/okx-binance/internal/feed"
	"github.com/niyobern/okx-binance/internal/ledger"
	"github.com/niyobern/okx-binance/internal/model"
	"github.com/niyobern/okx-binance/internal/settlement"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("starting arbitrage bot",
		"mode", cfg.Mode,
		"symbols", cfg.Symbols,
		"initial_capital", cfg.Trading.InitialCapital,
	)

	var repo database.Repository = database.NoopRepository{}
	if cfg.Database.Host != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL())
		if err != nil {
			return err
		}
		defer pool.Close()
		pg := &database.PostgresRepository{Pool: pool}
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		repo = pg
	}

	reconnectDelay := time.Duration(cfg.Feed.ReconnectDelaySeconds) * time.Second
	clients := make(map[model.Venue]exchange.Client, len(cfg.Venues))
	for name, venueCfg := range cfg.Venues {
		client, err := exchange.NewClient(name, logger, venueCfg, cfg.Symbols, reconnectDelay)
		if err != nil {
			return err
		}
		clients[client.Name()] = client
	}

	lgr := ledger.New(logger,
		decimal.NewFromFloat(cfg.Trading.InitialCapital),
		decimal.NewFromFloat(cfg.Trading.MinProfitPercent),
	)
	evaluator := arbitrage.NewEvaluator(logger, cfg, lgr)
	coordinator := executor.New(logger, clients)
	settler := settlement.New(
		logger,
		clients,
		lgr,
		repo,
		cfg.Networks,
		settlement.Mode(cfg.Mode),
		time.Duration(cfg.Settlement.SimulatedDelayMS)*time.Millisecond,
		time.Duration(cfg.Settlement.PollIntervalSeconds)*time.Second,
		cfg.Settlement.PollMaxAttempts,
	)

	table := feed.NewTable()
	engine := arbitrage.NewEngine(logger, table, evaluator, lgr, coordinator, settler)
	runner := feed.NewRunner(table, logger, engine.HandleTick)

	ticks := make(chan model.PriceTick, cfg.Feed.TickBuffer)

	g, ctx := errgroup.WithContext(ctx)
	for _, client := range clients {
		g.Go(func() error {
			return client.StreamTicks(ctx, ticks)
		})
	}
	g.Go(func() error {
		return runner.Run(ctx, ticks)
	})

	err := g.Wait()
	engine.Wait()
	return err
}
