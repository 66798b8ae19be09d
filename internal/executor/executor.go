package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/niyobern/okx-binance/internal/exchange"
	"github.com/niyobern/okx-binance/internal/model"
)

// ErrLegNotFilled is returned when a leg's order did not reach a terminal
// filled status on its venue.
var ErrLegNotFilled = errors.New("executor: leg not filled")

// Coordinator executes the two legs of an arbitrage plan: a spot market buy
// on the cheaper venue and a margin market short on the other, issued
// concurrently to minimize exposure to price movement between the legs.
type Coordinator struct {
	logger  *slog.Logger
	clients map[model.Venue]exchange.Client
}

// New creates a coordinator over the given venue clients.
func New(logger *slog.Logger, clients map[model.Venue]exchange.Client) *Coordinator {
	return &Coordinator{
		logger:  logger.With("component", "executor"),
		clients: clients,
	}
}

// Execute places both legs concurrently, waits for both outcomes, and
// verifies that each reached a filled status. The join always collects both
// results: a failure on one leg must not leave the other unobserved. No
// automatic unwind of a single filled leg is attempted; that is itself a
// trade with its own risk and is escalated instead.
func (c *Coordinator) Execute(ctx context.Context, plan *model.TradePlan) error {
	buyClient, ok := c.clients[plan.BuyVenue]
	if !ok {
		return fmt.Errorf("executor: no client for venue %s", plan.BuyVenue)
	}
	sellClient, ok := c.clients[plan.SellVenue]
	if !ok {
		return fmt.Errorf("executor: no client for venue %s", plan.SellVenue)
	}

	var (
		wg       sync.WaitGroup
		spotRes  model.OrderResult
		shortRes model.OrderResult
		spotErr  error
		shortErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		spotRes, spotErr = buyClient.PlaceSpotMarketBuy(ctx, plan.Symbol, plan.Quantity)
	}()
	go func() {
		defer wg.Done()
		shortRes, shortErr = sellClient.PlaceMarginMarketShort(ctx, plan.Symbol, plan.Quantity)
	}()
	wg.Wait()

	if spotErr != nil || shortErr != nil {
		return fmt.Errorf("executor: leg errors (spot: %v, short: %v)", spotErr, shortErr)
	}

	if !spotRes.Filled {
		c.logger.Error("spot buy leg not filled",
			"venue", plan.BuyVenue,
			"symbol", plan.Symbol,
			"order_id", spotRes.OrderID,
			"status", spotRes.Status,
			"short_filled", shortRes.Filled,
		)
		return fmt.Errorf("%w: spot buy on %s (status %q)", ErrLegNotFilled, plan.BuyVenue, spotRes.Status)
	}
	if !shortRes.Filled {
		c.logger.Error("margin short leg not filled",
			"venue", plan.SellVenue,
			"symbol", plan.Symbol,
			"order_id", shortRes.OrderID,
			"status", shortRes.Status,
			"spot_filled", spotRes.Filled,
		)
		return fmt.Errorf("%w: margin short on %s (status %q)", ErrLegNotFilled, plan.SellVenue, shortRes.Status)
	}

	c.logger.Info("both legs filled",
		"symbol", plan.Symbol,
		"spot_order", spotRes.OrderID,
		"short_order", shortRes.OrderID,
	)
	return nil
}
