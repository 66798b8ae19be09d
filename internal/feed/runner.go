package feed

import (
	"context"
	"log/slog"

	"github.com/niyobern/okx-binance/internal/model"
)

// TickHandler is invoked after every price-table update for the symbol that
// just changed. Evaluation is push-driven: profitable spreads are transient
// and must be checked at the granularity of each tick.
type TickHandler func(ctx context.Context, symbol string)

// Runner consumes the merged tick channel from both venue streams, updates
// the price table, and triggers the handler for the affected symbol.
type Runner struct {
	table   *Table
	logger  *slog.Logger
	handler TickHandler
}

// NewRunner creates a feed runner over the given table.
func NewRunner(table *Table, logger *slog.Logger, handler TickHandler) *Runner {
	return &Runner{
		table:   table,
		logger:  logger.With("component", "feed"),
		handler: handler,
	}
}

// Run processes ticks until the context is cancelled.
func (r *Runner) Run(ctx context.Context, ticks <-chan model.PriceTick) error {
	r.logger.Info("feed runner started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("feed runner stopped")
			return nil
		case tick := <-ticks:
			r.table.Set(tick)
			r.handler(ctx, tick.Symbol)
		}
	}
}
